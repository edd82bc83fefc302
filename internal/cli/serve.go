package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meeting-digest/backend/internal/api"
	"github.com/meeting-digest/backend/internal/calendar"
	"github.com/meeting-digest/backend/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the digest/sync scheduler",
		Long: `Start the HTTP API, the WebSocket event stream and the scheduler.

The daily digest runs on DIGEST_CRON (six fields, with seconds). When
SYNC_INTERVAL is set every user is also synced incrementally at that interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := websocket.NewHub(a.logger)
	go hub.Run(ctx)
	broadcaster := websocket.NewEventBroadcaster(hub, a.logger)

	a.digest = a.newDigestService(broadcaster)

	scheduler := calendar.NewScheduler(a.sync, func(ctx context.Context) {
		if _, err := a.digest.GenerateForAll(ctx); err != nil {
			a.logger.Error("digest batch aborted", "error", err)
		}
	}, broadcaster, a.logger)
	if err := scheduler.Start(ctx, a.cfg.DigestCron, a.cfg.SyncInterval); err != nil {
		return WrapExitError(ExitCommandError, "starting scheduler", err)
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.Services{
		DB:       a.db,
		Users:    a.users,
		Syncer:   scheduler,
		Today:    a.sync,
		Digests:  a.digest,
		Stored:   a.digests,
		Persons:  a.cache,
		Schedule: scheduler,
		Hub:      hub,
	}, a.logger)

	server := &http.Server{
		Addr:         a.cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /api/digests runs the whole batch
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitCommandError, "http server", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("server stopped")

	return nil
}
