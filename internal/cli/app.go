package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meeting-digest/backend/internal/calendar"
	"github.com/meeting-digest/backend/internal/clock"
	"github.com/meeting-digest/backend/internal/config"
	"github.com/meeting-digest/backend/internal/digest"
	"github.com/meeting-digest/backend/internal/feed"
	"github.com/meeting-digest/backend/internal/person"
	"github.com/meeting-digest/backend/internal/storage"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.DB

	users   *storage.UserRepository
	events  *storage.EventRepository
	persons *storage.PersonRepository
	digests *storage.DigestRepository

	sync    *calendar.SyncService
	cache   *person.Cache
	builder *digest.Builder
	digest  *digest.Service
}

// newApp loads configuration, opens and migrates the database and wires the
// services.
func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading configuration", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger := setupLogger(level)

	db, err := storage.NewDB(cfg.DatabasePath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "running migrations", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		users:   storage.NewUserRepository(db),
		events:  storage.NewEventRepository(db),
		persons: storage.NewPersonRepository(db),
		digests: storage.NewDigestRepository(db),
	}

	clk := clock.Real{}
	creds := feed.ChainCredentials{a.users, feed.StaticCredentials(cfg.CalendarAPIKeys)}
	fetcher := feed.NewClient(cfg.CalendarAPIURL, creds, cfg.HTTPTimeout, feed.RetryPolicy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
	}, logger)

	a.sync = calendar.NewSyncService(a.users, a.events, fetcher, clk, cfg.Location(), logger)

	lookup := person.NewClient(cfg.PersonAPIURL, cfg.PersonAPIKey, cfg.HTTPTimeout)
	a.cache = person.NewCache(a.persons, lookup, clk, cfg.InternalDomain, logger)

	a.builder, err = digest.NewBuilder(a.persons, a.events, a.digests, cfg.InternalDomain)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading digest template: %w", err)
	}

	a.digest = a.newDigestService(nil)

	return a, nil
}

// newDigestService builds the orchestrator reporting to notifier, which may
// be nil.
func (a *app) newDigestService(notifier digest.Notifier) *digest.Service {
	return digest.NewService(a.users, a.sync, a.cache, a.builder, notifier, clock.Real{}, digest.Config{
		InternalDomain: a.cfg.InternalDomain,
		Workers:        a.cfg.DigestWorkers,
	}, a.logger)
}

func (a *app) Close() error {
	return a.db.Close()
}

// resolveUser accepts either a user ID or an email address.
func (a *app) resolveUser(ctx context.Context, ref string) (*models.User, error) {
	user, err := a.users.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = a.users.GetByEmail(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown user %q", ref))
	}
	return user, nil
}
