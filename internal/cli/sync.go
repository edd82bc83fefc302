package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/meeting-digest/backend/internal/storage/models"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	User string
	Full bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror calendar feeds into the local store",
		Long: `Sync one user's calendar feed, or every user's when --user is omitted.

Incremental syncs stop at the first item changed at or before the user's
checkpoint. A user that has never been synced always gets a full sync.

Example:
  digestd sync --user rep@acme.com
  digestd sync --user rep@acme.com --full`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user ID or email (default: all users)")
	cmd.Flags().BoolVar(&opts.Full, "full", false, "read every page instead of stopping at the checkpoint")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if opts.User == "" {
		if opts.Full {
			return NewExitError(ExitCommandError, "--full requires --user")
		}
		results, err := a.sync.SyncAll(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "sync aborted", err)
		}
		if opts.Format == "json" {
			return printResult(out, opts.Format, results, "")
		}
		for _, r := range results {
			printSyncResult(out, r)
		}
		return nil
	}

	user, err := a.resolveUser(ctx, opts.User)
	if err != nil {
		return err
	}

	var result *models.SyncResult
	if opts.Full {
		result, err = a.sync.SyncEvents(ctx, user.ID)
	} else {
		result, err = a.sync.IncrementalSync(ctx, user.ID)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	if opts.Format == "json" {
		return printResult(out, opts.Format, result, "")
	}
	printSyncResult(out, *result)
	return nil
}

func printSyncResult(w io.Writer, r models.SyncResult) {
	checkpoint := "unchanged"
	if r.CheckpointAdvanced() {
		checkpoint = r.Checkpoint.UTC().Format("2006-01-02T15:04:05Z")
	}
	fmt.Fprintf(w, "%s\t%s\t%s\tprocessed=%d skipped=%d pages=%d checkpoint=%s\n",
		r.UserEmail, r.Mode, r.Outcome, r.Processed, r.Skipped, r.PagesFetched, checkpoint)
}
