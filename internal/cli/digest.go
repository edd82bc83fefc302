package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// DigestOptions holds flags for the digest command.
type DigestOptions struct {
	*RootOptions
	User string
	HTML bool
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DigestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate today's digest for one user or everyone",
		Long: `Sync, enrich and render today's meeting digest.

Without --user every user is processed in parallel (DIGEST_WORKERS); a user
with no meetings today gets no digest. The exit code is 1 when any user
failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user ID or email (default: all users)")
	cmd.Flags().BoolVar(&opts.HTML, "html", false, "print the rendered HTML of a single user's digest")

	return cmd
}

func runDigest(cmd *cobra.Command, opts *DigestOptions) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if opts.User == "" {
		result, err := a.digest.GenerateForAll(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "digest batch aborted", err)
		}
		text := fmt.Sprintf("users=%d succeeded=%d empty=%d failed=%d",
			result.Users, result.Succeeded, result.Empty, result.Failed)
		if err := printResult(out, opts.Format, result, text); err != nil {
			return err
		}
		if opts.Format == "text" {
			ids := make([]string, 0, len(result.Errors))
			for id := range result.Errors {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, result.Errors[id])
			}
		}
		if result.Failed > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d user(s) failed", result.Failed))
		}
		return nil
	}

	user, err := a.resolveUser(ctx, opts.User)
	if err != nil {
		return err
	}

	d, err := a.digest.GenerateForUser(ctx, user.ID)
	if err != nil {
		return WrapExitError(ExitFailure, "digest failed", err)
	}
	if d == nil {
		return printResult(out, opts.Format, map[string]any{"user_id": user.ID, "digest": nil},
			fmt.Sprintf("%s: no meetings today", user.Email))
	}
	if opts.HTML {
		_, err := fmt.Fprintln(out, d.ContentHTML)
		return err
	}
	return printResult(out, opts.Format, d,
		fmt.Sprintf("%s: digest %s stored for %s", user.Email, d.ID, d.DigestDate))
}
