package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <email>",
		Short: "Look up a person through the enrichment cache",
		Long: `Resolve an attendee through the person cache. A row fetched within the
last 30 days is returned as is; otherwise the lookup service is called and,
if it fails, the stale row is returned unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			email := args[0]
			if a.cache.IsInternal(email) {
				return NewExitError(ExitCommandError, fmt.Sprintf("%s is internal and never enriched", email))
			}

			p := a.cache.Enrich(ctx, email)
			if p == nil {
				return NewExitError(ExitFailure, fmt.Sprintf("no data for %s", email))
			}

			text := p.Email
			if name := p.FullName(); name != "" {
				text = fmt.Sprintf("%s <%s>", name, p.Email)
			}
			if p.Title != nil {
				text += ", " + *p.Title
			}
			if p.Company != nil && p.Company.Name != nil {
				text += " @ " + *p.Company.Name
			}
			return printResult(cmd.OutOrStdout(), rootOpts.Format, p, text)
		},
	}
}
