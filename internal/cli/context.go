package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ContextOptions holds flags for the context command.
type ContextOptions struct {
	*RootOptions
	Impact string
}

// ContextEntry is one intent with the decisions recorded for it.
type ContextEntry struct {
	Intent    ObjectView   `json:"intent"`
	Decisions []ObjectView `json:"decisions"`
}

// NewContextCommand creates the context command.
func NewContextCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContextOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the intents touching an area and the decisions behind them",
		Long: `Gather the reasoning behind an impact area: every intent carrying the
tag, newest first, each with its decision records.

Example:
  telos context --impact auth --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Impact, "impact", "", "impact area tag (required)")
	_ = cmd.MarkFlagRequired("impact")

	return cmd
}

func runContext(opts *ContextOptions, cmd *cobra.Command) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	groups, err := r.Context(cmd.Context(), opts.Impact)
	if err != nil {
		return fail("failed to gather context", err)
	}

	entries := make([]ContextEntry, 0, len(groups))
	for _, g := range groups {
		entries = append(entries, ContextEntry{
			Intent:    viewOf(g.Primary.ID, g.Primary.Object),
			Decisions: viewsOf(g.Related),
		})
	}

	return opts.formatter(cmd).Emit(entries, func(w io.Writer) {
		if len(groups) == 0 {
			fmt.Fprintf(w, "No intents touch %q.\n", opts.Impact)
			return
		}
		for _, g := range groups {
			fmt.Fprintln(w, summary(g.Primary.ID, g.Primary.Object))
			for _, d := range g.Related {
				fmt.Fprintf(w, "    %s\n", summary(d.ID, d.Object))
			}
		}
	})
}
