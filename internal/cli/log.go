package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/repo"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Max  int
	From string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the intent history of the current stream",
		Long: `Walk the intent DAG from the current stream's tip, newest first,
following every parent of a merge.

Example:
  telos log -n 5
  telos log --from 841ae7d4`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Max, "max-count", "n", 20, "maximum number of intents (0 = all)")
	cmd.Flags().StringVar(&opts.From, "from", "", "start at this intent instead of the stream tip")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	var entries []repo.LogEntry
	if opts.From != "" {
		start, _, err := r.ResolveAs(ctx, opts.From, object.KindIntent)
		if err != nil {
			return fail("invalid --from", err)
		}
		entries, err = r.LogFrom(ctx, start, opts.Max)
		if err != nil {
			return fail("failed to walk intent history", err)
		}
	} else {
		entries, err = r.Log(ctx, opts.Max)
		if err != nil {
			return fail("failed to walk intent history", err)
		}
	}

	views := make([]ObjectView, 0, len(entries))
	for _, e := range entries {
		views = append(views, viewOf(e.ID, e.Intent))
	}
	return opts.formatter(cmd).Emit(views, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No intents yet.")
			return
		}
		for _, e := range entries {
			writeIntent(w, e.ID, e.Intent)
		}
	})
}
