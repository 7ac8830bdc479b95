package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/export"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <database>",
		Short: "Export the object graph to a SQLite database",
		Long: `Write every object, reference edge, impact tag and stream into a SQLite
database for ad-hoc SQL. An existing export is replaced in place.

Example:
  telos export telos.db
  sqlite3 telos.db "SELECT kind, count(*) FROM objects GROUP BY kind"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runExport(opts *RootOptions, path string, cmd *cobra.Command) (err error) {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	st, err := export.Open(path)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot open export database", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitFailure, "cannot close export database", cerr)
		}
	}()

	f := opts.formatter(cmd)
	f.VerboseLog("exporting %s to %s", r.Dir(), path)
	stats, err := st.Snapshot(cmd.Context(), r)
	if err != nil {
		return fail("export failed", err)
	}

	return f.Emit(stats, func(w io.Writer) {
		fmt.Fprintf(w, "Exported %d objects, %d edges, %d impact tags, %d streams to %s\n",
			stats.Objects, stats.Edges, stats.Impacts, stats.Streams, path)
		if stats.Corrupted > 0 {
			fmt.Fprintf(w, "warning: %d corrupted objects recorded in the corrupted table\n", stats.Corrupted)
		}
	})
}
