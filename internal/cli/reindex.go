package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/index"
)

// ReindexResult is the JSON output of reindex.
type ReindexResult struct {
	Objects   int                `json:"objects"`
	Corrupted int                `json:"corrupted"`
	Keys      map[index.Name]int `json:"keys"`
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the query indexes from the object store",
		Long: `Rebuild every index from one scan of the object store. Indexes are a
cache: queries fall back to scanning whenever an index is stale, so
reindexing only restores speed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.openRepo()
			if err != nil {
				return err
			}
			stats, err := r.Reindex(cmd.Context())
			if err != nil {
				return fail("reindex failed", err)
			}
			result := ReindexResult(stats)
			return rootOpts.formatter(cmd).Emit(result, func(w io.Writer) {
				fmt.Fprintf(w, "Indexed %d objects (%d corrupted skipped)\n", result.Objects, result.Corrupted)
				for _, name := range index.Names {
					fmt.Fprintf(w, "  %-10s %d keys\n", name, result.Keys[name])
				}
			})
		},
	}
	return cmd
}
