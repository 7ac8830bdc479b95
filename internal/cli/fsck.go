package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/lockfile"
	"github.com/roach88/telos/internal/object"
)

// FsckProblem is one finding reported by fsck.
type FsckProblem struct {
	Path   string    `json:"path,omitempty"`
	Stream string    `json:"stream,omitempty"`
	ID     object.ID `json:"id,omitempty"`
	Code   string    `json:"code"`
	Error  string    `json:"error"`
}

// FsckResult is the JSON output of fsck.
type FsckResult struct {
	Objects      int           `json:"objects"`
	Corrupted    []FsckProblem `json:"corrupted"`
	BrokenRefs   []FsckProblem `json:"broken_refs"`
	StaleLocks   []string      `json:"stale_locks"`
	ClearedLocks []string      `json:"cleared_locks,omitempty"`
}

// FsckOptions holds flags for the fsck command.
type FsckOptions struct {
	*RootOptions
	ClearStaleLocks bool
}

// NewFsckCommand creates the fsck command.
func NewFsckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FsckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Verify every stored object and stream tip",
		Long: `Re-hash every object file, check that each stream tip names a readable
intent, and look for lock files left behind by writers that died. Nothing
is repaired, except that --clear-stale-locks removes those lock files first.

Exit codes:
  0 - repository is consistent
  1 - corruption, broken stream references or stale locks were found`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFsck(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ClearStaleLocks, "clear-stale-locks", false,
		"remove lock files older than "+lockfile.StaleAge.String()+" before checking")

	return cmd
}

func runFsck(opts *FsckOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	f := opts.formatter(cmd)
	var cleared []string
	if opts.ClearStaleLocks {
		locks, err := r.ClearStaleLocks(ctx)
		if err != nil {
			return fail("cannot clear stale locks", err)
		}
		for _, l := range locks {
			cleared = append(cleared, l.Path)
		}
	}

	f.VerboseLog("verifying %s", r.Dir())
	rep, err := r.Verify(ctx)
	if err != nil {
		return fail("fsck failed", err)
	}

	result := FsckResult{
		Objects:      rep.Objects,
		Corrupted:    make([]FsckProblem, 0, len(rep.Corrupted)),
		BrokenRefs:   make([]FsckProblem, 0, len(rep.BrokenRefs)),
		StaleLocks:   make([]string, 0, len(rep.StaleLocks)),
		ClearedLocks: cleared,
	}
	for _, l := range rep.StaleLocks {
		result.StaleLocks = append(result.StaleLocks, l.Path)
	}
	for _, c := range rep.Corrupted {
		result.Corrupted = append(result.Corrupted, FsckProblem{
			Path: c.Path, ID: c.ID, Code: errs.Code(c.Err), Error: c.Err.Error(),
		})
	}
	for _, b := range rep.BrokenRefs {
		result.BrokenRefs = append(result.BrokenRefs, FsckProblem{
			Stream: b.Stream, ID: b.Tip, Code: errs.Code(b.Err), Error: b.Err.Error(),
		})
	}

	if err := f.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "checked %d objects\n", result.Objects)
		for _, c := range result.Corrupted {
			fmt.Fprintf(w, "corrupt: %s: %s\n", c.Path, c.Error)
		}
		for _, b := range result.BrokenRefs {
			fmt.Fprintf(w, "broken stream %s -> %s: %s\n", b.Stream, b.ID.Short(), b.Error)
		}
		for _, p := range result.ClearedLocks {
			fmt.Fprintf(w, "cleared stale lock: %s\n", p)
		}
		for _, p := range result.StaleLocks {
			fmt.Fprintf(w, "stale lock: %s (run fsck --clear-stale-locks if no writer is running)\n", p)
		}
		if rep.OK() {
			fmt.Fprintln(w, "ok")
		}
	}); err != nil {
		return err
	}

	if !rep.OK() {
		return NewSilentExitError(ExitFailure,
			fmt.Sprintf("%d corrupted objects, %d broken streams, %d stale locks",
				len(rep.Corrupted), len(rep.BrokenRefs), len(rep.StaleLocks)))
	}
	return nil
}
