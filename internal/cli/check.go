package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
)

// BindingCheck is the JSON shape of one checked binding.
type BindingCheck struct {
	ID          object.ID `json:"id"`
	Path        string    `json:"path"`
	Symbol      string    `json:"symbol,omitempty"`
	BoundObject object.ID `json:"bound_object"`
	Resolved    bool      `json:"resolved"`
}

// CheckResult is the JSON output of check.
type CheckResult struct {
	Bindings   []BindingCheck `json:"bindings"`
	Unresolved int            `json:"unresolved"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that code bindings still point at existing files",
		Long: `Report every code binding whose path no longer exists under the project
root. Stored bindings are not modified.

Exit codes:
  0 - every binding resolves
  1 - at least one binding is unresolved

Example:
  telos check --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	statuses, err := r.CheckBindings(cmd.Context())
	if err != nil {
		return fail("binding check failed", err)
	}

	result := CheckResult{Bindings: make([]BindingCheck, 0, len(statuses))}
	for _, s := range statuses {
		result.Bindings = append(result.Bindings, BindingCheck{
			ID:          s.ID,
			Path:        s.Binding.Path,
			Symbol:      s.Binding.Symbol,
			BoundObject: s.Binding.BoundObject,
			Resolved:    s.Resolved,
		})
		if !s.Resolved {
			result.Unresolved++
		}
	}

	if err := opts.formatter(cmd).Emit(result, func(w io.Writer) {
		for _, b := range result.Bindings {
			state := "ok     "
			if !b.Resolved {
				state = "MISSING"
			}
			fmt.Fprintf(w, "%s %s %s -> %s\n", state, b.ID.Short(), b.Path, b.BoundObject.Short())
		}
		fmt.Fprintf(w, "%d bindings, %d unresolved\n", len(result.Bindings), result.Unresolved)
	}); err != nil {
		return err
	}

	if result.Unresolved > 0 {
		return NewSilentExitError(ExitFailure, fmt.Sprintf("%d unresolved bindings", result.Unresolved))
	}
	return nil
}
