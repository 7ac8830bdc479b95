package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one object",
		Long: `Show one object by full ID or unique prefix (at least 4 hex digits).
The object is re-hashed on read; a corrupted file is reported, never shown.

Example:
  telos show 841ae7d4
  telos show 841ae7d4 --json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, ref string, cmd *cobra.Command) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	id, obj, err := r.ReadObject(cmd.Context(), ref)
	if err != nil {
		return fail(fmt.Sprintf("cannot show %s", ref), err)
	}

	return opts.formatter(cmd).Emit(viewOf(id, obj), func(w io.Writer) {
		if in, ok := obj.(object.Intent); ok {
			writeIntent(w, id, in)
			return
		}
		fmt.Fprintf(w, "%s %s\n\n", obj.Kind(), id)
		body, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			fmt.Fprintln(w, summary(id, obj))
			return
		}
		fmt.Fprintf(w, "%s\n", body)
	})
}
