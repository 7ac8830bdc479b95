package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
)

// BindOptions holds flags for the bind command.
type BindOptions struct {
	*RootOptions
	File   string
	Symbol string
	Type   string
	Lines  string
}

// NewBindCommand creates the bind command.
func NewBindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bind <object-id>",
		Short: "Bind an object to a location in the source tree",
		Long: `Bind any object (intent, constraint, decision, ...) to a file, optionally
narrowed to a symbol and a line range. Paths are relative to the project root.

Example:
  telos bind 70e98f17 --file internal/auth/session.go --symbol Expire --type function --lines 10-42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBind(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "path relative to the project root (required)")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "symbol name")
	cmd.Flags().StringVar(&opts.Type, "type", string(object.BindFile), "file|function|module|api|type")
	cmd.Flags().StringVar(&opts.Lines, "lines", "", "inclusive line range START-END")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runBind(opts *BindOptions, ref string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	target, _, err := r.ReadObject(ctx, ref)
	if err != nil {
		return fail("cannot resolve object to bind", err)
	}

	b := object.CodeBinding{
		Path:        opts.File,
		Symbol:      opts.Symbol,
		BindingType: object.BindingType(strings.ToLower(opts.Type)),
		BoundObject: target,
	}
	if opts.Lines != "" {
		span, err := parseSpan(opts.Lines)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --lines", err)
		}
		b.Span = span
	}

	id, err := r.CreateBinding(ctx, b)
	if err != nil {
		return fail("failed to record binding", err)
	}

	result := CreatedResult{ID: id, Kind: object.KindCodeBinding}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Bound %s to %s (binding %s)\n", target.Short(), b.Path, id.Short())
	})
}

func parseSpan(s string) (*object.Span, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		to = from
	}
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, err)
	}
	return &object.Span{Start: start, End: end}, nil
}
