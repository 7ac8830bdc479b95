package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/object"
)

// IntentOptions holds flags for the intent command.
type IntentOptions struct {
	*RootOptions
	Statement   string
	Constraints []string
	Impacts     []string
	Behaviors   []string
	Parents     []string
}

// CreatedResult is the JSON output of the commands that create one object.
type CreatedResult struct {
	ID     object.ID   `json:"id"`
	Kind   object.Kind `json:"kind"`
	Stream string      `json:"stream,omitempty"`
}

// NewIntentCommand creates the intent command.
func NewIntentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Record an intent on the current stream",
		Long: `Record an intent and advance the current stream to it.

The new intent's parent is the stream's current tip unless --parent is given.

Example:
  telos intent -s "Add login" --impact auth --constraint "no plaintext passwords"
  telos intent -s "Expire sessions" --behavior "GIVEN an idle session|WHEN 30m pass|THEN it expires"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntent(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Statement, "statement", "s", "", "what the change is for (required)")
	cmd.Flags().StringArrayVar(&opts.Constraints, "constraint", nil, "inline constraint (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Impacts, "impact", nil, "impact area tag (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Behaviors, "behavior", nil, `behavior clause "GIVEN ...|WHEN ...|THEN ..." (repeatable)`)
	cmd.Flags().StringArrayVar(&opts.Parents, "parent", nil, "parent intent ID or prefix (repeatable; default: current tip)")
	_ = cmd.MarkFlagRequired("statement")

	return cmd
}

func runIntent(opts *IntentOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	in := object.Intent{
		Statement:   opts.Statement,
		Constraints: opts.Constraints,
		Impacts:     opts.Impacts,
	}
	for _, b := range opts.Behaviors {
		clause, err := parseBehavior(b)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --behavior", err)
		}
		in.BehaviorSpec = append(in.BehaviorSpec, clause)
	}
	for _, p := range opts.Parents {
		id, _, err := r.ResolveAs(ctx, p, object.KindIntent)
		if err != nil {
			return fail("invalid --parent", err)
		}
		in.Parents = append(in.Parents, id)
	}

	id, err := r.AppendIntent(ctx, in)
	if errors.Is(err, errs.ErrConflict) {
		return fail(fmt.Sprintf("intent %s stored, but the stream moved; re-run to record it on the new tip", id.Short()), err)
	}
	if err != nil {
		return fail("failed to record intent", err)
	}

	stream, _ := r.CurrentStream()
	result := CreatedResult{ID: id, Kind: object.KindIntent, Stream: stream.Name}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "[%s %s] %s\n", stream.Name, id.Short(), in.Statement)
	})
}

// parseBehavior reads "GIVEN x|WHEN y|THEN z". The keywords are optional
// and case-insensitive.
func parseBehavior(s string) (object.BehaviorClause, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return object.BehaviorClause{}, fmt.Errorf("%q: want GIVEN ...|WHEN ...|THEN ...", s)
	}
	strip := func(part, keyword string) string {
		part = strings.TrimSpace(part)
		if len(part) >= len(keyword) && strings.EqualFold(part[:len(keyword)], keyword) {
			part = strings.TrimSpace(part[len(keyword):])
		}
		return part
	}
	return object.BehaviorClause{
		Given: strip(parts[0], "GIVEN"),
		When:  strip(parts[1], "WHEN"),
		Then:  strip(parts[2], "THEN"),
	}, nil
}
