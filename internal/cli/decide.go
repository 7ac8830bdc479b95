package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
)

// DecideOptions holds flags for the decide command.
type DecideOptions struct {
	*RootOptions
	Intent       string
	Question     string
	Decision     string
	Rationale    string
	Alternatives []string
	Tags         []string
}

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecideOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Record a decision made while pursuing an intent",
		Long: `Record a decision: the question, the answer, why, and what was rejected.

Example:
  telos decide --intent 841ae7d4 --question "Which hash?" --decision argon2id \
    --rationale "memory hard" --alternative "bcrypt|72 byte limit" --tag crypto`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Intent, "intent", "", "intent ID or prefix (required)")
	cmd.Flags().StringVar(&opts.Question, "question", "", "the question answered (required)")
	cmd.Flags().StringVar(&opts.Decision, "decision", "", "the answer (required)")
	cmd.Flags().StringVar(&opts.Rationale, "rationale", "", "why")
	cmd.Flags().StringArrayVar(&opts.Alternatives, "alternative", nil, `rejected option "description|reason" (repeatable)`)
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("intent")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("decision")

	return cmd
}

func runDecide(opts *DecideOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	intentID, _, err := r.ResolveAs(ctx, opts.Intent, object.KindIntent)
	if err != nil {
		return fail("invalid --intent", err)
	}

	d := object.DecisionRecord{
		IntentID:  intentID,
		Question:  opts.Question,
		Decision:  opts.Decision,
		Rationale: opts.Rationale,
		Tags:      opts.Tags,
	}
	for _, a := range opts.Alternatives {
		desc, reason, _ := strings.Cut(a, "|")
		d.Alternatives = append(d.Alternatives, object.Alternative{
			Description:     strings.TrimSpace(desc),
			RejectionReason: strings.TrimSpace(reason),
		})
	}

	id, err := r.CreateDecision(ctx, d)
	if err != nil {
		return fail("failed to record decision", err)
	}

	result := CreatedResult{ID: id, Kind: object.KindDecisionRecord}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Recorded decision %s for intent %s\n", id.Short(), intentID.Short())
	})
}
