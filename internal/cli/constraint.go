package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/errs"
	"github.com/roach88/telos/internal/object"
)

// ConstraintOptions holds flags for the constraint and supersede commands.
type ConstraintOptions struct {
	*RootOptions
	Statement string
	Severity  string
	Impacts   []string
	Scope     []string
	Intent    string
	Reason    string
}

// NewConstraintCommand creates the constraint command.
func NewConstraintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConstraintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "constraint",
		Short: "Record a constraint derived from an intent",
		Long: `Record an active constraint. Its source is the current stream's tip
unless --intent is given.

Example:
  telos constraint -s "Sessions expire after 30 minutes" --severity must --impact auth`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConstraint(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Statement, "statement", "s", "", "the rule (required)")
	cmd.Flags().StringVar(&opts.Severity, "severity", string(object.SeverityShould), "must|should|prefer")
	cmd.Flags().StringArrayVar(&opts.Impacts, "impact", nil, "impact area tag (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Scope, "scope", nil, "code binding ID or prefix limiting the constraint (repeatable)")
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "source intent ID or prefix (default: current tip)")
	_ = cmd.MarkFlagRequired("statement")

	return cmd
}

func runConstraint(opts *ConstraintOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	severity, err := parseSeverity(opts.Severity)
	if err != nil {
		return err
	}

	var source object.ID
	if opts.Intent != "" {
		source, _, err = r.ResolveAs(ctx, opts.Intent, object.KindIntent)
		if err != nil {
			return fail("invalid --intent", err)
		}
	} else {
		cur, err := r.CurrentStream()
		if err != nil {
			return fail("cannot read current stream", err)
		}
		if cur.Tip.IsZero() {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("stream %s has no intents yet; record one first or pass --intent", cur.Name))
		}
		source = cur.Tip
	}

	c := object.Constraint{
		Statement:    opts.Statement,
		Severity:     severity,
		Status:       object.StatusActive,
		SourceIntent: source,
		Impacts:      opts.Impacts,
	}
	for _, s := range opts.Scope {
		id, _, err := r.ResolveAs(ctx, s, object.KindCodeBinding)
		if err != nil {
			return fail("invalid --scope", err)
		}
		c.Scope = append(c.Scope, id)
	}

	id, err := r.CreateConstraint(ctx, c)
	if err != nil {
		return fail("failed to record constraint", err)
	}

	result := CreatedResult{ID: id, Kind: object.KindConstraint}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Created constraint %s (%s)\n", id.Short(), severity)
	})
}

// NewSupersedeCommand creates the supersede command.
func NewSupersedeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConstraintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "supersede <constraint-id>",
		Short: "Replace an active constraint with a new statement",
		Long: `Replace an active constraint. Writes the active replacement and a
superseded copy of the old constraint pointing at it.

Example:
  telos supersede 70e98f17 -s "Sessions expire after 15 minutes" --reason "audit finding"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupersede(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Statement, "statement", "s", "", "the replacement rule (required)")
	cmd.Flags().StringVar(&opts.Severity, "severity", "", "must|should|prefer (default: keep)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the constraint was replaced")
	_ = cmd.MarkFlagRequired("statement")

	return cmd
}

// SupersedeResult is the JSON output of supersede.
type SupersedeResult struct {
	Old    object.ID `json:"old"`
	New    object.ID `json:"new"`
	Record object.ID `json:"record"`
}

func runSupersede(opts *ConstraintOptions, ref string, cmd *cobra.Command) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	var severity object.Severity
	if opts.Severity != "" {
		if severity, err = parseSeverity(opts.Severity); err != nil {
			return err
		}
	}

	sup, err := r.SupersedeConstraint(cmd.Context(), ref, opts.Statement, severity, opts.Reason)
	if err != nil {
		return fail("failed to supersede constraint", err)
	}

	return opts.formatter(cmd).Emit(SupersedeResult(sup), func(w io.Writer) {
		fmt.Fprintf(w, "Superseded %s -> %s (superseded record: %s)\n",
			sup.Old.Short(), sup.New.Short(), sup.Record.Short())
	})
}

// NewDeprecateCommand creates the deprecate command.
func NewDeprecateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConstraintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deprecate <constraint-id>",
		Short: "Retire an active constraint",
		Long: `Retire an active constraint by writing a deprecated copy with a reason.

Example:
  telos deprecate 70e98f17 --reason "sessions moved to the gateway"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeprecate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the constraint no longer applies (required)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func runDeprecate(opts *ConstraintOptions, ref string, cmd *cobra.Command) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	id, err := r.DeprecateConstraint(cmd.Context(), ref, opts.Reason)
	if err != nil {
		return fail("failed to deprecate constraint", err)
	}

	result := CreatedResult{ID: id, Kind: object.KindConstraint}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Deprecated %s (record: %s)\n", ref, id.Short())
	})
}

func parseSeverity(s string) (object.Severity, error) {
	switch sev := object.Severity(strings.ToLower(s)); sev {
	case object.SeverityMust, object.SeverityShould, object.SeverityPrefer:
		return sev, nil
	default:
		return "", fail("invalid --severity",
			errs.New(errs.ErrInvalidObject, "cli.severity", s, "want must, should or prefer"))
	}
}
