package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/repo"
)

// ChangeSetOptions holds flags for the changeset command.
type ChangeSetOptions struct {
	*RootOptions
	Parents     []string
	Intents     []string
	Constraints []string
	Decisions   []string
	Bindings    []string
	AgentOps    []string
}

// NewChangeSetCommand creates the changeset command.
func NewChangeSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangeSetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changeset <commit>",
		Short: "Link an external commit to the reasoning behind it",
		Long: `Record a change set tying a version-control commit to intents,
constraints, decisions, bindings and agent operations.

Example:
  telos changeset 3f2a9c1 --intent 841ae7d4 --decision 5be0c2aa`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChangeSet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Parents, "parent", nil, "parent change set (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Intents, "intent", nil, "intent (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Constraints, "constraint", nil, "constraint (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Decisions, "decision", nil, "decision record (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Bindings, "binding", nil, "code binding (repeatable)")
	cmd.Flags().StringArrayVar(&opts.AgentOps, "agent-op", nil, "agent operation (repeatable)")

	return cmd
}

func runChangeSet(opts *ChangeSetOptions, commit string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	cs := object.ChangeSet{Commit: commit}
	lists := []struct {
		flag string
		refs []string
		kind object.Kind
		dst  *[]object.ID
	}{
		{"--parent", opts.Parents, object.KindChangeSet, &cs.Parents},
		{"--intent", opts.Intents, object.KindIntent, &cs.Intents},
		{"--constraint", opts.Constraints, object.KindConstraint, &cs.Constraints},
		{"--decision", opts.Decisions, object.KindDecisionRecord, &cs.Decisions},
		{"--binding", opts.Bindings, object.KindCodeBinding, &cs.CodeBindings},
		{"--agent-op", opts.AgentOps, object.KindAgentOperation, &cs.AgentOperations},
	}
	for _, l := range lists {
		ids, err := resolveAll(ctx, r, l.refs, l.kind)
		if err != nil {
			return fail("invalid "+l.flag, err)
		}
		*l.dst = ids
	}

	id, err := r.CreateChangeSet(ctx, cs)
	if err != nil {
		return fail("failed to record change set", err)
	}

	result := CreatedResult{ID: id, Kind: object.KindChangeSet}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Recorded change set %s for commit %s\n", id.Short(), commit)
	})
}

func resolveAll(ctx context.Context, r *repo.Repository, refs []string, kind object.Kind) ([]object.ID, error) {
	var ids []object.ID
	for _, ref := range refs {
		id, _, err := r.ResolveAs(ctx, ref, kind)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
