package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
)

// AgentLogOptions holds flags for the agent-log command.
type AgentLogOptions struct {
	*RootOptions
	Agent     string
	Session   string
	Operation string
	Summary   string
	Result    string
	Message   string
	Context   []string
	Files     []string
	Parent    string
}

// AgentLogResult is the JSON output of agent-log.
type AgentLogResult struct {
	ID      object.ID `json:"id"`
	Session string    `json:"session"`
}

// NewAgentLogCommand creates the agent-log command.
func NewAgentLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AgentLogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "agent-log",
		Short: "Record an operation performed by an automated agent",
		Long: `Record one step taken by an agent. Steps of one session can be chained
with --parent. A session ID is generated when --session is omitted and
printed so later steps can reuse it.

Example:
  telos agent-log --agent reviewer --operation review --summary "checked expiry" \
    --context 70e98f17 --files internal/auth/session.go`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Agent, "agent", "", "agent identifier (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session identifier (default: new UUIDv7)")
	cmd.Flags().StringVar(&opts.Operation, "operation", "", "review|generate|decide|query|violation|<custom> (required)")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "what was done (required)")
	cmd.Flags().StringVar(&opts.Result, "result", string(object.ResultSuccess), "success|warning|failure|skipped")
	cmd.Flags().StringVar(&opts.Message, "message", "", "result detail for warnings and failures")
	cmd.Flags().StringArrayVar(&opts.Context, "context", nil, "object ID or prefix consulted (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Files, "files", nil, "file touched (repeatable)")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "previous operation in the session")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("operation")
	_ = cmd.MarkFlagRequired("summary")

	return cmd
}

func runAgentLog(opts *AgentLogOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	session := opts.Session
	if session == "" {
		session = opts.sessions().Generate()
	}

	op := object.AgentOperation{
		AgentID:      opts.Agent,
		SessionID:    session,
		Operation:    object.OperationKind(strings.ToLower(opts.Operation)),
		Result:       object.OperationResult{Status: object.ResultStatus(strings.ToLower(opts.Result)), Message: opts.Message},
		Summary:      opts.Summary,
		FilesTouched: opts.Files,
	}
	for _, c := range opts.Context {
		id, _, err := r.ReadObject(ctx, c)
		if err != nil {
			return fail(fmt.Sprintf("context ref %q not found", c), err)
		}
		op.ContextRefs = append(op.ContextRefs, id)
	}
	if opts.Parent != "" {
		op.ParentOp, _, err = r.ResolveAs(ctx, opts.Parent, object.KindAgentOperation)
		if err != nil {
			return fail("invalid --parent", err)
		}
	}

	id, err := r.CreateAgentOperation(ctx, op)
	if err != nil {
		return fail("failed to record agent operation", err)
	}

	return opts.formatter(cmd).Emit(AgentLogResult{ID: id, Session: session}, func(w io.Writer) {
		fmt.Fprintf(w, "Logged agent operation %s (session %s)\n", id.Short(), session)
	})
}
