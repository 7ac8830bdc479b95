package cli

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/export"
	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/query"
)

// QueryOptions holds flags shared by the query subcommands.
type QueryOptions struct {
	*RootOptions
	Impact             string
	ConstraintContains string
	Intent             string
	Tag                string
	File               string
	Symbol             string
	Status             string
	Agent              string
	Session            string
	Commit             string
	DB                 string
}

// NewQueryCommand creates the query command group.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find objects by impact, file, symbol, tag, agent or commit",
		Long: `Query the object store. Indexes are used when they cover every stored
object; otherwise the store is scanned and the answer is the same.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newQueryIntentsCommand(rootOpts))
	cmd.AddCommand(newQueryDecisionsCommand(rootOpts))
	cmd.AddCommand(newQueryConstraintsCommand(rootOpts))
	cmd.AddCommand(newQueryAgentOpsCommand(rootOpts))
	cmd.AddCommand(newQueryBindingsCommand(rootOpts))
	cmd.AddCommand(newQueryChangeSetsCommand(rootOpts))

	return cmd
}

func newQuerySubcommand(opts *QueryOptions, use, short, example string, run func(*QueryOptions, *cobra.Command) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          short + ".\n\nExample:\n  " + example,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.DB, "db", "", "answer from a database written by 'telos export' instead of the store")
	return cmd
}

func newQueryIntentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := newQuerySubcommand(opts, "intents", "List intents",
		"telos query intents --impact auth", func(o *QueryOptions, cmd *cobra.Command) error {
			return runQuery(o, cmd, query.Filter{
				Kind:               object.KindIntent,
				Impact:             o.Impact,
				ConstraintContains: o.ConstraintContains,
			})
		})
	cmd.Flags().StringVar(&opts.Impact, "impact", "", "impact area tag")
	cmd.Flags().StringVar(&opts.ConstraintContains, "constraint-contains", "", "text contained in an inline constraint (case-insensitive)")
	return cmd
}

func newQueryDecisionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := newQuerySubcommand(opts, "decisions", "List decision records",
		"telos query decisions --intent 841ae7d4 --tag crypto", func(o *QueryOptions, cmd *cobra.Command) error {
			f := query.Filter{Kind: object.KindDecisionRecord, Tag: o.Tag}
			return runQueryForIntent(o, cmd, f)
		})
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "intent ID or prefix")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag")
	return cmd
}

func newQueryConstraintsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := newQuerySubcommand(opts, "constraints", "List constraints",
		"telos query constraints --file internal/auth/session.go", runQueryConstraints)
	cmd.Flags().StringVar(&opts.File, "file", "", "constraints bound to this file")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "constraints bound to this symbol")
	cmd.Flags().StringVar(&opts.Impact, "impact", "", "impact area tag")
	cmd.Flags().StringVar(&opts.Intent, "intent", "", "source intent ID or prefix")
	cmd.Flags().StringVar(&opts.Status, "status", string(object.StatusActive), "active|superseded|deprecated|all")
	return cmd
}

func newQueryAgentOpsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := newQuerySubcommand(opts, "agent-ops", "List agent operations",
		"telos query agent-ops --agent reviewer", func(o *QueryOptions, cmd *cobra.Command) error {
			return runQuery(o, cmd, query.Filter{
				Kind:      object.KindAgentOperation,
				AgentID:   o.Agent,
				SessionID: o.Session,
			})
		})
	cmd.Flags().StringVar(&opts.Agent, "agent", "", "agent identifier")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session identifier")
	return cmd
}

func newQueryBindingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := newQuerySubcommand(opts, "bindings", "List code bindings",
		"telos query bindings --file internal/auth/session.go", func(o *QueryOptions, cmd *cobra.Command) error {
			return runQuery(o, cmd, query.Filter{
				Kind:   object.KindCodeBinding,
				Path:   o.File,
				Symbol: o.Symbol,
			})
		})
	cmd.Flags().StringVar(&opts.File, "file", "", "bound path")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "bound symbol")
	return cmd
}

func newQueryChangeSetsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := newQuerySubcommand(opts, "changesets", "List change sets",
		"telos query changesets --commit 3f2a9c1", func(o *QueryOptions, cmd *cobra.Command) error {
			return runQuery(o, cmd, query.Filter{Kind: object.KindChangeSet, Commit: o.Commit})
		})
	cmd.Flags().StringVar(&opts.Commit, "commit", "", "external commit")
	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command, f query.Filter) error {
	if opts.DB != "" {
		return withExport(opts.DB, func(st *export.Store) error {
			results, err := st.Select(cmd.Context(), f)
			if err != nil {
				return fail("query failed", err)
			}
			return emitResults(opts.RootOptions, cmd, results)
		})
	}

	r, err := opts.openRepo()
	if err != nil {
		return err
	}
	results, err := r.Query(cmd.Context(), f)
	if err != nil {
		return fail("query failed", err)
	}
	return emitResults(opts.RootOptions, cmd, results)
}

func runQueryForIntent(opts *QueryOptions, cmd *cobra.Command, f query.Filter) error {
	if opts.Intent != "" && opts.DB != "" {
		id, err := object.ParseID(opts.Intent)
		if err != nil {
			return fail("--intent needs a full ID with --db", err)
		}
		f.IntentID = id
	} else if opts.Intent != "" {
		r, err := opts.openRepo()
		if err != nil {
			return err
		}
		f.IntentID, _, err = r.ResolveAs(cmd.Context(), opts.Intent, object.KindIntent)
		if err != nil {
			return fail("invalid --intent", err)
		}
	}
	return runQuery(opts, cmd, f)
}

func runQueryConstraints(opts *QueryOptions, cmd *cobra.Command) error {
	f := query.Filter{Kind: object.KindConstraint, Impact: opts.Impact}
	switch status := strings.ToLower(opts.Status); status {
	case "all", "":
	case string(object.StatusActive), string(object.StatusSuperseded), string(object.StatusDeprecated):
		f.Status = object.Status(status)
	default:
		return NewExitError(ExitCommandError, "invalid --status: want active, superseded, deprecated or all")
	}
	if opts.File == "" && opts.Symbol == "" {
		return runQueryForIntent(opts, cmd, f)
	}
	if opts.File != "" && opts.Symbol != "" {
		return NewExitError(ExitCommandError, "--file and --symbol are mutually exclusive")
	}

	if opts.DB != "" {
		return NewExitError(ExitCommandError, "--file and --symbol are not supported with --db")
	}

	ctx := cmd.Context()
	r, err := opts.openRepo()
	if err != nil {
		return err
	}
	if opts.Intent != "" {
		if f.IntentID, _, err = r.ResolveAs(ctx, opts.Intent, object.KindIntent); err != nil {
			return fail("invalid --intent", err)
		}
	}

	var bound []query.Result
	if opts.File != "" {
		bound, err = r.Engine().ConstraintsForFile(ctx, opts.File)
	} else {
		bound, err = r.Engine().ConstraintsForSymbol(ctx, opts.Symbol)
	}
	if err != nil {
		return fail("query failed", err)
	}

	results := bound[:0]
	for _, res := range bound {
		if f.Matches(res.Object) {
			results = append(results, res)
		}
	}
	return emitResults(opts.RootOptions, cmd, results)
}

func emitResults(opts *RootOptions, cmd *cobra.Command, results []query.Result) error {
	return opts.formatter(cmd).Emit(viewsOf(results), func(w io.Writer) {
		writeResults(w, results)
	})
}

// withExport opens an existing export database for the duration of fn.
func withExport(path string, fn func(*export.Store) error) (err error) {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "cannot open export database", err)
	}
	st, err := export.Open(path)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot open export database", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = WrapExitError(ExitFailure, "cannot close export database", cerr)
		}
	}()
	return fn(st)
}
