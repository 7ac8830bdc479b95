package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/config"
	"github.com/roach88/telos/internal/repo"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	JSON    bool   // shorthand for --format json
	Dir     string // directory to discover the repository from

	// Clock overrides object timestamps (for testing).
	Clock repo.Clock

	// Sessions overrides the agent session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Sessions SessionGenerator

	level *slog.LevelVar
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the Telos CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telos",
		Short: "Telos - intent-aware version control",
		Long: `Telos records why code changes: intents, constraints, decisions and the
code they bind to, in a content-addressed store next to your source tree.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.JSON {
				opts.Format = "json"
			}
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.configureLogging(cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "shorthand for --format json")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", "", "run as if started in this directory")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewIntentCommand(opts))
	cmd.AddCommand(NewDecideCommand(opts))
	cmd.AddCommand(NewConstraintCommand(opts))
	cmd.AddCommand(NewSupersedeCommand(opts))
	cmd.AddCommand(NewDeprecateCommand(opts))
	cmd.AddCommand(NewBindCommand(opts))
	cmd.AddCommand(NewAgentLogCommand(opts))
	cmd.AddCommand(NewChangeSetCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewContextCommand(opts))
	cmd.AddCommand(NewStreamCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewFsckCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on stderr, or as a JSON error response on stdout when the
// JSON format is selected.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Commands wrap every failure they return; a bare error comes from
		// cobra's argument or flag validation.
		exitErr = WrapExitError(ExitCommandError, "invalid usage", err)
		err = exitErr
	}
	if exitErr.Silent {
		return exitErr.Code
	}
	if opts.Format == "json" || opts.JSON {
		f := &OutputFormatter{Format: "json", Writer: stdout}
		_ = f.Error(errorCode(err), err.Error(), nil)
	} else {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return GetExitCode(err)
}

// configureLogging installs a text handler on stderr. The level is Debug
// under --verbose and otherwise follows the repository's log_level once a
// repository is opened.
func (o *RootOptions) configureLogging(w io.Writer) {
	o.level = new(slog.LevelVar)
	if o.Verbose {
		o.level.Set(slog.LevelDebug)
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: o.level})
	slog.SetDefault(slog.New(handler))
}

// startDir returns --dir or the working directory.
func (o *RootOptions) startDir() (string, error) {
	if o.Dir != "" {
		return o.Dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", WrapExitError(ExitCommandError, "cannot determine working directory", err)
	}
	return wd, nil
}

func (o *RootOptions) repoOptions() []repo.Option {
	ropts := []repo.Option{repo.WithLogger(slog.Default())}
	if o.Clock != nil {
		ropts = append(ropts, repo.WithClock(o.Clock))
	}
	return ropts
}

// openRepo discovers the repository enclosing the start directory.
func (o *RootOptions) openRepo() (*repo.Repository, error) {
	dir, err := o.startDir()
	if err != nil {
		return nil, err
	}
	r, err := repo.Discover(dir, o.repoOptions()...)
	if err != nil {
		return nil, fail("not a Telos repository (run 'telos init')", err)
	}

	if o.level != nil && !o.Verbose {
		if lvl, err := config.ParseLevel(r.Config().LogLevel); err == nil {
			o.level.Set(lvl)
		}
	}
	return r, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
