package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/repo"
)

// InitResult is the JSON output of init.
type InitResult struct {
	Root   string `json:"root"`
	Dir    string `json:"dir"`
	Stream string `json:"stream"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty Telos repository",
		Long: `Create an empty Telos repository (.telos/) in the current directory, or
the directory given with --dir. HEAD selects the "main" stream.

Example:
  telos init
  telos -C ./project init`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	dir, err := opts.startDir()
	if err != nil {
		return err
	}
	r, err := repo.Init(cmd.Context(), dir, opts.repoOptions()...)
	if err != nil {
		return fail("failed to initialize repository", err)
	}

	result := InitResult{Root: r.Root(), Dir: r.Dir(), Stream: repo.DefaultStream}
	return opts.formatter(cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Initialized empty Telos repository in %s\n", r.Dir())
	})
}
