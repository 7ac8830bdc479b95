package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/telos/internal/object"
	"github.com/roach88/telos/internal/repo"
)

// StreamOptions holds flags for the stream subcommands.
type StreamOptions struct {
	*RootOptions
	Description string
	Switch      bool
}

// StreamResult is the JSON output of stream create, switch and delete.
type StreamResult struct {
	Name     string    `json:"name"`
	Snapshot object.ID `json:"snapshot,omitempty"`
}

// NewStreamCommand creates the stream command group.
func NewStreamCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Manage intent streams",
		Long: `Intent streams are named lines of intent history, like branches. The
current stream receives new intents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newStreamCreateCommand(rootOpts))
	cmd.AddCommand(newStreamListCommand(rootOpts))
	cmd.AddCommand(newStreamSwitchCommand(rootOpts))
	cmd.AddCommand(newStreamDeleteCommand(rootOpts))

	return cmd
}

func newStreamCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StreamOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Fork a stream at the current tip",
		Long: `Create a stream starting at the current stream's tip. Names may be
hierarchical (feature/onboarding).

Example:
  telos stream create feature/onboarding -d "new user flow" --switch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreamCreate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "what the stream is for")
	cmd.Flags().BoolVar(&opts.Switch, "switch", false, "make the new stream current")

	return cmd
}

func runStreamCreate(opts *StreamOptions, name string, cmd *cobra.Command) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}

	snap, err := r.CreateStream(cmd.Context(), name, opts.Description)
	if err != nil {
		return fail(fmt.Sprintf("cannot create stream %s", name), err)
	}
	if opts.Switch {
		if err := r.SwitchStream(name); err != nil {
			return fail(fmt.Sprintf("stream %s created but not switched to", name), err)
		}
	}

	return opts.formatter(cmd).Emit(StreamResult{Name: name, Snapshot: snap}, func(w io.Writer) {
		fmt.Fprintf(w, "Created stream %s\n", name)
		if opts.Switch {
			fmt.Fprintf(w, "Switched to stream %s\n", name)
		}
	})
}

func newStreamListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List streams",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.openRepo()
			if err != nil {
				return err
			}
			streams, err := r.ListStreams()
			if err != nil {
				return fail("cannot list streams", err)
			}
			return rootOpts.formatter(cmd).Emit(streams, func(w io.Writer) {
				writeStreams(w, streams)
			})
		},
	}
}

func writeStreams(w io.Writer, streams []repo.Stream) {
	for _, s := range streams {
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-30s %s\n", marker, s.Name, tipLabel(s.Tip))
	}
}

func newStreamSwitchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "switch <name>",
		Short:         "Make a stream current",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.openRepo()
			if err != nil {
				return err
			}
			if err := r.SwitchStream(args[0]); err != nil {
				return fail(fmt.Sprintf("cannot switch to %s", args[0]), err)
			}
			return rootOpts.formatter(cmd).Emit(StreamResult{Name: args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Switched to stream %s\n", args[0])
			})
		},
	}
}

func newStreamDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <name>",
		Short:         "Delete a stream other than the current one",
		Long:          "Delete a stream reference. Objects it reached stay in the store.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rootOpts.openRepo()
			if err != nil {
				return err
			}
			if err := r.DeleteStream(args[0]); err != nil {
				return fail(fmt.Sprintf("cannot delete %s", args[0]), err)
			}
			return rootOpts.formatter(cmd).Emit(StreamResult{Name: args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted stream %s\n", args[0])
			})
		},
	}
}
