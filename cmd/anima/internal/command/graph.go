package command

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/pipeline"
)

type GraphOptions struct {
	Output   string
	Width    uint32
	Height   uint32
	Unplaced bool
}

// placeholder handles for the imported resources; the graph is compiled
// but never executed
const (
	importPresent framegraph.Handle = iota + 1
	importIrradiance
	importPreFilter
)

func NewGraphCommand(cli *CLI) *cobra.Command {
	var opts GraphOptions
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Compile the standard render graph and write it in Graphviz format",
		Long: "Compile the standard deferred render graph and write it as a Graphviz\n" +
			"digraph. Pass labels carry their execution index unless --unplaced is set.\n",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Width == 0 {
				opts.Width = cli.Config.Renderer.Width
			}
			if opts.Height == 0 {
				opts.Height = cli.Config.Renderer.Height
			}
			var out io.Writer = cli.Out
			if opts.Output != "" && opts.Output != "-" {
				f, err := os.Create(opts.Output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeStdGraph(out, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file, stdout when empty")
	cmd.Flags().Uint32Var(&opts.Width, "width", 0, "Render width, defaults to the configured one")
	cmd.Flags().Uint32Var(&opts.Height, "height", 0, "Render height, defaults to the configured one")
	cmd.Flags().BoolVar(&opts.Unplaced, "unplaced", false, "Omit the execution order from pass labels")
	return cmd
}

func writeStdGraph(w io.Writer, opts GraphOptions) error {
	g := framegraph.NewGraph(pipeline.GraphName)
	reg := framegraph.NewRegistry()
	pipeline.BuildStdGraph(g, reg, opts.Width, opts.Height, pipeline.Imports{
		Present:    importPresent,
		Irradiance: importIrradiance,
		PreFilter:  importPreFilter,
	})
	plan, err := framegraph.NewCompiler().Compile(g, reg)
	if err != nil {
		return err
	}
	if opts.Unplaced {
		plan = nil
	}
	return framegraph.WriteDOT(w, g, plan)
}
