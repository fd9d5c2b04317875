// Package command implements the anima command line: rendering the testbed
// scene, dumping the standard render graph and projecting environments.
package command

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

// CLI is the state shared by every subcommand once flags are parsed.
type CLI struct {
	Out    io.Writer
	Config *core.Config

	configPath string
	logLevel   string
}

func NewCLI(out io.Writer) *CLI {
	return &CLI{Out: out, Config: core.DefaultConfig()}
}

// load resolves the configuration: defaults, then the --config file, then
// the --log-level override.
func (cli *CLI) load() error {
	cfg := core.DefaultConfig()
	if cli.configPath != "" {
		loaded, err := core.LoadConfig(cli.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cli.logLevel != "" {
		if _, err := core.ParseLogLevel(cli.logLevel); err != nil {
			return fmt.Errorf("%w: --log-level %q: %s", core.ErrInvalidConfig, cli.logLevel, err)
		}
		cfg.Logging.Level = cli.logLevel
	}
	core.SetLogLevel(cfg.LogLevel())
	cli.Config = cfg
	return nil
}

func (cli *CLI) Printf(format string, args ...interface{}) {
	fmt.Fprintf(cli.Out, format, args...)
}

func NewRootCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "anima",
		Short:         "Deferred render graph runner and tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.load()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "", "TOML configuration file")
	cmd.PersistentFlags().StringVar(&cli.logLevel, "log-level", "", "Override the configured log level (debug | info | warn | error)")
	return cmd
}

// AddCommands registers all subcommands to the root command.
func AddCommands(root *cobra.Command, cli *CLI) {
	root.AddCommand(
		NewRunCommand(cli),
		NewGraphCommand(cli),
		NewCubemapCommand(cli),
		NewConfigCommand(cli),
	)
}

func Execute() {
	cli := NewCLI(os.Stdout)
	root := NewRootCommand(cli)
	AddCommands(root, cli)
	if err := root.Execute(); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}
