package command

import "github.com/spf13/cobra"

func NewConfigCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cli.Config.Marshal()
			if err != nil {
				return err
			}
			_, err = cli.Out.Write(data)
			return err
		},
	}
}
