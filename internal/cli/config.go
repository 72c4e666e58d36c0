package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func configCmd(g *globalFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect the deployer configuration",
	}

	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, file, err := loadConfig(g)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			if file == "" {
				file = "built-in defaults"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "# source: %s\n", file)
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return c
}
