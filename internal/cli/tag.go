package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saimanas17/housing-price-prediction-mlops/version"
)

func tagCmd(g *globalFlags) *cobra.Command {
	var buildNumber string

	c := &cobra.Command{
		Use:   "tag",
		Short: "Print the image tag for a build number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			tag, err := version.Tag(buildNumber, cfg.VersionOptions())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tag)
			return err
		},
	}

	c.Flags().StringVarP(&buildNumber, "build-number", "b", os.Getenv("BUILD_NUMBER"), "CI build number")
	return c
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the deployer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deployer %s\n", Version)
			return err
		},
	}
}
