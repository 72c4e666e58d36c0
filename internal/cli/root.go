// Package cli implements the deployer command line.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/saimanas17/housing-price-prediction-mlops/config"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

type globalFlags struct {
	configPath string
	debug      bool
	logFormat  string
}

// Execute runs the deployer command line until ctx is cancelled.
func Execute(ctx context.Context) error {
	return newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "deployer",
		Short: "Build, push and roll out the housing price prediction services",
		Long: `deployer builds the BentoML model service and the frontend image, pushes
them to the registry, points the Kubernetes manifests at the new tag and
commits the manifests so ArgoCD can roll them out.`,
		SilenceUsage: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "configuration file (default ./deployer.yaml)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format: text|json")

	cmd.AddCommand(
		runCmd(g),
		tagCmd(g),
		manifestsCmd(g),
		configCmd(g),
		versionCmd(),
	)
	return cmd
}

func loadConfig(g *globalFlags) (*config.Config, string, error) {
	return config.Load(config.LoadOptions{Path: g.configPath})
}
