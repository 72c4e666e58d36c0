package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/manifest"
	"github.com/saimanas17/housing-price-prediction-mlops/version"
)

func manifestsCmd(g *globalFlags) *cobra.Command {
	c := &cobra.Command{
		Use:   "manifests",
		Short: "Inspect and update Kubernetes manifests",
	}
	c.AddCommand(manifestsUpdateCmd(g), manifestsShowCmd())
	return c
}

func manifestsUpdateCmd(g *globalFlags) *cobra.Command {
	var service, tag string

	c := &cobra.Command{
		Use:   "update",
		Short: "Point the manifests of a service at an image tag without building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := version.Validate(tag); err != nil {
				return err
			}
			sel, err := domain.ParseService(service)
			if err != nil {
				return errors.Wrap(err, errors.CodeInvalidInput, "invalid service")
			}

			logger, err := newLogger(cmd.ErrOrStderr(), g.debug, g.logFormat)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}

			updater := manifest.NewUpdater(osfs.New(cfg.Workspace), manifest.WithLogger(logger))
			out := cmd.OutOrStdout()
			for _, svc := range cfg.Select(sel) {
				repository := cfg.ImageRepository(svc)
				for _, path := range svc.Manifests {
					change, err := updater.Update(cmd.Context(), path, repository, tag)
					if err != nil {
						return err
					}
					state := "unchanged"
					if change.Changed {
						state = "updated"
					}
					fmt.Fprintf(out, "%s: %s:%s (%d reference(s) %s)\n", path, repository, tag, change.Replaced, state)
				}
			}
			return nil
		},
	}

	c.Flags().StringVarP(&service, "service", "s", string(domain.ServiceAll), "service: all|bento|frontend")
	c.Flags().StringVarP(&tag, "tag", "t", "", "image tag to deploy")
	_ = c.MarkFlagRequired("tag")
	return c
}

func manifestsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "List the container images of a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return errors.WrapWithContext(err, errors.CodeNotFound, "failed to read manifest",
					map[string]interface{}{"path": args[0]})
			}
			images, err := manifest.Images(content)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKLOAD\tCONTAINER\tIMAGE")
			for _, img := range images {
				container := img.Container
				if img.Init {
					container += " (init)"
				}
				fmt.Fprintf(tw, "%s/%s\t%s\t%s\n", img.Kind, img.Workload, container, img.Image)
			}
			return tw.Flush()
		},
	}
}
