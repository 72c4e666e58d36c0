package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/saimanas17/housing-price-prediction-mlops/pipeline"
)

type runFlags struct {
	service     string
	buildNumber string
	format      string
	promptMode  string
	dryRun      bool
	skipPush    bool
	skipCommit  bool
}

func runCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}

	c := &cobra.Command{
		Use:   "run",
		Short: "Build, push and deploy the selected services",
		Long: `run executes the deploy pipeline: checkout, select, build, push,
update-manifests and commit, followed by cleanup. Without --service the
operator is asked, and the configured default is used after the prompt
timeout or when no terminal is attached.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := pipeline.ParseFormat(f.format)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), g.debug, g.logFormat)
			if err != nil {
				return err
			}

			cfg, file, err := loadConfig(g)
			if err != nil {
				return err
			}
			if file != "" {
				logger.Debug("configuration loaded", "path", file)
			}
			if f.promptMode != "" {
				cfg.Prompt.Mode = f.promptMode
			}

			deps, err := newRunDeps(cmd.Context(), cfg, f.dryRun, cmd.InOrStdin(), cmd.ErrOrStderr(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close() }()

			report, runErr := deps.pipeline(cfg, logger).Run(cmd.Context(), pipeline.Options{
				BuildNumber: f.buildNumber,
				Service:     f.service,
				DryRun:      f.dryRun,
				SkipPush:    f.skipPush,
				SkipCommit:  f.skipCommit,
			})
			if report != nil {
				if err := pipeline.Render(cmd.OutOrStdout(), report, format); err != nil && runErr == nil {
					return err
				}
			}
			return runErr
		},
	}

	c.Flags().StringVarP(&f.service, "service", "s", os.Getenv("DEPLOYER_SERVICE"), "service to deploy: all|bento|frontend (prompts when empty)")
	c.Flags().StringVarP(&f.buildNumber, "build-number", "b", os.Getenv("BUILD_NUMBER"), "CI build number the image tag is derived from")
	c.Flags().StringVar(&f.format, "format", "pretty", "report format: pretty|json")
	c.Flags().StringVar(&f.promptMode, "prompt", "", "prompt mode: auto|tui|line|none (overrides configuration)")
	c.Flags().BoolVar(&f.dryRun, "dry-run", false, "print commands instead of running them and leave the repository untouched")
	c.Flags().BoolVar(&f.skipPush, "skip-push", false, "build without pushing images; implies no commit")
	c.Flags().BoolVar(&f.skipCommit, "skip-commit", false, "update manifests without committing them")
	return c
}
