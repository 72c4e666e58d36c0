package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/saimanas17/housing-price-prediction-mlops/builder"
	"github.com/saimanas17/housing-price-prediction-mlops/config"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/executor"
	"github.com/saimanas17/housing-price-prediction-mlops/git"
	"github.com/saimanas17/housing-price-prediction-mlops/pipeline"
	"github.com/saimanas17/housing-price-prediction-mlops/prompt"
	"github.com/saimanas17/housing-price-prediction-mlops/registry"
	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
	awsprovider "github.com/saimanas17/housing-price-prediction-mlops/secrets/providers/aws"
	envprovider "github.com/saimanas17/housing-price-prediction-mlops/secrets/providers/env"
)

// runDeps are the collaborators of a pipeline run.
type runDeps struct {
	runner  executor.Runner
	secrets *secrets.Manager
	auth    git.AuthProvider
	prompt  prompt.Prompter
}

// newRunDeps wires the collaborators described by cfg. Dry runs record
// commands instead of executing them.
func newRunDeps(ctx context.Context, cfg *config.Config, dryRun bool, in io.Reader, console io.Writer, logger *slog.Logger) (*runDeps, error) {
	mode, err := prompt.ParseMode(cfg.Prompt.Mode)
	if err != nil {
		return nil, err
	}

	manager, err := newSecrets(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	auth, err := newGitAuth(ctx, cfg, manager, dryRun, logger)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	var runner executor.Runner
	if dryRun {
		runner = executor.NewDryRun(logger)
	} else {
		runner = executor.New(executor.WithLogger(logger), executor.WithConsole(console, console))
	}

	return &runDeps{
		runner:  runner,
		secrets: manager,
		auth:    auth,
		prompt:  prompt.New(mode, in, console, logger),
	}, nil
}

func (d *runDeps) pipeline(cfg *config.Config, logger *slog.Logger) *pipeline.Runner {
	opts := []pipeline.Option{
		pipeline.WithBuilder(builder.New(d.runner, builder.WithLogger(logger))),
		pipeline.WithRegistry(registry.New(d.runner,
			registry.WithHost(cfg.RegistryHost()),
			registry.WithPushRetry(cfg.Registry.PushAttempts, cfg.Registry.PushBackoff),
			registry.WithPlainHTTP(cfg.Registry.PlainHTTP),
			registry.WithLogger(logger),
		)),
		pipeline.WithPrompter(d.prompt),
		pipeline.WithSecrets(d.secrets),
		pipeline.WithLogger(logger),
	}
	if d.auth != nil {
		opts = append(opts, pipeline.WithGitAuth(d.auth))
	}
	return pipeline.New(cfg, opts...)
}

func (d *runDeps) Close() error {
	return d.secrets.Close()
}

// newSecrets returns a manager whose default provider is the configured one.
func newSecrets(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*secrets.Manager, error) {
	var provider secrets.Provider
	switch cfg.Secrets.Provider {
	case "aws":
		p, err := awsprovider.New(ctx,
			awsprovider.WithRegion(cfg.Secrets.AWSRegion),
			awsprovider.WithEndpoint(cfg.Secrets.AWSEndpoint),
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to set up AWS Secrets Manager")
		}
		provider = p
	case "env", "":
		provider = envprovider.New(envprovider.WithPrefix(cfg.Secrets.EnvPrefix))
	default:
		return nil, errors.Newf(errors.CodeInvalidConfig, "unknown secrets provider %q", cfg.Secrets.Provider)
	}

	manager := secrets.NewManager(&secrets.Config{DefaultProvider: provider.Name(), Logger: logger})
	if err := manager.RegisterProvider(provider.Name(), provider); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to register secrets provider")
	}
	return manager, nil
}

// newGitAuth builds the git credentials: an HTTPS token for https remotes,
// then a key file and the SSH agent for SSH remotes. It returns nil when
// nothing is configured.
func newGitAuth(ctx context.Context, cfg *config.Config, source secrets.Resolver, dryRun bool, logger *slog.Logger) (git.AuthProvider, error) {
	auth := git.NewCompositeAuthProvider()

	if cfg.Git.Token != "" {
		secret, err := source.Resolve(ctx, secrets.SecretRef{Path: cfg.Git.Token})
		switch {
		case err == nil && cfg.Git.Username != "":
			auth.AddProvider(git.NewHTTPSAuthProvider(cfg.Git.Username, secret.String()), "https://")
		case err == nil:
			auth.AddProvider(git.NewHTTPSTokenProvider(secret.String()), "https://")
		case dryRun:
			if logger != nil {
				logger.WarnContext(ctx, "git token unavailable, continuing anonymously in dry run",
					slog.String("secret", cfg.Git.Token), slog.String("error", err.Error()))
			}
		default:
			return nil, errors.WrapWithContext(err, errors.CodeUnauthorized, "failed to resolve git token",
				map[string]interface{}{"secret": cfg.Git.Token})
		}
	}

	if cfg.Git.SSHKey != "" {
		key := git.NewSSHKeyProvider(cfg.Git.SSHKey, "").WithKnownHosts(cfg.Git.KnownHosts...)
		auth.AddProvider(key, "ssh://")
	}
	if cfg.Git.SSHAgent {
		agent := git.NewSSHAgentProvider().WithKnownHosts(cfg.Git.KnownHosts...)
		auth.AddProvider(agent, "ssh://")
	}

	if len(auth.Providers) == 0 {
		return nil, nil
	}
	return auth, nil
}
