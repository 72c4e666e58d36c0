// Package pipeline runs the deployer stages in order: checkout, select,
// build, push, update-manifests and commit, followed by an always-run
// cleanup stage.
//
// Stages run sequentially on the calling goroutine. The first failing stage
// stops the run, every later stage is reported as SKIPPED and cleanup still
// runs. Run returns the report together with a *StageError naming the stage
// that failed.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/opencontainers/go-digest"

	"github.com/saimanas17/housing-price-prediction-mlops/builder"
	"github.com/saimanas17/housing-price-prediction-mlops/config"
	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/git"
	"github.com/saimanas17/housing-price-prediction-mlops/prompt"
	"github.com/saimanas17/housing-price-prediction-mlops/registry"
	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
	"github.com/saimanas17/housing-price-prediction-mlops/version"
)

// Stage names in run order.
const (
	StageCheckout  = "checkout"
	StageSelect    = "select"
	StageBuild     = "build"
	StagePush      = "push"
	StageManifests = "update-manifests"
	StageCommit    = "commit"
	StageCleanup   = "cleanup"
)

// DefaultCleanupTimeout bounds the cleanup stage, which runs even after the
// run context is cancelled.
const DefaultCleanupTimeout = 2 * time.Minute

// Stages returns the stage names in run order.
func Stages() []string {
	return []string{StageCheckout, StageSelect, StageBuild, StagePush, StageManifests, StageCommit, StageCleanup}
}

// Registry is the registry client used by the push and cleanup stages.
type Registry interface {
	Login(ctx context.Context, creds registry.Credentials) error
	Push(ctx context.Context, ref string) error
	Resolve(ctx context.Context, ref string) (digest.Digest, error)
	Remove(ctx context.Context, refs ...string) error
	Logout(ctx context.Context) error
}

// CredentialSource resolves username/password secrets.
type CredentialSource interface {
	Credentials(ctx context.Context, ref secrets.SecretRef) (secrets.Credentials, error)
}

// Options controls a single run.
type Options struct {
	// BuildNumber is the CI build number the tag is derived from.
	BuildNumber string

	// Service is an explicit selection. Empty asks the prompter.
	Service string

	// DryRun records external commands instead of running them and leaves
	// the workspace and remote untouched.
	DryRun bool

	// SkipPush keeps the built images local. Manifests are still rewritten
	// in the workspace but never committed, and the images are not removed.
	SkipPush   bool
	SkipCommit bool
}

// Runner executes deployer runs.
type Runner struct {
	cfg *config.Config

	fs       billy.Filesystem
	builder  builder.Builder
	registry Registry
	prompter prompt.Prompter
	secrets  CredentialSource
	gitAuth  git.AuthProvider

	logger         *slog.Logger
	now            func() time.Time
	cleanupTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithFilesystem sets the workspace filesystem. Defaults to the OS
// filesystem rooted at the configured workspace.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(r *Runner) {
		r.fs = fs
	}
}

// WithBuilder sets the image builder.
func WithBuilder(b builder.Builder) Option {
	return func(r *Runner) {
		r.builder = b
	}
}

// WithRegistry sets the registry client.
func WithRegistry(reg Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithPrompter sets the prompter used when no service is given.
// Defaults to answering with the configured default.
func WithPrompter(p prompt.Prompter) Option {
	return func(r *Runner) {
		r.prompter = p
	}
}

// WithSecrets sets the credential source for the registry login.
func WithSecrets(s CredentialSource) Option {
	return func(r *Runner) {
		r.secrets = s
	}
}

// WithGitAuth sets the authentication used for clone, pull and push.
func WithGitAuth(auth git.AuthProvider) Option {
	return func(r *Runner) {
		r.gitAuth = auth
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithCleanupTimeout bounds the cleanup stage.
func WithCleanupTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.cleanupTimeout = d
	}
}

// New returns a Runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:            cfg,
		prompter:       prompt.Static{},
		now:            time.Now,
		cleanupTimeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fs == nil {
		r.fs = osfs.New(cfg.Workspace)
	}
	return r
}

// Tag returns the image tag for buildNumber under the runner's configuration.
func (r *Runner) Tag(buildNumber string) (string, error) {
	return version.Tag(buildNumber, r.cfg.VersionOptions())
}

// Run executes one deployer run. The report is returned even when a stage
// fails.
func (r *Runner) Run(ctx context.Context, opts Options) (*domain.RunReport, error) {
	if r.builder == nil || r.registry == nil {
		return nil, errors.New(errors.CodeInternal, "pipeline runner is missing a builder or registry")
	}

	tag, err := r.Tag(opts.BuildNumber)
	if err != nil {
		return nil, err
	}

	report := &domain.RunReport{
		BuildNumber: opts.BuildNumber,
		Tag:         tag,
		DryRun:      opts.DryRun,
		StartedAt:   r.now(),
	}
	for _, name := range Stages() {
		report.Stages = append(report.Stages, domain.StageResult{Name: name, Status: domain.StageStatusPending})
	}

	st := &state{opts: opts, tag: tag, report: report}
	r.info(ctx, "deployer run started",
		slog.String("build_number", opts.BuildNumber),
		slog.String("tag", tag),
		slog.Bool("dry_run", opts.DryRun),
	)

	steps := []struct {
		name string
		fn   stageFunc
	}{
		{StageCheckout, r.checkout},
		{StageSelect, r.selectServices},
		{StageBuild, r.build},
		{StagePush, r.push},
		{StageManifests, r.updateManifests},
		{StageCommit, r.commit},
	}

	var runErr error
	for _, step := range steps {
		if runErr != nil {
			skip(report, step.name, "previous stage failed")
			continue
		}
		runErr = r.runStage(ctx, st, step.name, step.fn)
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cleanupTimeout)
	defer cancel()
	_ = r.runStage(cleanupCtx, st, StageCleanup, r.cleanup)

	report.EndedAt = r.now()
	if runErr != nil {
		r.log(ctx, slog.LevelError, "deployer run failed", slog.String("error", runErr.Error()))
		return report, runErr
	}
	r.info(ctx, "deployer run finished", slog.Duration("duration", report.Duration()))
	return report, nil
}

func (r *Runner) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if r.logger != nil {
		r.logger.Log(ctx, level, msg, attrs...)
	}
}

func (r *Runner) info(ctx context.Context, msg string, attrs ...any) {
	r.log(ctx, slog.LevelInfo, msg, attrs...)
}

func (r *Runner) warn(ctx context.Context, msg string, attrs ...any) {
	r.log(ctx, slog.LevelWarn, msg, attrs...)
}
