// Package builder turns a service directory into a local container image by
// driving the bentoml and docker command-line tools.
package builder

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/executor"
)

// LatestTag is the floating tag applied next to the versioned one.
const LatestTag = "latest"

// Target describes one image to build.
type Target struct {
	// Service is the configured service name.
	Service string

	// Kind selects the builder.
	Kind domain.ServiceKind

	// Dir is the build directory, relative to the workspace or absolute.
	Dir string

	// Bento is the bento name for bento services (e.g. "housing-predictor").
	Bento string

	// Dockerfile is relative to Dir. Empty uses docker's default.
	Dockerfile string

	// BuildArgs is a shell-quoted list of KEY=VALUE docker build arguments.
	BuildArgs string

	// Image is the reference the build must produce.
	Image domain.Image

	// TagLatest also tags the image as :latest.
	TagLatest bool
}

// Validate checks the fields required by every builder.
func (t Target) Validate() error {
	if t.Service == "" {
		return errors.New(errors.CodeInvalidInput, "build target has no service")
	}
	if !t.Kind.Valid() {
		return errors.Newf(errors.CodeInvalidInput, "unknown build kind %q for service %s", t.Kind, t.Service)
	}
	if t.Image.Repository == "" || t.Image.Tag == "" {
		return errors.Newf(errors.CodeInvalidInput, "build target %s has no image", t.Service)
	}
	return nil
}

// Builder produces a local image for a target.
type Builder interface {
	Build(ctx context.Context, target Target) (*domain.Image, error)
}

// Option configures builders.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	runOpts []executor.Option
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRunOptions passes executor options to every command a builder runs,
// for example executor.WithConsole to stream tool output.
func WithRunOptions(opts ...executor.Option) Option {
	return func(o *options) {
		o.runOpts = append(o.runOpts, opts...)
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Kinds dispatches to a builder per service kind.
type Kinds map[domain.ServiceKind]Builder

// New returns the standard builders for every service kind.
func New(runner executor.Runner, opts ...Option) Kinds {
	return Kinds{
		domain.KindBento:  NewBento(runner, opts...),
		domain.KindDocker: NewDocker(runner, opts...),
	}
}

// Build implements Builder.
func (k Kinds) Build(ctx context.Context, target Target) (*domain.Image, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	b, ok := k[target.Kind]
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidInput, "no builder for kind %q", target.Kind)
	}
	return b.Build(ctx, target)
}

// Bento builds a bento and containerizes it.
type Bento struct {
	runner executor.Runner
	opts   options
}

// NewBento returns a Bento builder running commands through runner.
func NewBento(runner executor.Runner, opts ...Option) *Bento {
	return &Bento{runner: runner, opts: newOptions(opts)}
}

// builtBento matches the tag bentoml reports after a successful build.
var builtBento = regexp.MustCompile(`Bento\(tag="([^"]+)"\)`)

// Build implements Builder.
func (b *Bento) Build(ctx context.Context, target Target) (*domain.Image, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if target.Bento == "" {
		return nil, errors.Newf(errors.CodeInvalidInput, "bento service %s has no bento name", target.Service)
	}

	log(ctx, b.opts.logger, "building bento", target)

	res, err := b.runner.Run(ctx, executor.Command{
		Program: "bentoml",
		Args:    []string{"build"},
		Dir:     target.Dir,
	}, b.opts.runOpts...)
	if err != nil {
		return nil, buildFailed(err, target, "bentoml build failed")
	}

	bento := target.Bento + ":" + LatestTag
	if res != nil {
		if m := builtBento.FindStringSubmatch(res.Stdout + res.Combined); m != nil {
			bento = m[1]
		}
	}

	_, err = b.runner.Run(ctx, executor.Command{
		Program: "bentoml",
		Args:    []string{"containerize", bento, "-t", target.Image.Ref()},
		Dir:     target.Dir,
	}, b.opts.runOpts...)
	if err != nil {
		return nil, buildFailed(err, target, "bentoml containerize failed")
	}

	return finish(ctx, b.runner, b.opts, target)
}

// Docker runs docker build on a directory.
type Docker struct {
	runner executor.Runner
	opts   options
}

// NewDocker returns a Docker builder running commands through runner.
func NewDocker(runner executor.Runner, opts ...Option) *Docker {
	return &Docker{runner: runner, opts: newOptions(opts)}
}

// Build implements Builder.
func (d *Docker) Build(ctx context.Context, target Target) (*domain.Image, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	args, err := DockerBuildArgs(target)
	if err != nil {
		return nil, err
	}

	log(ctx, d.opts.logger, "building docker image", target)

	if _, err := d.runner.Run(ctx, executor.Command{
		Program: "docker",
		Args:    args,
		Dir:     target.Dir,
	}, d.opts.runOpts...); err != nil {
		return nil, buildFailed(err, target, "docker build failed")
	}

	return finish(ctx, d.runner, d.opts, target)
}

// DockerBuildArgs returns the docker arguments for building target from its
// directory.
func DockerBuildArgs(target Target) ([]string, error) {
	args := []string{"build", "-t", target.Image.Ref()}
	if target.Dockerfile != "" {
		args = append(args, "-f", target.Dockerfile)
	}

	buildArgs, err := shellquote.Split(target.BuildArgs)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "invalid build args",
			map[string]interface{}{"service": target.Service})
	}
	for _, a := range buildArgs {
		if !strings.Contains(a, "=") {
			return nil, errors.Newf(errors.CodeInvalidConfig,
				"build arg %q for service %s is not KEY=VALUE", a, target.Service)
		}
		args = append(args, "--build-arg", a)
	}

	return append(args, "."), nil
}

// finish applies the latest tag when requested and returns the built image.
func finish(ctx context.Context, runner executor.Runner, o options, target Target) (*domain.Image, error) {
	if target.TagLatest && target.Image.Tag != LatestTag {
		latest := target.Image.WithTag(LatestTag)
		if _, err := runner.Run(ctx, executor.Command{
			Program: "docker",
			Args:    []string{"tag", target.Image.Ref(), latest.Ref()},
		}, o.runOpts...); err != nil {
			return nil, buildFailed(err, target, "docker tag failed")
		}
	}

	img := target.Image
	img.Service = target.Service
	if o.logger != nil {
		o.logger.InfoContext(ctx, "image built", slog.String("service", target.Service), slog.String("image", img.Ref()))
	}
	return &img, nil
}

func buildFailed(err error, target Target, msg string) error {
	if errors.IsCancellation(err) {
		return err
	}
	return errors.WrapWithContext(err, errors.CodeBuildFailed, msg, map[string]interface{}{
		"service": target.Service,
		"image":   target.Image.Ref(),
	})
}

func log(ctx context.Context, logger *slog.Logger, msg string, target Target) {
	if logger == nil {
		return
	}
	logger.InfoContext(ctx, msg,
		slog.String("service", target.Service),
		slog.String("dir", target.Dir),
		slog.String("image", target.Image.Ref()),
	)
}
