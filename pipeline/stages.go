package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/saimanas17/housing-price-prediction-mlops/builder"
	"github.com/saimanas17/housing-price-prediction-mlops/config"
	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/git"
	"github.com/saimanas17/housing-price-prediction-mlops/manifest"
	"github.com/saimanas17/housing-price-prediction-mlops/prompt"
	"github.com/saimanas17/housing-price-prediction-mlops/registry"
	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
	"github.com/saimanas17/housing-price-prediction-mlops/version"
)

// dryRunCredentials stand in for the registry login during dry runs so no
// secret is read.
var dryRunCredentials = registry.Credentials{Username: "dry-run", Password: "dry-run"}

// state is carried from stage to stage within one run.
type state struct {
	opts   Options
	tag    string
	report *domain.RunReport

	repo     *git.Repo
	services []config.ServiceConfig
	built    []domain.Image
	pushed   []string
	loggedIn bool
	changed  []string
}

// outcome is what a stage reports on success.
type outcome struct {
	skipped bool
	detail  string
}

func done(format string, args ...any) outcome {
	return outcome{detail: fmt.Sprintf(format, args...)}
}

func skipped(reason string) outcome {
	return outcome{skipped: true, detail: reason}
}

type stageFunc func(ctx context.Context, st *state) (outcome, error)

func (r *Runner) runStage(ctx context.Context, st *state, name string, fn stageFunc) error {
	res := st.report.Stage(name)
	res.Status = domain.StageStatusRunning
	res.StartedAt = r.now()
	r.info(ctx, "stage started", slog.String("stage", name))

	out, err := fn(ctx, st)
	res.Duration = r.now().Sub(res.StartedAt)
	res.Detail = out.detail

	switch {
	case err != nil:
		res.Status = domain.StageStatusFailed
		res.Error = err.Error()
		r.log(ctx, slog.LevelError, "stage failed", slog.String("stage", name), slog.String("error", err.Error()))
		return &StageError{Stage: name, Err: err}
	case out.skipped:
		res.Status = domain.StageStatusSkipped
		r.info(ctx, "stage skipped", slog.String("stage", name), slog.String("reason", out.detail))
	default:
		res.Status = domain.StageStatusSuccess
		r.info(ctx, "stage finished", slog.String("stage", name), slog.Duration("duration", res.Duration))
	}
	return nil
}

func skip(report *domain.RunReport, name, reason string) {
	res := report.Stage(name)
	res.Status = domain.StageStatusSkipped
	res.Detail = reason
}

func (r *Runner) checkout(ctx context.Context, st *state) (outcome, error) {
	opts := &git.Options{
		FS:     r.fs,
		Branch: r.cfg.Git.Branch,
		Auth:   r.gitAuth,
		Logger: r.logger,
	}

	var (
		repo   *git.Repo
		cloned bool
		err    error
	)
	if st.opts.DryRun {
		repo, cloned, err = r.openForDryRun(ctx, opts)
	} else {
		repo, cloned, err = git.OpenOrClone(ctx, r.cfg.Git.URL, opts)
	}
	if err != nil {
		return outcome{}, gitError(err, "failed to open workspace repository")
	}
	st.repo = repo

	if head, err := repo.Head(ctx); err == nil {
		r.info(ctx, "workspace checked out", slog.String("head", head), slog.Bool("cloned", cloned))
	}

	switch {
	case cloned:
		return done("cloned %s", r.cfg.Git.URL), nil
	case !r.cfg.Git.Pull:
		return done("opened workspace, pull disabled"), nil
	case st.opts.DryRun:
		return done("opened workspace, pull skipped in dry run"), nil
	}

	if _, err := repo.RemoteURL(r.cfg.Git.Remote); err != nil {
		return done("opened workspace, no remote %q", r.cfg.Git.Remote), nil
	}
	err = repo.PullFFOnly(ctx, r.cfg.Git.Remote)
	switch {
	case err == nil:
		return done("pulled %s", r.cfg.Git.Remote), nil
	case stderrors.Is(err, git.ErrAlreadyUpToDate):
		return done("already up to date"), nil
	default:
		return outcome{}, gitError(err, "failed to pull workspace")
	}
}

// openForDryRun opens the workspace read-only. A missing repository is
// cloned into memory so the workspace stays untouched.
func (r *Runner) openForDryRun(ctx context.Context, opts *git.Options) (*git.Repo, bool, error) {
	repo, err := git.Open(ctx, opts)
	if err == nil || !stderrors.Is(err, git.ErrNotRepository) || r.cfg.Git.URL == "" {
		return repo, false, err
	}
	memOpts := *opts
	memOpts.FS = memfs.New()
	repo, err = git.Clone(ctx, r.cfg.Git.URL, &memOpts)
	if err != nil {
		return nil, false, err
	}
	return repo, true, nil
}

func (r *Runner) selectServices(ctx context.Context, st *state) (outcome, error) {
	var (
		value  string
		source string
	)
	if st.opts.Service != "" {
		value, source = st.opts.Service, "flag"
	} else {
		answer, err := r.prompter.Choose(ctx, prompt.Question{
			Message: "Select the service to build and deploy",
			Choices: domain.ServiceNames(),
			Default: r.cfg.Prompt.Default,
			Timeout: r.cfg.Prompt.Timeout,
		})
		if err != nil {
			if errors.IsCancellation(err) {
				return outcome{}, errors.Wrap(err, errors.CodeCancelled, "service selection cancelled")
			}
			return outcome{}, err
		}
		value, source = answer.Value, "prompt"
		switch {
		case answer.TimedOut:
			source = "prompt timeout default"
		case answer.Defaulted:
			source = "default"
		}
	}

	sel, err := domain.ParseService(value)
	if err != nil {
		return outcome{}, errors.Wrap(err, errors.CodeInvalidInput, "invalid service selection")
	}
	services := r.cfg.Select(sel)
	if len(services) == 0 {
		return outcome{}, errors.Newf(errors.CodeInvalidConfig, "selection %q matches no configured service", sel)
	}

	st.services = services
	st.report.Selection = sel
	for _, svc := range services {
		st.report.Services = append(st.report.Services, svc.Name)
	}
	return done("%s (%s): %s", sel, source, strings.Join(st.report.Services, ", ")), nil
}

func (r *Runner) build(ctx context.Context, st *state) (outcome, error) {
	for _, svc := range st.services {
		image, err := domain.NewImage(svc.Name, r.cfg.ImageRepository(svc), st.tag)
		if err != nil {
			return outcome{}, errors.Wrap(err, errors.CodeInvalidConfig, "invalid image for service "+svc.Name)
		}

		built, err := r.builder.Build(ctx, builder.Target{
			Service:    svc.Name,
			Kind:       svc.Kind,
			Dir:        r.serviceDir(svc),
			Bento:      svc.Bento,
			Dockerfile: svc.Dockerfile,
			BuildArgs:  svc.BuildArgs,
			Image:      image,
			TagLatest:  r.cfg.Registry.TagLatest,
		})
		if err != nil {
			return outcome{}, err
		}
		st.built = append(st.built, *built)
	}
	st.report.Images = append([]domain.Image(nil), st.built...)
	return done("built %d image(s)", len(st.built)), nil
}

func (r *Runner) serviceDir(svc config.ServiceConfig) string {
	if filepath.IsAbs(svc.Dir) {
		return svc.Dir
	}
	return filepath.Join(r.cfg.Workspace, svc.Dir)
}

func (r *Runner) push(ctx context.Context, st *state) (outcome, error) {
	if st.opts.SkipPush {
		return skipped("push disabled"), nil
	}

	creds, err := r.registryCredentials(ctx, st.opts.DryRun)
	if err != nil {
		return outcome{}, err
	}
	if err := r.registry.Login(ctx, creds); err != nil {
		return outcome{}, err
	}
	st.loggedIn = true

	verify := r.cfg.Registry.Verify && !st.opts.DryRun
	for i, image := range st.built {
		refs := []string{image.Ref()}
		if r.cfg.Registry.TagLatest {
			refs = append(refs, image.WithTag(builder.LatestTag).Ref())
		}
		for _, ref := range refs {
			if err := r.registry.Push(ctx, ref); err != nil {
				return outcome{}, err
			}
			st.pushed = append(st.pushed, ref)
		}

		if verify {
			dgst, err := r.registry.Resolve(ctx, image.Ref())
			if err != nil {
				return outcome{}, err
			}
			st.built[i].Digest = dgst.String()
		}
	}
	st.report.Images = append([]domain.Image(nil), st.built...)
	return done("pushed %d reference(s)", len(st.pushed)), nil
}

func (r *Runner) registryCredentials(ctx context.Context, dryRun bool) (registry.Credentials, error) {
	if dryRun {
		return dryRunCredentials, nil
	}
	if r.secrets == nil {
		return registry.Credentials{}, errors.New(errors.CodeUnauthorized, "no secrets source configured for registry login")
	}
	creds, err := r.secrets.Credentials(ctx, secrets.SecretRef{Path: r.cfg.Registry.Credentials})
	if err != nil {
		return registry.Credentials{}, errors.WrapWithContext(err, errors.CodeUnauthorized,
			"failed to resolve registry credentials", map[string]interface{}{"secret": r.cfg.Registry.Credentials})
	}
	return registry.Credentials{Username: creds.Username, Password: creds.Password}, nil
}

func (r *Runner) updateManifests(ctx context.Context, st *state) (outcome, error) {
	fs := st.repo.Filesystem()
	if st.opts.DryRun {
		var err error
		if fs, err = copyManifests(fs, st.services); err != nil {
			return outcome{}, err
		}
	}
	updater := manifest.NewUpdater(fs, manifest.WithLogger(r.logger))

	replaced := 0
	for _, image := range st.built {
		svc, _ := r.cfg.Service(image.Service)
		for _, path := range svc.Manifests {
			change, err := updater.Update(ctx, path, image.Repository, image.Tag)
			if err != nil {
				return outcome{}, err
			}
			replaced += change.Replaced
			r.warnDowngrade(ctx, change, image.Tag)
			if change.Changed {
				st.changed = append(st.changed, change.Path)
			}
		}
	}
	st.report.Manifests = append([]string(nil), st.changed...)

	if len(st.changed) == 0 {
		return done("manifests already at %s", st.tag), nil
	}
	return done("updated %d image reference(s) in %d file(s)", replaced, len(st.changed)), nil
}

// warnDowngrade logs when a manifest is moved from a newer tag to tag.
func (r *Runner) warnDowngrade(ctx context.Context, change *manifest.Change, tag string) {
	for _, prev := range change.Previous {
		_, prevTag, _, err := domain.SplitImage(prev)
		if err != nil || prevTag == "" {
			continue
		}
		if cmp, err := version.Compare(prevTag, tag); err == nil && cmp > 0 {
			r.warn(ctx, "manifest moves to an older tag",
				slog.String("path", change.Path),
				slog.String("previous", prevTag),
				slog.String("tag", tag),
			)
		}
	}
}

// copyManifests copies the manifests of services into memory so a dry run
// can rewrite them without touching the worktree.
func copyManifests(src billy.Filesystem, services []config.ServiceConfig) (billy.Filesystem, error) {
	dst := memfs.New()
	for _, svc := range services {
		for _, path := range svc.Manifests {
			data, err := util.ReadFile(src, path)
			if err != nil {
				// Left for the updater to report as NOT_FOUND.
				continue
			}
			if err := util.WriteFile(dst, path, data, 0o644); err != nil {
				return nil, errors.Wrap(err, errors.CodeInternal, "failed to stage manifest for dry run")
			}
		}
	}
	return dst, nil
}

func (r *Runner) commit(ctx context.Context, st *state) (outcome, error) {
	switch {
	case st.opts.SkipCommit:
		return skipped("commit disabled"), nil
	case st.opts.DryRun:
		return skipped("dry run"), nil
	case st.opts.SkipPush:
		return skipped("push disabled, manifests reference unpushed images"), nil
	case len(st.changed) == 0:
		return skipped("no manifest changes"), nil
	}

	if err := st.repo.Add(ctx, st.changed...); err != nil {
		return outcome{}, gitError(err, "failed to stage manifests")
	}

	msg := git.DeployMessage(st.tag, st.report.Services...)
	sha, err := st.repo.Commit(ctx, msg, git.Signature{
		Name:  r.cfg.Git.AuthorName,
		Email: r.cfg.Git.AuthorEmail,
		When:  r.now(),
	}, git.CommitOpts{Only: st.changed})
	if err != nil {
		if stderrors.Is(err, git.ErrEmptyCommit) {
			return skipped("no manifest changes"), nil
		}
		return outcome{}, gitError(err, "failed to commit manifests")
	}
	st.report.Commit = sha

	if !r.cfg.Git.Push {
		return done("committed %s, push disabled", shortSHA(sha)), nil
	}
	err = st.repo.Push(ctx, r.cfg.Git.Remote)
	if err != nil && !stderrors.Is(err, git.ErrAlreadyUpToDate) {
		return outcome{}, gitError(err, "failed to push manifest commit")
	}
	return done("committed and pushed %s", shortSHA(sha)), nil
}

// cleanup removes local images and logs out. Failures are logged only.
// Images of a run with push disabled exist nowhere else and are kept.
func (r *Runner) cleanup(ctx context.Context, st *state) (outcome, error) {
	var notes []string

	if r.cfg.Registry.Cleanup && !st.opts.SkipPush && len(st.built) > 0 {
		var refs []string
		for _, image := range st.built {
			refs = append(refs, image.Ref())
			if r.cfg.Registry.TagLatest {
				refs = append(refs, image.WithTag(builder.LatestTag).Ref())
			}
		}
		if err := r.registry.Remove(ctx, refs...); err != nil {
			r.warn(ctx, "failed to remove local images", slog.String("error", err.Error()))
			notes = append(notes, "image removal failed")
		} else {
			notes = append(notes, fmt.Sprintf("removed %d local image(s)", len(refs)))
		}
	}

	if st.loggedIn {
		if err := r.registry.Logout(ctx); err != nil {
			r.warn(ctx, "registry logout failed", slog.String("error", err.Error()))
			notes = append(notes, "logout failed")
		} else {
			notes = append(notes, "logged out")
		}
	}

	if len(notes) == 0 {
		return skipped("nothing to clean up"), nil
	}
	return done("%s", strings.Join(notes, ", ")), nil
}

// gitError maps git sentinels onto coded errors.
func gitError(err error, msg string) error {
	code := errors.CodeVCSFailed
	switch {
	case errors.IsCancellation(err):
		code = errors.CodeCancelled
	case stderrors.Is(err, git.ErrAuthRequired), stderrors.Is(err, git.ErrAuthFailed):
		code = errors.CodeUnauthorized
	case stderrors.Is(err, git.ErrNotFastForward), stderrors.Is(err, git.ErrUnrelatedStaged):
		code = errors.CodeConflict
	case stderrors.Is(err, git.ErrNotRepository):
		msg += ": workspace is not a git repository and git.url is not set"
	}
	return errors.Wrap(err, code, msg)
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
