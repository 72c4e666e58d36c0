package manifest

import (
	"bytes"
	"context"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// Change describes the outcome of updating one manifest file.
type Change struct {
	Path     string
	Replaced int
	Changed  bool
	Previous []string
}

// Updater rewrites manifests stored in a billy filesystem, usually the
// worktree of the GitOps repository.
type Updater struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		u.logger = logger
	}
}

// NewUpdater returns an Updater over fs.
func NewUpdater(fs billy.Filesystem, opts ...UpdaterOption) *Updater {
	u := &Updater{fs: fs}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update points every container image of repository in the manifest at path
// to tag. A manifest that does not reference repository at all is an error,
// so a wrong path or repository cannot silently deploy nothing.
func (u *Updater) Update(ctx context.Context, path, repository, tag string) (*Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCancelled, "manifest update cancelled")
	}
	if _, err := domain.NewImage("", repository, tag); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "invalid image for manifest update")
	}

	info, err := u.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithContext(err, errors.CodeNotFound, "manifest not found",
				map[string]interface{}{"path": path})
		}
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to stat manifest",
			map[string]interface{}{"path": path})
	}

	original, err := util.ReadFile(u.fs, path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to read manifest",
			map[string]interface{}{"path": path})
	}

	previous, err := imagesOf(original, repository)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidManifest, "manifest is invalid before update",
			map[string]interface{}{"path": path})
	}

	updated, n, err := Rewrite(original, repository, tag)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New(errors.CodeNotFound, "manifest has no image for repository").
			WithContext("path", path).
			WithContext("repository", repository)
	}

	current, err := imagesOf(updated, repository)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidManifest, "rewritten manifest is invalid",
			map[string]interface{}{"path": path})
	}
	for _, image := range current {
		if _, t, _, _ := domain.SplitImage(image); t != tag {
			return nil, errors.New(errors.CodeInternal, "rewritten manifest still references another tag").
				WithContext("path", path).
				WithContext("image", image)
		}
	}

	change := &Change{
		Path:     path,
		Replaced: n,
		Changed:  !bytes.Equal(original, updated),
		Previous: previous,
	}

	if change.Changed {
		if err := util.WriteFile(u.fs, path, updated, info.Mode().Perm()); err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInternal, "failed to write manifest",
				map[string]interface{}{"path": path})
		}
	}

	if u.logger != nil {
		u.logger.InfoContext(ctx, "manifest updated",
			slog.String("path", path),
			slog.String("repository", repository),
			slog.String("tag", tag),
			slog.Int("replaced", n),
			slog.Bool("changed", change.Changed),
		)
	}

	return change, nil
}

// imagesOf returns the images in content that belong to repository.
func imagesOf(content []byte, repository string) ([]string, error) {
	all, err := Images(content)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, c := range all {
		if domain.SameRepository(c.Image, repository) {
			images = append(images, c.Image)
		}
	}
	return images, nil
}
