package git

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// DefaultWorkdir is the default worktree directory name.
	DefaultWorkdir = "."

	// DefaultRemoteName is the default remote name used for operations.
	DefaultRemoteName = "origin"
)

// Options configures repository discovery/creation and performance.
type Options struct {
	// FS is the REQUIRED filesystem root (OS or in-memory).
	// All repository state lives within this filesystem.
	FS billy.Filesystem

	// Workdir is the path within FS for the worktree root.
	// Defaults to "." (the root of FS).
	Workdir string

	// StorerCacheSize sets the LRU objects cache entries.
	// Defaults to DefaultStorerCacheSize.
	StorerCacheSize int

	// Auth is an optional provider that resolves per-URL AuthMethod.
	// If nil, remote operations are anonymous.
	Auth AuthProvider

	// Branch selects the branch to clone. Empty clones the remote HEAD.
	Branch string

	// ShallowDepth sets the depth for shallow clones.
	// If 0, full clones are performed.
	ShallowDepth int

	// Logger receives records for remote operations. Nil disables logging.
	Logger *slog.Logger
}

// Validate checks that the Options are properly configured.
func (o *Options) Validate() error {
	if o.FS == nil {
		return WrapError(ErrInvalidRef, "FS is required")
	}

	if o.StorerCacheSize < 0 {
		return WrapError(ErrInvalidRef, "StorerCacheSize cannot be negative")
	}

	if o.ShallowDepth < 0 {
		return WrapError(ErrInvalidRef, "ShallowDepth cannot be negative")
	}

	return nil
}

// applyDefaults sets default values for any unset fields in Options.
func (o *Options) applyDefaults() {
	if o.Workdir == "" {
		o.Workdir = DefaultWorkdir
	}

	if o.StorerCacheSize == 0 {
		o.StorerCacheSize = DefaultStorerCacheSize
	}
}

// layout returns the worktree filesystem and the object storage below it.
func (o *Options) layout() (billy.Filesystem, *filesystem.Storage, error) {
	worktreeFS, err := o.FS.Chroot(o.Workdir)
	if err != nil {
		return nil, nil, WrapErrorf(err, "failed to chroot to workdir %q", o.Workdir)
	}

	dotGitFS, err := worktreeFS.Chroot(git.GitDirName)
	if err != nil {
		return nil, nil, WrapError(err, "failed to access .git directory")
	}

	storage := filesystem.NewStorage(dotGitFS, cache.NewObjectLRU(cache.FileSize(o.StorerCacheSize)))
	return worktreeFS, storage, nil
}

// AuthProvider resolves authentication methods for git operations.
type AuthProvider interface {
	// Method returns the appropriate transport.AuthMethod for the given remote URL.
	// Returns nil if no authentication is needed/available for this URL.
	Method(remoteURL string) (transport.AuthMethod, error)
}

// Signature identifies the author/committer of a commit.
type Signature struct {
	Name  string
	Email string

	// When is the timestamp. Zero means now.
	When time.Time
}

// CommitOpts configures commit creation behavior.
type CommitOpts struct {
	// AllowEmpty allows creating commits with no changes.
	AllowEmpty bool

	// SkipMessageCheck disables Conventional Commits validation.
	SkipMessageCheck bool

	// Only limits the commit to these paths. Anything else already staged
	// fails the commit with ErrUnrelatedStaged.
	Only []string
}

// Repo represents a git repository with a worktree.
type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	fs       billy.Filesystem
	options  Options
}

// Init creates a new repository in opts.FS.
func Init(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	worktreeFS, storage, err := opts.layout()
	if err != nil {
		return nil, err
	}

	repo, err := git.Init(storage, worktreeFS)
	if err != nil {
		return nil, WrapError(err, "failed to initialize repository")
	}

	return newRepo(repo, worktreeFS, opts)
}

// Open opens an existing repository in opts.FS. ErrNotRepository is returned
// when there is none.
func Open(ctx context.Context, opts *Options) (*Repo, error) {
	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	if err := ctx.Err(); err != nil {
		return nil, WrapError(err, "context cancelled")
	}

	worktreeFS, storage, err := opts.layout()
	if err != nil {
		return nil, err
	}

	repo, err := git.Open(storage, worktreeFS)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, WrapErrorf(ErrNotRepository, "no repository in %q", opts.Workdir)
		}
		return nil, WrapError(err, "failed to open repository")
	}

	return newRepo(repo, worktreeFS, opts)
}

// Clone clones remoteURL into opts.FS.
// Context timeout/cancellation is honored during the transfer.
func Clone(ctx context.Context, remoteURL string, opts *Options) (*Repo, error) {
	if remoteURL == "" {
		return nil, WrapError(ErrInvalidRef, "remote URL cannot be empty")
	}

	if err := opts.Validate(); err != nil {
		return nil, WrapError(err, "invalid options")
	}
	opts.applyDefaults()

	worktreeFS, storage, err := opts.layout()
	if err != nil {
		return nil, err
	}

	cloneOpts := &git.CloneOptions{
		URL:          remoteURL,
		Depth:        opts.ShallowDepth,
		SingleBranch: opts.ShallowDepth > 0 || opts.Branch != "",
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
	}

	if opts.Auth != nil {
		authMethod, authErr := opts.Auth.Method(remoteURL)
		if authErr != nil {
			return nil, WrapError(ErrAuthRequired, authErr.Error())
		}
		cloneOpts.Auth = authMethod
	}

	repo, err := git.CloneContext(ctx, storage, worktreeFS, cloneOpts)
	if err != nil {
		return nil, WrapError(mapRemoteError(err), "failed to clone repository")
	}

	if opts.Logger != nil {
		opts.Logger.InfoContext(ctx, "repository cloned", slog.String("url", redactURL(remoteURL)))
	}

	return newRepo(repo, worktreeFS, opts)
}

// OpenOrClone opens the repository in opts.FS, cloning remoteURL first when
// there is none and remoteURL is set.
func OpenOrClone(ctx context.Context, remoteURL string, opts *Options) (*Repo, bool, error) {
	repo, err := Open(ctx, opts)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, ErrNotRepository) || remoteURL == "" {
		return nil, false, err
	}

	repo, err = Clone(ctx, remoteURL, opts)
	if err != nil {
		return nil, false, err
	}
	return repo, true, nil
}

func newRepo(repo *git.Repository, worktreeFS billy.Filesystem, opts *Options) (*Repo, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree")
	}
	return &Repo{
		repo:     repo,
		worktree: worktree,
		fs:       worktreeFS,
		options:  *opts,
	}, nil
}

// Filesystem returns the worktree filesystem.
func (r *Repo) Filesystem() billy.Filesystem {
	return r.fs
}

// RemoteURL returns the first URL of the named remote.
func (r *Repo) RemoteURL(remote string) (string, error) {
	if remote == "" {
		remote = DefaultRemoteName
	}
	rem, err := r.repo.Remote(remote)
	if err != nil {
		if errors.Is(err, git.ErrRemoteNotFound) {
			return "", WrapErrorf(ErrResolveFailed, "remote %q not found", remote)
		}
		return "", WrapError(err, "failed to get remote configuration")
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", WrapErrorf(ErrResolveFailed, "remote %q has no URL", remote)
	}
	return urls[0], nil
}

// authFor resolves the auth method for a remote.
func (r *Repo) authFor(remote string) (transport.AuthMethod, error) {
	url, err := r.RemoteURL(remote)
	if err != nil {
		return nil, err
	}
	if r.options.Auth == nil {
		return nil, nil
	}
	method, err := r.options.Auth.Method(url)
	if err != nil {
		return nil, WrapError(ErrAuthRequired, err.Error())
	}
	return method, nil
}

// mapRemoteError maps go-git transport errors onto the package sentinels.
func mapRemoteError(err error) error {
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, git.ErrNonFastForwardUpdate), errors.Is(err, git.ErrForceNeeded),
		strings.Contains(err.Error(), "non-fast-forward"):
		return ErrNotFastForward
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapError(ErrResolveFailed, "remote not found")
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return WrapError(ErrAuthRequired, err.Error())
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return WrapError(ErrAuthFailed, err.Error())
	default:
		return err
	}
}
