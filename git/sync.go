package git

import (
	"context"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// PullFFOnly performs a fast-forward only pull of the current branch.
// Returns ErrNotFastForward if a merge commit would be required.
// Returns ErrAlreadyUpToDate if there are no changes to pull.
//
// Context timeout/cancellation is honored during the pull operation.
func (r *Repo) PullFFOnly(ctx context.Context, remote string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	authMethod, err := r.authFor(remote)
	if err != nil {
		return err
	}

	head, err := r.repo.Head()
	if err != nil {
		return WrapError(ErrResolveFailed, "failed to get HEAD reference")
	}

	pullOpts := &git.PullOptions{
		RemoteName:    remote,
		ReferenceName: head.Name(),
		SingleBranch:  true,
		Auth:          authMethod,
	}

	if err := r.worktree.PullContext(ctx, pullOpts); err != nil {
		return WrapError(mapRemoteError(err), "failed to pull from remote")
	}

	r.log(ctx, "pulled from remote", slog.String("remote", remote), slog.String("branch", head.Name().Short()))
	return nil
}

// Push pushes the current branch to the same branch on remote.
// Returns ErrNotFastForward if the remote has diverged.
// Returns ErrAlreadyUpToDate if there are no changes to push.
//
// Context timeout/cancellation is honored during the push operation.
func (r *Repo) Push(ctx context.Context, remote string) error {
	if remote == "" {
		remote = DefaultRemoteName
	}

	authMethod, err := r.authFor(remote)
	if err != nil {
		return err
	}

	branch, err := r.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	ref := plumbing.NewBranchReferenceName(branch)

	pushOpts := &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       authMethod,
	}

	if err := r.repo.PushContext(ctx, pushOpts); err != nil {
		return WrapError(mapRemoteError(err), "failed to push to remote")
	}

	r.log(ctx, "pushed to remote", slog.String("remote", remote), slog.String("branch", branch))
	return nil
}

func (r *Repo) log(ctx context.Context, msg string, attrs ...any) {
	if r.options.Logger != nil {
		r.options.Logger.InfoContext(ctx, msg, attrs...)
	}
}
