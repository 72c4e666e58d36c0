package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
)

// CurrentBranch returns the name of the currently checked out branch.
// It returns an error if HEAD is in a detached state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(ErrResolveFailed, "failed to get HEAD reference")
	}

	if !head.Name().IsBranch() {
		return "", WrapError(ErrResolveFailed, "HEAD is detached")
	}

	return head.Name().Short(), nil
}

// Head returns the commit SHA HEAD points to.
func (r *Repo) Head(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", WrapError(ErrResolveFailed, "repository has no commits")
		}
		return "", WrapError(err, "failed to get HEAD reference")
	}
	return head.Hash().String(), nil
}

// HeadMessage returns the message of the HEAD commit.
func (r *Repo) HeadMessage(ctx context.Context) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", WrapError(ErrResolveFailed, "failed to get HEAD reference")
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", WrapError(err, "failed to read HEAD commit")
	}
	return commit.Message, nil
}
