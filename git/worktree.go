package git

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Add stages files in the worktree for the next commit.
// It supports glob patterns and handles missing files appropriately.
// Files that don't exist are silently ignored (matching git add behavior).
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if err := ctx.Err(); err != nil {
		return WrapError(err, "context cancelled")
	}

	var pathsToAdd []string
	for _, path := range paths {
		if path == "" {
			continue
		}

		if strings.ContainsAny(path, "*?[") {
			matches, globErr := util.Glob(r.fs, path)
			if globErr != nil {
				return WrapErrorf(globErr, "invalid glob pattern %q", path)
			}
			pathsToAdd = append(pathsToAdd, matches...)
			continue
		}

		if _, err := r.fs.Stat(path); err == nil {
			pathsToAdd = append(pathsToAdd, path)
		}
	}

	for _, path := range pathsToAdd {
		if _, err := r.worktree.Add(path); err != nil {
			return WrapErrorf(err, "failed to add path %q", path)
		}
	}

	return nil
}

// Staged returns the paths with staged changes, sorted.
func (r *Repo) Staged(ctx context.Context) ([]string, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree status")
	}

	var staged []string
	for path, fileStatus := range status {
		if fileStatus.Staging != git.Untracked && fileStatus.Staging != git.Unmodified {
			staged = append(staged, path)
		}
	}
	sort.Strings(staged)
	return staged, nil
}

// Changed returns the paths that differ from HEAD in the index or the
// worktree, untracked files included, sorted.
func (r *Repo) Changed(ctx context.Context) ([]string, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return nil, WrapError(err, "failed to get worktree status")
	}

	var changed []string
	for path, fileStatus := range status {
		if fileStatus.Staging != git.Unmodified || fileStatus.Worktree != git.Unmodified {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// IsClean reports whether the worktree has no changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return false, WrapError(err, "failed to get worktree status")
	}
	return status.IsClean(), nil
}

// Commit creates a new commit with the specified message and author/committer.
// It returns the SHA of the new commit. Without staged changes it returns
// ErrEmptyCommit unless opts.AllowEmpty is set. The message must follow
// Conventional Commits unless opts.SkipMessageCheck is set.
func (r *Repo) Commit(ctx context.Context, msg string, who Signature, opts CommitOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", WrapError(err, "context cancelled")
	}

	if strings.TrimSpace(msg) == "" {
		return "", WrapError(ErrInvalidRef, "commit message cannot be empty")
	}

	if !opts.SkipMessageCheck {
		if err := ValidateCommitMessage(msg); err != nil {
			return "", err
		}
	}

	if who.Name == "" || who.Email == "" {
		return "", WrapError(ErrInvalidRef, "committer name and email are required")
	}
	if who.When.IsZero() {
		who.When = time.Now()
	}

	staged, err := r.Staged(ctx)
	if err != nil {
		return "", err
	}
	if len(staged) == 0 && !opts.AllowEmpty {
		return "", WrapError(ErrEmptyCommit, "no changes staged for commit")
	}
	if extra := outside(staged, opts.Only); len(extra) > 0 {
		return "", WrapErrorf(ErrUnrelatedStaged, "refusing to commit %s", strings.Join(extra, ", "))
	}

	sig := &object.Signature{Name: who.Name, Email: who.Email, When: who.When}
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrEmptyCommit
		}
		return "", WrapError(err, "failed to create commit")
	}

	return hash.String(), nil
}

// outside returns the staged paths not listed in only. An empty only
// allows everything.
func outside(staged, only []string) []string {
	if len(only) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(only))
	for _, p := range only {
		allowed[path.Clean(p)] = true
	}
	var extra []string
	for _, p := range staged {
		if !allowed[path.Clean(p)] {
			extra = append(extra, p)
		}
	}
	return extra
}
