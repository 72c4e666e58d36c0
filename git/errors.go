package git

import (
	"errors"
	"fmt"
)

// Common sentinel errors that can be checked with errors.Is().
// These wrap underlying go-git errors while providing a stable API for consumers.

// ErrAlreadyUpToDate is returned when pull or push operations result in no
// changes because the local and remote states are already synchronized.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrAuthRequired is returned when an operation requires authentication
// but no credentials were provided or available.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthFailed is returned when authentication was attempted but failed
// (invalid credentials, expired tokens, etc.).
var ErrAuthFailed = errors.New("authentication failed")

// ErrNotFastForward is returned when a push or pull operation cannot be performed
// as a fast-forward and requires manual reconciliation.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrEmptyCommit is returned when a commit is requested without staged changes.
var ErrEmptyCommit = errors.New("nothing to commit")

// ErrNotRepository is returned when opening a location that holds no repository.
var ErrNotRepository = errors.New("not a git repository")

// ErrInvalidRef is returned when a reference name, option or argument is
// malformed.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when a revision or remote cannot be resolved
// (e.g. detached HEAD, unknown remote, empty repository).
var ErrResolveFailed = errors.New("cannot resolve revision")

// ErrInvalidCommitMessage is returned when a commit message does not follow
// the Conventional Commits format.
var ErrInvalidCommitMessage = errors.New("invalid commit message")

// ErrUnrelatedStaged is returned when the index holds changes outside the
// paths a commit is restricted to.
var ErrUnrelatedStaged = errors.New("unrelated changes staged")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
