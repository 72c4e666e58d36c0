// Package git provides the git operations the deployer needs for its GitOps
// flow: opening or cloning the workspace, fast-forwarding it, staging and
// committing rewritten manifests, and pushing them back.
//
// It is a thin, task-oriented facade over go-git and works on any go-billy
// filesystem, so the same code runs against the CI workspace on disk and
// against in-memory repositories in tests.
//
// # Basic Usage
//
//	repo, err := git.Open(ctx, &git.Options{FS: osfs.New(workspace)})
//	if err != nil {
//	    return err
//	}
//
//	if err := repo.PullFFOnly(ctx, ""); err != nil && !errors.Is(err, git.ErrAlreadyUpToDate) {
//	    return err
//	}
//
//	if err := repo.Add(ctx, "k8s/bento-deployment.yaml"); err != nil {
//	    return err
//	}
//	sha, err := repo.Commit(ctx, "chore(deploy): update images to v42", sig, git.CommitOpts{})
//
// # Authentication
//
// Remote operations resolve credentials per URL through an AuthProvider.
// HTTPSAuthProvider and SSHAuthProvider cover the common cases and
// CompositeAuthProvider chains them by URL pattern.
//
// # Errors
//
// Sentinel errors such as ErrAlreadyUpToDate, ErrEmptyCommit and
// ErrNotFastForward can be checked with errors.Is.
//
// # Concurrency
//
// A Repo is not safe for concurrent writes. Callers serialize access.
package git
