package git

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushThenClone(t *testing.T) {
	ctx := context.Background()
	url := newRemote(t, map[string]string{"k8s/bento-deployment.yaml": "image: user/housing-bento:v1\n"})

	repo, fs := cloneRemote(t, url)
	writeFile(t, fs, "k8s/bento-deployment.yaml", "image: user/housing-bento:v7\n")
	require.NoError(t, repo.Add(ctx, "k8s/bento-deployment.yaml"))
	sha, err := repo.Commit(ctx, DeployMessage("v7", "bento"), testSig, CommitOpts{})
	require.NoError(t, err)

	require.NoError(t, repo.Push(ctx, ""))

	err = repo.Push(ctx, "")
	assert.ErrorIs(t, err, ErrAlreadyUpToDate)

	other, otherFS := cloneRemote(t, url)
	head, err := other.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, sha, head)

	content, err := util.ReadFile(otherFS, "k8s/bento-deployment.yaml")
	require.NoError(t, err)
	assert.Equal(t, "image: user/housing-bento:v7\n", string(content))
}

func TestPullFFOnly(t *testing.T) {
	ctx := context.Background()
	url := newRemote(t, map[string]string{"a.txt": "a"})

	first, _ := cloneRemote(t, url)
	second, secondFS := cloneRemote(t, url)

	err := first.PullFFOnly(ctx, "")
	assert.ErrorIs(t, err, ErrAlreadyUpToDate)

	writeFile(t, secondFS, "b.txt", "b")
	require.NoError(t, second.Add(ctx, "b.txt"))
	sha, err := second.Commit(ctx, "feat: add b", testSig, CommitOpts{})
	require.NoError(t, err)
	require.NoError(t, second.Push(ctx, ""))

	require.NoError(t, first.PullFFOnly(ctx, ""))
	head, err := first.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, sha, head)

	content, err := util.ReadFile(first.Filesystem(), "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b", string(content))
}

func TestPushDiverged(t *testing.T) {
	ctx := context.Background()
	url := newRemote(t, map[string]string{"a.txt": "a"})

	first, firstFS := cloneRemote(t, url)
	second, secondFS := cloneRemote(t, url)

	writeFile(t, secondFS, "b.txt", "b")
	require.NoError(t, second.Add(ctx, "b.txt"))
	_, err := second.Commit(ctx, "feat: add b", testSig, CommitOpts{})
	require.NoError(t, err)
	require.NoError(t, second.Push(ctx, ""))

	writeFile(t, firstFS, "c.txt", "c")
	require.NoError(t, first.Add(ctx, "c.txt"))
	_, err = first.Commit(ctx, "feat: add c", testSig, CommitOpts{})
	require.NoError(t, err)

	err = first.Push(ctx, "")
	assert.ErrorIs(t, err, ErrNotFastForward)
}

func TestPushUnknownRemote(t *testing.T) {
	ctx := context.Background()
	url := newRemote(t, map[string]string{"a.txt": "a"})
	repo, _ := cloneRemote(t, url)

	err := repo.Push(ctx, "upstream")
	assert.ErrorIs(t, err, ErrResolveFailed)

	err = repo.PullFFOnly(ctx, "upstream")
	assert.ErrorIs(t, err, ErrResolveFailed)
}
