package git

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

var (
	installOnce sync.Once
	loader      = server.MapLoader{}
	loaderMu    sync.Mutex
	remoteSeq   atomic.Int64
)

var testSig = Signature{Name: "Jenkins", Email: "jenkins@example.com", When: time.Unix(1700000000, 0)}

// newRemote creates an in-memory repository served over file:// with one
// commit on master holding the given files.
func newRemote(t *testing.T, files map[string]string) string {
	t.Helper()

	installOnce.Do(func() {
		client.InstallProtocol("file", server.NewClient(loader))
	})

	st := memory.NewStorage()
	fs := memfs.New()
	repo, err := gogit.Init(st, fs)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)
	for path, content := range files {
		require.NoError(t, util.WriteFile(fs, path, []byte(content), 0o644))
		_, err := wt.Add(path)
		require.NoError(t, err)
	}
	_, err = wt.Commit("chore: initial commit", &gogit.CommitOptions{
		Author:            &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Unix(1600000000, 0)},
		AllowEmptyCommits: len(files) == 0,
	})
	require.NoError(t, err)

	url := fmt.Sprintf("file:///remote-%d.git", remoteSeq.Add(1))
	loaderMu.Lock()
	loader[url] = st
	loaderMu.Unlock()
	return url
}

func cloneRemote(t *testing.T, url string) (*Repo, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	repo, err := Clone(context.Background(), url, &Options{FS: fs})
	require.NoError(t, err)
	return repo, fs
}

func writeFile(t *testing.T, fs billy.Filesystem, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, path, []byte(content), 0o644))
}
