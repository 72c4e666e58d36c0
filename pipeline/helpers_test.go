package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"

	"github.com/saimanas17/housing-price-prediction-mlops/builder"
	"github.com/saimanas17/housing-price-prediction-mlops/config"
	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/git"
	"github.com/saimanas17/housing-price-prediction-mlops/prompt"
	"github.com/saimanas17/housing-price-prediction-mlops/registry"
	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
	"github.com/saimanas17/housing-price-prediction-mlops/secrets/providers/memory"
)

const (
	bentoPath    = "k8s/bento-deployment.yaml"
	frontendPath = "k8s/frontend-deployment.yaml"
)

func deployment(name, image string) string {
	return fmt.Sprintf(`apiVersion: apps/v1
kind: Deployment
metadata:
  name: %[1]s
spec:
  replicas: 1
  selector:
    matchLabels:
      app: %[1]s
  template:
    metadata:
      labels:
        app: %[1]s
    spec:
      containers:
        - name: %[1]s
          image: %[2]s # bumped by CI
`, name, image)
}

// newWorkspace returns a filesystem holding a committed GitOps repository
// with both default manifests at tag v1.
func newWorkspace(t *testing.T) billy.Filesystem {
	t.Helper()
	ctx := context.Background()

	fs := memfs.New()
	repo, err := git.Init(ctx, &git.Options{FS: fs})
	require.NoError(t, err)

	wt := repo.Filesystem()
	require.NoError(t, util.WriteFile(wt, bentoPath,
		[]byte(deployment("housing-predictor", "saimanas17/housing-predictor:v1")), 0o644))
	require.NoError(t, util.WriteFile(wt, frontendPath,
		[]byte(deployment("housing-frontend", "saimanas17/housing-frontend:v1")), 0o644))
	require.NoError(t, repo.Add(ctx, "k8s/*.yaml"))
	_, err = repo.Commit(ctx, "chore: seed manifests",
		git.Signature{Name: "Jenkins", Email: "jenkins@example.com", When: time.Unix(1700000000, 0)},
		git.CommitOpts{})
	require.NoError(t, err)
	return fs
}

func openWorkspace(t *testing.T, fs billy.Filesystem) *git.Repo {
	t.Helper()
	repo, err := git.Open(context.Background(), &git.Options{FS: fs})
	require.NoError(t, err)
	return repo
}

func readFile(t *testing.T, fs billy.Filesystem, path string) string {
	t.Helper()
	data, err := util.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workspace = "/ws"
	cfg.Git.Push = false
	cfg.Git.AuthorEmail = "jenkins@example.com"
	return cfg
}

func testSecrets(t *testing.T) *secrets.Manager {
	t.Helper()
	m := secrets.NewManager(&secrets.Config{DefaultProvider: "memory"})
	require.NoError(t, m.RegisterProvider("memory", memory.NewWith(map[string]string{
		"dockerhub-creds": "saimanas17:s3cret",
	})))
	return m
}

type fakeBuilder struct {
	mu      sync.Mutex
	targets []builder.Target
	fail    map[string]error
	onBuild func(target builder.Target)
}

func (b *fakeBuilder) Build(ctx context.Context, target builder.Target) (*domain.Image, error) {
	b.mu.Lock()
	b.targets = append(b.targets, target)
	b.mu.Unlock()

	if b.onBuild != nil {
		b.onBuild(target)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.fail[target.Service]; err != nil {
		return nil, err
	}
	img := target.Image
	return &img, nil
}

func (b *fakeBuilder) services() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, t := range b.targets {
		out = append(out, t.Service)
	}
	return out
}

type fakeRegistry struct {
	mu       sync.Mutex
	logins   []registry.Credentials
	pushed   []string
	resolved []string
	removed  []string
	logouts  int

	loginErr  error
	pushErr   error
	removeErr error
	digest    digest.Digest

	cleanupCtxErr error
}

func (r *fakeRegistry) Login(_ context.Context, creds registry.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, creds)
	return r.loginErr
}

func (r *fakeRegistry) Push(_ context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pushErr != nil {
		return r.pushErr
	}
	r.pushed = append(r.pushed, ref)
	return nil
}

func (r *fakeRegistry) Resolve(_ context.Context, ref string) (digest.Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, ref)
	return r.digest, nil
}

func (r *fakeRegistry) Remove(ctx context.Context, refs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupCtxErr = ctx.Err()
	r.removed = append(r.removed, refs...)
	return r.removeErr
}

func (r *fakeRegistry) Logout(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logouts++
	return nil
}

// recordingPrompter answers with a fixed answer and keeps the question.
type recordingPrompter struct {
	answer   prompt.Answer
	err      error
	question *prompt.Question
	calls    int
}

func (p *recordingPrompter) Choose(_ context.Context, q prompt.Question) (prompt.Answer, error) {
	p.calls++
	p.question = &q
	return p.answer, p.err
}

func statuses(report *domain.RunReport) map[string]domain.StageStatus {
	out := make(map[string]domain.StageStatus, len(report.Stages))
	for _, s := range report.Stages {
		out[s.Name] = s.Status
	}
	return out
}
