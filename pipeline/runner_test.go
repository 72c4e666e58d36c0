package pipeline

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saimanas17/housing-price-prediction-mlops/builder"
	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/prompt"
	"github.com/saimanas17/housing-price-prediction-mlops/registry"
)

func TestStages(t *testing.T) {
	assert.Equal(t,
		[]string{"checkout", "select", "build", "push", "update-manifests", "commit", "cleanup"},
		Stages())
}

func TestRunAllServices(t *testing.T) {
	ctx := context.Background()
	fs := newWorkspace(t)
	b := &fakeBuilder{}
	reg := &fakeRegistry{}

	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(b),
		WithRegistry(reg),
		WithSecrets(testSecrets(t)),
	)

	report, err := runner.Run(ctx, Options{BuildNumber: "42"})
	require.NoError(t, err)

	assert.Equal(t, "v42", report.Tag)
	assert.Equal(t, domain.ServiceAll, report.Selection)
	assert.Equal(t, []string{"bento", "frontend"}, report.Services)
	assert.False(t, report.Failed())
	for _, s := range report.Stages {
		assert.Equal(t, domain.StageStatusSuccess, s.Status, "stage %s: %s", s.Name, s.Error)
	}

	require.Len(t, b.targets, 2)
	assert.Equal(t, builder.Target{
		Service:   "bento",
		Kind:      domain.KindBento,
		Dir:       "/ws/bentoml",
		Bento:     "housing-predictor",
		Image:     domain.Image{Service: "bento", Repository: "saimanas17/housing-predictor", Tag: "v42"},
		TagLatest: true,
	}, b.targets[0])
	assert.Equal(t, "/ws/frontend", b.targets[1].Dir)
	assert.Equal(t, "Dockerfile", b.targets[1].Dockerfile)

	assert.Equal(t, []registry.Credentials{{Username: "saimanas17", Password: "s3cret"}}, reg.logins)
	assert.Equal(t, []string{
		"saimanas17/housing-predictor:v42",
		"saimanas17/housing-predictor:latest",
		"saimanas17/housing-frontend:v42",
		"saimanas17/housing-frontend:latest",
	}, reg.pushed)
	assert.Empty(t, reg.resolved)
	assert.ElementsMatch(t, reg.pushed, reg.removed)
	assert.Equal(t, 1, reg.logouts)

	assert.Equal(t, []string{bentoPath, frontendPath}, report.Manifests)
	repo := openWorkspace(t, fs)
	assert.Contains(t, readFile(t, repo.Filesystem(), bentoPath), "image: saimanas17/housing-predictor:v42 # bumped by CI")
	assert.Contains(t, readFile(t, repo.Filesystem(), frontendPath), "image: saimanas17/housing-frontend:v42")

	require.NotEmpty(t, report.Commit)
	head, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Commit, head)
	msg, err := repo.HeadMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg, "chore(deploy): update bento, frontend images to v42")
	clean, err := repo.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	assert.Equal(t, "committed "+shortSHA(report.Commit)+", push disabled", report.Stage(StageCommit).Detail)
}

func TestRunFlagSelection(t *testing.T) {
	fs := newWorkspace(t)
	b := &fakeBuilder{}
	p := &recordingPrompter{}

	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(b),
		WithRegistry(&fakeRegistry{}),
		WithSecrets(testSecrets(t)),
		WithPrompter(p),
	)

	report, err := runner.Run(context.Background(), Options{BuildNumber: "7", Service: " Frontend "})
	require.NoError(t, err)

	assert.Zero(t, p.calls)
	assert.Equal(t, []string{"frontend"}, b.services())
	assert.Equal(t, []string{frontendPath}, report.Manifests)
	assert.Contains(t, report.Stage(StageSelect).Detail, "flag")

	wt := openWorkspace(t, fs).Filesystem()
	assert.Contains(t, readFile(t, wt, bentoPath), "saimanas17/housing-predictor:v1")
	assert.Contains(t, readFile(t, wt, frontendPath), "saimanas17/housing-frontend:v7")
}

func TestRunPromptSelection(t *testing.T) {
	tests := []struct {
		name       string
		answer     prompt.Answer
		wantBuilt  []string
		wantDetail string
	}{
		{
			name:       "operator choice",
			answer:     prompt.Answer{Value: "bento"},
			wantBuilt:  []string{"bento"},
			wantDetail: "bento (prompt)",
		},
		{
			name:       "timeout falls back to default",
			answer:     prompt.Answer{Value: "all", TimedOut: true, Defaulted: true},
			wantBuilt:  []string{"bento", "frontend"},
			wantDetail: "prompt timeout default",
		},
		{
			name:       "empty input uses default",
			answer:     prompt.Answer{Value: "all", Defaulted: true},
			wantBuilt:  []string{"bento", "frontend"},
			wantDetail: "all (default)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBuilder{}
			p := &recordingPrompter{answer: tt.answer}
			runner := New(testConfig(),
				WithFilesystem(newWorkspace(t)),
				WithBuilder(b),
				WithRegistry(&fakeRegistry{}),
				WithSecrets(testSecrets(t)),
				WithPrompter(p),
			)

			report, err := runner.Run(context.Background(), Options{BuildNumber: "3", SkipCommit: true})
			require.NoError(t, err)

			require.NotNil(t, p.question)
			assert.Equal(t, []string{"all", "bento", "frontend"}, p.question.Choices)
			assert.Equal(t, "all", p.question.Default)
			assert.Equal(t, 30*time.Second, p.question.Timeout)

			assert.Equal(t, tt.wantBuilt, b.services())
			assert.Contains(t, report.Stage(StageSelect).Detail, tt.wantDetail)
		})
	}
}

func TestRunInvalidSelection(t *testing.T) {
	b := &fakeBuilder{}
	reg := &fakeRegistry{}
	runner := New(testConfig(),
		WithFilesystem(newWorkspace(t)),
		WithBuilder(b),
		WithRegistry(reg),
	)

	report, err := runner.Run(context.Background(), Options{BuildNumber: "1", Service: "backend"})
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, StageSelect, stageErr.Stage)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))

	assert.Equal(t, map[string]domain.StageStatus{
		StageCheckout:  domain.StageStatusSuccess,
		StageSelect:    domain.StageStatusFailed,
		StageBuild:     domain.StageStatusSkipped,
		StagePush:      domain.StageStatusSkipped,
		StageManifests: domain.StageStatusSkipped,
		StageCommit:    domain.StageStatusSkipped,
		StageCleanup:   domain.StageStatusSkipped,
	}, statuses(report))
	assert.Equal(t, "previous stage failed", report.Stage(StageBuild).Detail)
	assert.Empty(t, b.targets)
	assert.Empty(t, reg.removed)
	assert.True(t, report.Failed())
}

func TestRunBuildFailure(t *testing.T) {
	b := &fakeBuilder{fail: map[string]error{
		"frontend": errors.New(errors.CodeBuildFailed, "docker build failed"),
	}}
	reg := &fakeRegistry{}
	runner := New(testConfig(),
		WithFilesystem(newWorkspace(t)),
		WithBuilder(b),
		WithRegistry(reg),
		WithSecrets(testSecrets(t)),
	)

	report, err := runner.Run(context.Background(), Options{BuildNumber: "5"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeBuildFailed, errors.CodeOf(err))
	assert.EqualError(t, err, "stage build: [BUILD_FAILED] docker build failed")

	st := statuses(report)
	assert.Equal(t, domain.StageStatusFailed, st[StageBuild])
	assert.Equal(t, domain.StageStatusSkipped, st[StagePush])
	assert.Equal(t, domain.StageStatusSuccess, st[StageCleanup])

	assert.Empty(t, reg.logins)
	assert.Zero(t, reg.logouts)
	assert.Equal(t, []string{"saimanas17/housing-predictor:v5", "saimanas17/housing-predictor:latest"}, reg.removed)
}

func TestRunPushFailure(t *testing.T) {
	reg := &fakeRegistry{pushErr: errors.New(errors.CodePublishFailed, "image push failed")}
	fs := newWorkspace(t)
	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(reg),
		WithSecrets(testSecrets(t)),
	)

	report, err := runner.Run(context.Background(), Options{BuildNumber: "9"})
	require.Error(t, err)
	assert.Equal(t, errors.CodePublishFailed, errors.CodeOf(err))

	st := statuses(report)
	assert.Equal(t, domain.StageStatusFailed, st[StagePush])
	assert.Equal(t, domain.StageStatusSkipped, st[StageManifests])
	assert.Equal(t, domain.StageStatusSkipped, st[StageCommit])
	assert.Equal(t, 1, reg.logouts)
	assert.Len(t, reg.removed, 4)

	wt := openWorkspace(t, fs).Filesystem()
	assert.Contains(t, readFile(t, wt, bentoPath), ":v1")
}

func TestRunMissingCredentials(t *testing.T) {
	tests := []struct {
		name       string
		secretPath string
		withSource bool
	}{
		{name: "no secrets source", secretPath: "dockerhub-creds"},
		{name: "secret missing", secretPath: "other-creds", withSource: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Registry.Credentials = tt.secretPath
			reg := &fakeRegistry{}
			opts := []Option{
				WithFilesystem(newWorkspace(t)),
				WithBuilder(&fakeBuilder{}),
				WithRegistry(reg),
			}
			if tt.withSource {
				opts = append(opts, WithSecrets(testSecrets(t)))
			}

			_, err := New(cfg, opts...).Run(context.Background(), Options{BuildNumber: "2"})
			require.Error(t, err)
			assert.Equal(t, errors.CodeUnauthorized, errors.CodeOf(err))
			assert.Empty(t, reg.logins)
			assert.Zero(t, reg.logouts)
		})
	}
}

func TestRunSkipPushAndCommit(t *testing.T) {
	ctx := context.Background()
	fs := newWorkspace(t)
	reg := &fakeRegistry{}
	before, err := openWorkspace(t, fs).Head(ctx)
	require.NoError(t, err)

	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(reg),
	)
	report, err := runner.Run(ctx, Options{BuildNumber: "11", SkipPush: true, SkipCommit: true})
	require.NoError(t, err)

	st := statuses(report)
	assert.Equal(t, domain.StageStatusSkipped, st[StagePush])
	assert.Equal(t, domain.StageStatusSuccess, st[StageManifests])
	assert.Equal(t, domain.StageStatusSkipped, st[StageCommit])
	assert.Empty(t, reg.logins)
	assert.Empty(t, reg.pushed)
	assert.Zero(t, reg.logouts)
	assert.Empty(t, report.Commit)

	repo := openWorkspace(t, fs)
	after, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	changed, err := repo.Changed(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{bentoPath, frontendPath}, changed)
}

func TestRunSkipPushOnly(t *testing.T) {
	ctx := context.Background()
	fs := newWorkspace(t)
	reg := &fakeRegistry{}
	before, err := openWorkspace(t, fs).Head(ctx)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Git.Push = true
	runner := New(cfg,
		WithFilesystem(fs),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(reg),
	)
	report, err := runner.Run(ctx, Options{BuildNumber: "11", SkipPush: true})
	require.NoError(t, err)

	st := statuses(report)
	assert.Equal(t, domain.StageStatusSkipped, st[StagePush])
	assert.Equal(t, domain.StageStatusSuccess, st[StageManifests])
	assert.Equal(t, domain.StageStatusSkipped, st[StageCommit])
	assert.Equal(t, domain.StageStatusSkipped, st[StageCleanup])
	assert.Contains(t, report.Stage(StageCommit).Detail, "unpushed images")
	assert.Empty(t, report.Commit)

	assert.Empty(t, reg.pushed)
	assert.Empty(t, reg.removed, "unpushed images stay local")

	repo := openWorkspace(t, fs)
	after, err := repo.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	msg, err := repo.HeadMessage(ctx)
	require.NoError(t, err)
	assert.NotContains(t, msg, "v11")
}

func TestRunRefusesUnrelatedStagedChanges(t *testing.T) {
	ctx := context.Background()
	fs := newWorkspace(t)
	repo := openWorkspace(t, fs)
	before, err := repo.Head(ctx)
	require.NoError(t, err)
	require.NoError(t, util.WriteFile(repo.Filesystem(), "values.yaml", []byte("replicas: 3\n"), 0o644))
	require.NoError(t, repo.Add(ctx, "values.yaml"))

	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(&fakeRegistry{}),
		WithSecrets(testSecrets(t)),
	)
	report, err := runner.Run(ctx, Options{BuildNumber: "12"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.CodeOf(err))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCommit, stageErr.Stage)
	assert.Contains(t, report.Stage(StageCommit).Error, "values.yaml")
	assert.Empty(t, report.Commit)

	after, err := openWorkspace(t, fs).Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunManifestsAlreadyCurrent(t *testing.T) {
	ctx := context.Background()
	fs := newWorkspace(t)
	head, err := openWorkspace(t, fs).Head(ctx)
	require.NoError(t, err)

	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(&fakeRegistry{}),
		WithSecrets(testSecrets(t)),
	)

	// The seeded manifests already point at v1.
	report, err := runner.Run(ctx, Options{BuildNumber: "1"})
	require.NoError(t, err)
	assert.Empty(t, report.Manifests)
	assert.Equal(t, "manifests already at v1", report.Stage(StageManifests).Detail)
	assert.Equal(t, domain.StageStatusSkipped, report.Stage(StageCommit).Status)
	assert.Equal(t, "no manifest changes", report.Stage(StageCommit).Detail)
	assert.Empty(t, report.Commit)

	again, err := openWorkspace(t, fs).Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, head, again)
}

func TestRunMissingManifest(t *testing.T) {
	fs := newWorkspace(t)
	require.NoError(t, util.RemoveAll(fs, frontendPath))

	runner := New(testConfig(),
		WithFilesystem(fs),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(&fakeRegistry{}),
		WithSecrets(testSecrets(t)),
	)
	report, err := runner.Run(context.Background(), Options{BuildNumber: "4", Service: "frontend"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
	assert.Equal(t, domain.StageStatusFailed, report.Stage(StageManifests).Status)
	assert.Equal(t, domain.StageStatusSkipped, report.Stage(StageCommit).Status)
}

func TestRunVerifyDigests(t *testing.T) {
	cfg := testConfig()
	cfg.Registry.Verify = true
	cfg.Registry.TagLatest = false
	reg := &fakeRegistry{digest: "sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"}

	runner := New(cfg,
		WithFilesystem(newWorkspace(t)),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(reg),
		WithSecrets(testSecrets(t)),
	)
	report, err := runner.Run(context.Background(), Options{BuildNumber: "8", Service: "bento", SkipCommit: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"saimanas17/housing-predictor:v8"}, reg.pushed)
	assert.Equal(t, []string{"saimanas17/housing-predictor:v8"}, reg.resolved)
	require.Len(t, report.Images, 1)
	assert.Equal(t, reg.digest.String(), report.Images[0].Digest)
	assert.Equal(t, []string{"saimanas17/housing-predictor:v8"}, reg.removed)
}

func TestRunCancelledDuringBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := &fakeBuilder{onBuild: func(target builder.Target) {
		if target.Service == "frontend" {
			cancel()
		}
	}}
	reg := &fakeRegistry{}
	runner := New(testConfig(),
		WithFilesystem(newWorkspace(t)),
		WithBuilder(b),
		WithRegistry(reg),
	)

	report, err := runner.Run(ctx, Options{BuildNumber: "6"})
	require.Error(t, err)
	assert.True(t, errors.IsCancellation(err))
	assert.Equal(t, domain.StageStatusFailed, report.Stage(StageBuild).Status)

	// Cleanup runs on a context detached from the cancelled run.
	assert.Equal(t, domain.StageStatusSuccess, report.Stage(StageCleanup).Status)
	assert.NoError(t, reg.cleanupCtxErr)
	assert.Equal(t, []string{"saimanas17/housing-predictor:v6", "saimanas17/housing-predictor:latest"}, reg.removed)
}

func TestRunCleanupFailureIsNotFatal(t *testing.T) {
	reg := &fakeRegistry{removeErr: errors.New(errors.CodeExecutionFailed, "image cleanup failed")}
	runner := New(testConfig(),
		WithFilesystem(newWorkspace(t)),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(reg),
		WithSecrets(testSecrets(t)),
	)

	report, err := runner.Run(context.Background(), Options{BuildNumber: "12", SkipCommit: true})
	require.NoError(t, err)
	cleanup := report.Stage(StageCleanup)
	assert.Equal(t, domain.StageStatusSuccess, cleanup.Status)
	assert.Equal(t, "image removal failed, logged out", cleanup.Detail)
}

func TestRunInvalidBuildNumber(t *testing.T) {
	runner := New(testConfig(),
		WithFilesystem(newWorkspace(t)),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(&fakeRegistry{}),
	)

	for _, build := range []string{"", "abc", "-1"} {
		report, err := runner.Run(context.Background(), Options{BuildNumber: build})
		assert.Nil(t, report, build)
		assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err), build)
	}
}

func TestRunNotARepository(t *testing.T) {
	runner := New(testConfig(),
		WithFilesystem(memfs.New()),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(&fakeRegistry{}),
	)

	report, err := runner.Run(context.Background(), Options{BuildNumber: "1"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeVCSFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "git.url is not set")
	assert.Equal(t, domain.StageStatusFailed, report.Stage(StageCheckout).Status)
}

func TestRunMissingCollaborators(t *testing.T) {
	_, err := New(testConfig(), WithFilesystem(memfs.New())).Run(context.Background(), Options{BuildNumber: "1"})
	assert.Equal(t, errors.CodeInternal, errors.CodeOf(err))
}

func TestRunReportTimes(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}

	runner := New(testConfig(),
		WithFilesystem(newWorkspace(t)),
		WithBuilder(&fakeBuilder{}),
		WithRegistry(&fakeRegistry{}),
		WithSecrets(testSecrets(t)),
		WithClock(clock),
	)
	report, err := runner.Run(context.Background(), Options{BuildNumber: "1", SkipCommit: true})
	require.NoError(t, err)

	for _, s := range report.Stages {
		assert.Equal(t, time.Second, s.Duration, s.Name)
	}
	assert.Equal(t, start.Add(time.Second), report.StartedAt)
	assert.True(t, report.EndedAt.After(report.StartedAt))
}
