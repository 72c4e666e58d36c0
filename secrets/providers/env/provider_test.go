package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
)

func mapLookup(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestVarName(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{path: "dockerhub-creds", want: "DOCKERHUB_CREDS"},
		{path: "github.token", want: "GITHUB_TOKEN"},
		{path: "ci/registry 2", want: "CI_REGISTRY_2"},
		{prefix: "DEPLOYER_", path: "git-token", want: "DEPLOYER_GIT_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, New(WithPrefix(tt.prefix)).VarName(tt.path))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		ref     secrets.SecretRef
		want    string
		wantErr error
	}{
		{
			name: "combined variable",
			vars: map[string]string{"DOCKERHUB_CREDS": "user:pass"},
			ref:  secrets.SecretRef{Path: "dockerhub-creds"},
			want: "user:pass",
		},
		{
			name: "split variables",
			vars: map[string]string{"DOCKERHUB_CREDS_USR": "user", "DOCKERHUB_CREDS_PSW": "pass"},
			ref:  secrets.SecretRef{Path: "dockerhub-creds"},
			want: "user:pass",
		},
		{
			name:    "half a pair",
			vars:    map[string]string{"DOCKERHUB_CREDS_USR": "user"},
			ref:     secrets.SecretRef{Path: "dockerhub-creds"},
			wantErr: secrets.ErrSecretNotFound,
		},
		{
			name:    "empty variable",
			vars:    map[string]string{"DOCKERHUB_CREDS": ""},
			ref:     secrets.SecretRef{Path: "dockerhub-creds"},
			wantErr: secrets.ErrSecretNotFound,
		},
		{
			name:    "versions unsupported",
			vars:    map[string]string{"DOCKERHUB_CREDS": "user:pass"},
			ref:     secrets.SecretRef{Path: "dockerhub-creds", Version: "2"},
			wantErr: secrets.ErrInvalidRef,
		},
		{
			name:    "empty path",
			ref:     secrets.SecretRef{Path: " "},
			wantErr: secrets.ErrInvalidRef,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(WithLookup(mapLookup(tt.vars)))

			secret, err := p.Resolve(context.Background(), tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, secret.String())

			ok, err := p.Exists(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestResolveFromProcessEnv(t *testing.T) {
	t.Setenv("DEPLOYER_TEST_CREDS", "a:b")

	secret, err := New().Resolve(context.Background(), secrets.SecretRef{Path: "deployer-test-creds"})
	require.NoError(t, err)
	assert.Equal(t, "a:b", secret.String())
}
