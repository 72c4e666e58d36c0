package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
)

func TestProvider(t *testing.T) {
	ctx := context.Background()
	p := NewWith(map[string]string{"dockerhub-creds": "user:pass"})

	assert.Equal(t, "memory", p.Name())

	secret, err := p.Resolve(ctx, secrets.SecretRef{Path: "dockerhub-creds"})
	require.NoError(t, err)
	assert.Equal(t, "user:pass", secret.String())

	// Returned secrets are copies.
	secret.Value[0] = 'X'
	again, err := p.Resolve(ctx, secrets.SecretRef{Path: "dockerhub-creds"})
	require.NoError(t, err)
	assert.Equal(t, "user:pass", again.String())

	_, err = p.Resolve(ctx, secrets.SecretRef{Path: "dockerhub-creds", Version: "v2"})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)

	require.NoError(t, p.Store(ctx, secrets.SecretRef{Path: "dockerhub-creds", Version: "v2"}, []byte("u2:p2")))
	v2, err := p.Resolve(ctx, secrets.SecretRef{Path: "dockerhub-creds", Version: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.Version)

	ok, err := p.Exists(ctx, secrets.SecretRef{Path: "dockerhub-creds"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Delete(ctx, secrets.SecretRef{Path: "dockerhub-creds"}))
	ok, err = p.Exists(ctx, secrets.SecretRef{Path: "dockerhub-creds"})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, p.Delete(ctx, secrets.SecretRef{Path: "missing"}), secrets.ErrSecretNotFound)
	assert.ErrorIs(t, p.Store(ctx, secrets.SecretRef{}, []byte("x")), secrets.ErrInvalidRef)

	require.NoError(t, p.Close())
	_, err = p.Resolve(ctx, secrets.SecretRef{Path: "dockerhub-creds", Version: "v2"})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestProviderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewWith(map[string]string{"a": "b"})
	_, err := p.Resolve(ctx, secrets.SecretRef{Path: "a"})
	assert.ErrorIs(t, err, context.Canceled)
}
