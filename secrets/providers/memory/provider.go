// Package memory provides an in-memory secret provider for tests and local
// dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
)

// latestVersion is the version used when none is requested.
const latestVersion = "latest"

// Provider implements an in-memory secret store with no persistence.
// It is safe for concurrent use.
type Provider struct {
	store map[string]map[string]*secrets.Secret
	mu    sync.RWMutex
}

// New creates a new memory provider instance.
func New() *Provider {
	return &Provider{
		store: make(map[string]map[string]*secrets.Secret),
	}
}

// NewWith creates a provider preloaded with the latest version of each secret.
func NewWith(values map[string]string) *Provider {
	p := New()
	for path, value := range values {
		p.put(path, latestVersion, []byte(value))
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "memory"
}

// Close clears all stored secrets.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, versions := range p.store {
		for version, secret := range versions {
			secret.Clear()
			delete(versions, version)
		}
		delete(p.store, path)
	}

	return nil
}

// Resolve retrieves a single secret by reference.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve operation cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	secret, err := p.lookup(ref)
	if err != nil {
		return nil, err
	}

	return &secrets.Secret{
		Value:     append([]byte(nil), secret.Value...),
		Version:   secret.Version,
		CreatedAt: secret.CreatedAt,
	}, nil
}

// Exists checks if a secret exists without retrieving its value.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("exists operation cancelled: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, err := p.lookup(ref)
	return err == nil, nil
}

// Store saves a secret value to the provider.
func (p *Provider) Store(ctx context.Context, ref secrets.SecretRef, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store operation cancelled: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return err
	}

	version := ref.Version
	if version == "" {
		version = latestVersion
	}
	p.put(ref.Path, version, value)
	return nil
}

// Delete removes a secret from the provider.
func (p *Provider) Delete(ctx context.Context, ref secrets.SecretRef) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete operation cancelled: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	secret, err := p.lookup(ref)
	if err != nil {
		return err
	}
	secret.Clear()

	versions := p.store[ref.Path]
	delete(versions, secret.Version)
	if len(versions) == 0 {
		delete(p.store, ref.Path)
	}

	return nil
}

func (p *Provider) put(path, version string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store[path] == nil {
		p.store[path] = make(map[string]*secrets.Secret)
	}
	p.store[path][version] = &secrets.Secret{
		Value:     append([]byte(nil), value...),
		Version:   version,
		CreatedAt: time.Now(),
	}
}

// lookup must be called with p.mu held.
func (p *Provider) lookup(ref secrets.SecretRef) (*secrets.Secret, error) {
	versions, exists := p.store[ref.Path]
	if !exists {
		return nil, fmt.Errorf("%s: %w", ref.Path, secrets.ErrSecretNotFound)
	}

	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	secret, exists := versions[version]
	if !exists {
		return nil, fmt.Errorf("%s@%s: %w", ref.Path, version, secrets.ErrSecretNotFound)
	}
	return secret, nil
}
