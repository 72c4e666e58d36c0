package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config holds the configuration for the Manager.
type Config struct {
	// DefaultProvider is the name of the default provider to use for resolution.
	DefaultProvider string

	// AutoClear controls whether resolved secrets clear their memory after use.
	AutoClear bool

	// Logger records secret access (never values). Nil disables logging.
	Logger *slog.Logger
}

// Manager orchestrates secret resolution across multiple providers.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	autoClear       bool
	logger          *slog.Logger

	// mu protects concurrent access to the provider registry.
	mu sync.RWMutex
}

// NewManager creates a new Manager with the provided configuration.
func NewManager(config *Config) *Manager {
	if config == nil {
		config = &Config{}
	}

	return &Manager{
		providers:       make(map[string]Provider),
		defaultProvider: config.DefaultProvider,
		autoClear:       config.AutoClear,
		logger:          config.Logger,
	}
}

// RegisterProvider adds a provider to the manager's registry.
// Returns an error if a provider with the same name already exists.
func (m *Manager) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider with name %q already registered", name)
	}

	m.providers[name] = provider
	return nil
}

// Providers returns the registered provider names, sorted.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve resolves a secret using the default provider.
func (m *Manager) Resolve(ctx context.Context, ref SecretRef) (*Secret, error) {
	if m.defaultProvider == "" {
		return nil, fmt.Errorf("no default provider configured")
	}

	return m.ResolveFrom(ctx, m.defaultProvider, ref)
}

// ResolveFrom resolves a secret using a specific provider.
func (m *Manager) ResolveFrom(ctx context.Context, providerName string, ref SecretRef) (*Secret, error) {
	provider, err := m.provider(providerName)
	if err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	secret, err := provider.Resolve(ctx, ref)
	m.audit(ctx, "resolve", providerName, ref, err)
	if err != nil {
		return nil, WrapProviderError(providerName, ref, err, "failed to resolve secret")
	}

	secret.AutoClear = m.autoClear
	return secret, nil
}

// Exists checks if a secret exists using the default provider.
func (m *Manager) Exists(ctx context.Context, ref SecretRef) (bool, error) {
	if m.defaultProvider == "" {
		return false, fmt.Errorf("no default provider configured")
	}

	provider, err := m.provider(m.defaultProvider)
	if err != nil {
		return false, err
	}

	exists, err := provider.Exists(ctx, ref)
	if err != nil {
		return false, WrapProviderError(m.defaultProvider, ref, err, "failed to check existence")
	}
	return exists, nil
}

// Credentials resolves ref with the default provider and parses it as a
// username/password pair. The raw secret is cleared afterwards.
func (m *Manager) Credentials(ctx context.Context, ref SecretRef) (Credentials, error) {
	secret, err := m.Resolve(ctx, ref)
	if err != nil {
		return Credentials{}, err
	}
	defer secret.Clear()

	creds, err := ParseCredentials(secret)
	if err != nil {
		return Credentials{}, fmt.Errorf("secret %q: %w", ref.Path, err)
	}
	return creds, nil
}

// Close gracefully shuts down all registered providers.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}

	m.providers = make(map[string]Provider)
	return errors.Join(errs...)
}

func (m *Manager) provider(name string) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}

	m.mu.RLock()
	provider, exists := m.providers[name]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %q not found", name)
	}
	return provider, nil
}

func (m *Manager) audit(ctx context.Context, action, provider string, ref SecretRef, err error) {
	if m.logger == nil {
		return
	}
	attrs := []any{
		slog.String("action", action),
		slog.String("provider", provider),
		slog.String("path", ref.Path),
	}
	if err != nil {
		m.logger.WarnContext(ctx, "secret access failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	m.logger.DebugContext(ctx, "secret accessed", attrs...)
}
