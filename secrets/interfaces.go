package secrets

import "context"

// Resolver defines the core interface for secret resolution.
type Resolver interface {
	// Resolve retrieves a single secret by reference.
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)

	// Exists checks if a secret exists without retrieving its value.
	Exists(ctx context.Context, ref SecretRef) (bool, error)
}

// Provider extends Resolver with provider management capabilities.
// All secret providers must implement this interface.
type Provider interface {
	Resolver

	// Name returns the provider's identifier (e.g., "env", "aws", "memory").
	Name() string

	// Close releases resources held by the provider.
	Close() error
}

// WriteableProvider extends Provider with write operations.
type WriteableProvider interface {
	Provider

	// Store saves a secret value to the provider.
	Store(ctx context.Context, ref SecretRef, value []byte) error

	// Delete removes a secret from the provider.
	Delete(ctx context.Context, ref SecretRef) error
}
