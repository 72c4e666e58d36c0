package secrets

import (
	"errors"
	"fmt"
)

// Standard error types for secrets operations, comparable with errors.Is().
var (
	// ErrSecretNotFound indicates that the requested secret does not exist
	// in the provider or is not visible to the caller.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrProviderError indicates a general failure inside a provider, such as
	// a network issue or an unexpected backend response.
	ErrProviderError = errors.New("provider error")

	// ErrInvalidRef indicates that the SecretRef is malformed (e.g. empty path).
	ErrInvalidRef = errors.New("invalid secret reference")

	// ErrAccessDenied indicates that the operation was denied due to
	// insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates a secret that cannot be read as a
	// username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials format")
)

// ProviderError wraps provider-specific errors with additional context.
type ProviderError struct {
	Provider string    // Name of the provider where the error occurred
	Ref      SecretRef // The secret reference that caused the error
	Err      error     // The underlying error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error for secret %q: %v", e.Provider, e.Ref.Path, e.Err)
}

// Unwrap returns the underlying error for error chain traversal.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError with context.
func NewProviderError(provider string, ref SecretRef, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Ref:      ref,
		Err:      err,
	}
}

// IsProviderError checks if an error is a ProviderError or contains one in its chain.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// WrapProviderError wraps a provider error with additional context.
func WrapProviderError(provider string, ref SecretRef, err error, msg string) error {
	if err == nil {
		return nil
	}
	pe := NewProviderError(provider, ref, err)
	return fmt.Errorf("%s: %w", msg, pe)
}
