// Package secrets resolves the credentials the deployer needs (registry
// login, git tokens) from pluggable providers.
//
// # Basic Usage
//
//	manager := secrets.NewManager(&secrets.Config{DefaultProvider: "env"})
//	defer manager.Close()
//
//	if err := manager.RegisterProvider("env", env.New()); err != nil {
//		return err
//	}
//
//	creds, err := manager.Credentials(ctx, secrets.SecretRef{Path: "dockerhub-creds"})
//
// # Providers
//
// The env provider reads CI credential bindings from the process
// environment, the aws provider reads AWS Secrets Manager and the memory
// provider backs tests.
//
// # Error Handling
//
//	if errors.Is(err, secrets.ErrSecretNotFound) {
//		// Handle missing secret
//	}
//	if secrets.IsProviderError(err) {
//		// Handle provider-specific error
//	}
package secrets

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Secret represents a resolved secret value with metadata.
type Secret struct {
	// Value contains the secret data as bytes. This should never be logged or exposed.
	Value []byte
	// Version indicates the version of this secret.
	Version string
	// CreatedAt records when this secret was created.
	CreatedAt time.Time
	// AutoClear controls whether String and Bytes clear memory after use.
	AutoClear bool
}

// SecretRef represents a reference to a secret without containing the actual value.
type SecretRef struct {
	// Path identifies the secret location (e.g., "dockerhub-creds").
	Path string
	// Version specifies which version of the secret to retrieve (empty for latest).
	Version string
}

// Validate checks the reference is usable.
func (r SecretRef) Validate() error {
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("secret path cannot be empty: %w", ErrInvalidRef)
	}
	return nil
}

// String returns the secret value as a string.
// If AutoClear is enabled, the secret value is cleared after use.
func (s *Secret) String() string {
	if s.Value == nil {
		return ""
	}

	value := string(s.Value)

	if s.AutoClear {
		s.Clear()
	}

	return value
}

// Bytes returns a copy of the secret value.
// If AutoClear is enabled, the secret value is cleared after use.
func (s *Secret) Bytes() []byte {
	if s.Value == nil {
		return nil
	}

	value := make([]byte, len(s.Value))
	copy(value, s.Value)

	if s.AutoClear {
		s.Clear()
	}

	return value
}

// Clear zeros out the secret value in memory.
func (s *Secret) Clear() {
	if s.Value != nil {
		for i := range s.Value {
			s.Value[i] = 0
		}
		s.Value = nil
	}
}

// Credentials is a username/password pair, e.g. a registry login.
type Credentials struct {
	Username string
	Password string
}

// LogValue keeps the password out of log records.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("password", "[REDACTED]"),
	)
}

// ParseCredentials reads a secret as either "username:password" or a JSON
// object with "username" and "password" fields.
func ParseCredentials(secret *Secret) (Credentials, error) {
	if secret == nil {
		return Credentials{}, fmt.Errorf("nil secret: %w", ErrInvalidCredentials)
	}
	raw := strings.TrimSpace(string(secret.Bytes()))
	if raw == "" {
		return Credentials{}, fmt.Errorf("empty secret: %w", ErrInvalidCredentials)
	}

	if strings.HasPrefix(raw, "{") {
		var doc struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return Credentials{}, fmt.Errorf("malformed JSON credentials: %w", ErrInvalidCredentials)
		}
		return checkCredentials(Credentials{Username: doc.Username, Password: doc.Password})
	}

	user, pass, ok := strings.Cut(raw, ":")
	if !ok {
		return Credentials{}, fmt.Errorf("expected username:password: %w", ErrInvalidCredentials)
	}
	return checkCredentials(Credentials{Username: user, Password: pass})
}

func checkCredentials(c Credentials) (Credentials, error) {
	if c.Username == "" || c.Password == "" {
		return Credentials{}, fmt.Errorf("username and password are required: %w", ErrInvalidCredentials)
	}
	return c, nil
}
