// Package env resolves secrets from environment variables, the way CI
// systems expose bound credentials.
//
// A secret path maps to an upper-cased variable name with every character
// outside [A-Z0-9] replaced by "_", so "dockerhub-creds" reads
// DOCKERHUB_CREDS. When that variable is unset but the username/password
// pair is bound separately (DOCKERHUB_CREDS_USR and DOCKERHUB_CREDS_PSW),
// the pair is joined as "username:password".
package env

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
)

const (
	// UserSuffix and PasswordSuffix name the split credential variables.
	UserSuffix     = "_USR"
	PasswordSuffix = "_PSW"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Provider resolves secrets from the process environment.
type Provider struct {
	prefix string
	lookup LookupFunc
}

// Option configures a Provider.
type Option func(*Provider)

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) Option {
	return func(p *Provider) {
		p.prefix = prefix
	}
}

// WithLookup replaces os.LookupEnv, e.g. with a map in tests.
func WithLookup(fn LookupFunc) Option {
	return func(p *Provider) {
		p.lookup = fn
	}
}

// New creates an environment provider.
func New(opts ...Option) *Provider {
	p := &Provider{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "env"
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}

// VarName returns the environment variable read for path.
func (p *Provider) VarName(path string) string {
	var b strings.Builder
	b.WriteString(p.prefix)
	for _, r := range strings.ToUpper(path) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Resolve reads the secret for ref. Versions are not supported.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve operation cancelled: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if ref.Version != "" {
		return nil, fmt.Errorf("env provider does not support versions (got %q): %w", ref.Version, secrets.ErrInvalidRef)
	}

	value, ok := p.read(ref.Path)
	if !ok {
		return nil, fmt.Errorf("environment variable %s: %w", p.VarName(ref.Path), secrets.ErrSecretNotFound)
	}

	return &secrets.Secret{
		Value:     []byte(value),
		CreatedAt: time.Now(),
	}, nil
}

// Exists reports whether the variable (or the split pair) is set.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("exists operation cancelled: %w", err)
	}
	_, ok := p.read(ref.Path)
	return ok, nil
}

func (p *Provider) read(path string) (string, bool) {
	name := p.VarName(path)
	if value, ok := p.lookup(name); ok && value != "" {
		return value, true
	}

	user, okUser := p.lookup(name + UserSuffix)
	pass, okPass := p.lookup(name + PasswordSuffix)
	if okUser && okPass && user != "" && pass != "" {
		return user + ":" + pass, true
	}
	return "", false
}
