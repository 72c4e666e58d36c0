package git

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// HTTPSAuthProvider provides HTTPS authentication for git operations.
// It wraps go-git's http.BasicAuth with host pattern matching.
type HTTPSAuthProvider struct {
	auth *http.BasicAuth

	// AllowedHosts restricts authentication to specific host patterns.
	// If empty, authentication is allowed for all HTTPS URLs.
	// Supports patterns like "*.github.com" or "gitlab.*".
	AllowedHosts []string
}

// NewHTTPSAuthProvider creates a new HTTPS authentication provider.
// For GitHub/GitLab tokens, pass the token as the password.
func NewHTTPSAuthProvider(username, password string) *HTTPSAuthProvider {
	if username == "" && password != "" {
		username = password
		password = ""
	}

	return &HTTPSAuthProvider{
		auth: &http.BasicAuth{
			Username: username,
			Password: password,
		},
	}
}

// NewHTTPSTokenProvider creates an HTTPS provider for token authentication.
// Most git providers (GitHub, GitLab, Bitbucket) use the token as password.
func NewHTTPSTokenProvider(token string) *HTTPSAuthProvider {
	return &HTTPSAuthProvider{
		auth: &http.BasicAuth{
			Username: "token",
			Password: token,
		},
	}
}

// WithAllowedHosts sets the allowed hosts for this provider.
func (p *HTTPSAuthProvider) WithAllowedHosts(hosts ...string) *HTTPSAuthProvider {
	p.AllowedHosts = hosts
	return p
}

// Method returns the authentication method for the given remote URL.
// Returns nil if the URL doesn't match allowed patterns.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *HTTPSAuthProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	parsedURL, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("HTTPS auth provider only supports https:// URLs, got %s", parsedURL.Scheme)
	}

	if len(p.AllowedHosts) > 0 && !hostAllowed(parsedURL.Hostname(), p.AllowedHosts) {
		return nil, nil
	}

	return p.auth, nil
}

// SSHAuthProvider provides SSH authentication for git operations.
type SSHAuthProvider struct {
	// PrivateKeyPath is the path to the SSH private key file.
	PrivateKeyPath string

	// PrivateKey contains the SSH private key as bytes.
	PrivateKey []byte

	// Passphrase for encrypted private keys.
	Passphrase string

	// Username for SSH authentication (defaults to "git").
	Username string

	// UseSSHAgent enables SSH agent integration.
	UseSSHAgent bool

	// KnownHosts lists known_hosts files for host key verification.
	// Empty uses go-git's defaults (SSH_KNOWN_HOSTS or ~/.ssh/known_hosts).
	KnownHosts []string

	// AllowedHosts restricts authentication to specific host patterns.
	AllowedHosts []string
}

// NewSSHKeyProvider creates an SSH provider using a private key file.
func NewSSHKeyProvider(keyPath, passphrase string) *SSHAuthProvider {
	return &SSHAuthProvider{
		PrivateKeyPath: keyPath,
		Passphrase:     passphrase,
		Username:       "git",
	}
}

// NewSSHAgentProvider creates an SSH provider that uses SSH agent.
func NewSSHAgentProvider() *SSHAuthProvider {
	return &SSHAuthProvider{
		UseSSHAgent: true,
		Username:    "git",
	}
}

// WithKnownHosts sets the known_hosts files used to verify host keys.
func (p *SSHAuthProvider) WithKnownHosts(files ...string) *SSHAuthProvider {
	p.KnownHosts = files
	return p
}

// WithAllowedHosts sets the allowed hosts for this provider.
func (p *SSHAuthProvider) WithAllowedHosts(hosts ...string) *SSHAuthProvider {
	p.AllowedHosts = hosts
	return p
}

// Method returns the authentication method for the given remote URL.
// Returns nil if the URL doesn't match allowed patterns.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *SSHAuthProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	host, scheme, err := extractSSHHost(remoteURL)
	if err != nil {
		return nil, err
	}

	if scheme != "ssh" && scheme != "git+ssh" {
		return nil, fmt.Errorf("SSH auth provider only supports SSH URLs, got %s", scheme)
	}

	if len(p.AllowedHosts) > 0 && host != "" && !hostAllowed(host, p.AllowedHosts) {
		return nil, nil
	}

	user := p.Username
	if user == "" {
		user = "git"
	}

	var method transport.AuthMethod
	switch {
	case p.UseSSHAgent:
		auth, err := ssh.NewSSHAgentAuth(user)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSH agent auth: %w", err)
		}
		if err := p.applyKnownHosts(&auth.HostKeyCallbackHelper); err != nil {
			return nil, err
		}
		method = auth
	case p.PrivateKeyPath != "":
		if _, err := os.Stat(p.PrivateKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("SSH private key file does not exist: %s", p.PrivateKeyPath)
		}
		auth, err := ssh.NewPublicKeysFromFile(user, p.PrivateKeyPath, p.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from file: %w", err)
		}
		if err := p.applyKnownHosts(&auth.HostKeyCallbackHelper); err != nil {
			return nil, err
		}
		method = auth
	case len(p.PrivateKey) > 0:
		auth, err := ssh.NewPublicKeys(user, p.PrivateKey, p.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from bytes: %w", err)
		}
		if err := p.applyKnownHosts(&auth.HostKeyCallbackHelper); err != nil {
			return nil, err
		}
		method = auth
	default:
		return nil, fmt.Errorf("no SSH credentials configured")
	}

	return method, nil
}

func (p *SSHAuthProvider) applyKnownHosts(helper *ssh.HostKeyCallbackHelper) error {
	if len(p.KnownHosts) == 0 {
		return nil
	}
	cb, err := ssh.NewKnownHostsCallback(p.KnownHosts...)
	if err != nil {
		return fmt.Errorf("failed to load known hosts: %w", err)
	}
	helper.HostKeyCallback = cb
	return nil
}

func extractSSHHost(remoteURL string) (string, string, error) {
	// scp-like syntax: user@host:path
	if !strings.Contains(remoteURL, "://") {
		at := strings.Index(remoteURL, "@")
		colon := strings.Index(remoteURL, ":")
		if at >= 0 && colon > at {
			return remoteURL[at+1 : colon], "ssh", nil
		}
		return "", "", fmt.Errorf("invalid SSH URL: %s", remoteURL)
	}

	parsedURL, err := url.Parse(remoteURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	return parsedURL.Hostname(), parsedURL.Scheme, nil
}

// ProviderConfig configures a provider with URL pattern matching.
type ProviderConfig struct {
	Provider AuthProvider

	// URLPatterns are URL patterns this provider should handle, e.g.
	// "https://*.github.com". Empty means all URLs.
	URLPatterns []string
}

// CompositeAuthProvider tries providers in order until one returns an auth
// method for a URL.
type CompositeAuthProvider struct {
	Providers []ProviderConfig

	// ContinueOnError keeps trying later providers after one fails.
	ContinueOnError bool
}

// NewCompositeAuthProvider creates a new composite authentication provider.
func NewCompositeAuthProvider() *CompositeAuthProvider {
	return &CompositeAuthProvider{ContinueOnError: true}
}

// AddProvider adds a provider to the fallback chain.
func (c *CompositeAuthProvider) AddProvider(provider AuthProvider, urlPatterns ...string) *CompositeAuthProvider {
	c.Providers = append(c.Providers, ProviderConfig{
		Provider:    provider,
		URLPatterns: urlPatterns,
	})
	return c
}

// Method returns the first auth method any matching provider yields.
//
//nolint:ireturn // transport.AuthMethod is an interface required by go-git
func (c *CompositeAuthProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	if len(c.Providers) == 0 {
		return nil, fmt.Errorf("no authentication providers configured")
	}

	parsedURL, err := parseRemoteURL(remoteURL)
	if err != nil {
		return nil, err
	}

	var lastError error
	for i, config := range c.Providers {
		if !urlMatchesAny(parsedURL, config.URLPatterns) {
			continue
		}

		method, err := config.Provider.Method(remoteURL)
		if err != nil {
			lastError = fmt.Errorf("provider %d failed: %w", i, err)
			if !c.ContinueOnError {
				return nil, lastError
			}
			continue
		}
		if method != nil {
			return method, nil
		}
	}

	if lastError != nil {
		return nil, lastError
	}
	return nil, nil
}

// parseRemoteURL parses remoteURL, mapping scp-like SSH syntax onto ssh://.
func parseRemoteURL(remoteURL string) (*url.URL, error) {
	if !strings.Contains(remoteURL, "://") {
		if host, _, err := extractSSHHost(remoteURL); err == nil {
			return &url.URL{Scheme: "ssh", Host: host}, nil
		}
	}
	u, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	return u, nil
}

func urlMatchesAny(u *url.URL, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		p, err := url.Parse(pattern)
		if err != nil {
			if strings.Contains(u.String(), pattern) {
				return true
			}
			continue
		}
		if p.Scheme != "" && p.Scheme != u.Scheme {
			continue
		}
		if p.Host != "" && !matchesPattern(u.Hostname(), p.Hostname()) {
			continue
		}
		return true
	}
	return false
}

func hostAllowed(host string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesPattern(host, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a host matches a pattern with one "*" wildcard
// at either end.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}

	if strings.Count(pattern, "*") != 1 {
		return false
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}

	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(host, prefix+".")
	}

	return false
}

// redactURL drops credentials embedded in a remote URL.
func redactURL(remoteURL string) string {
	u, err := url.Parse(remoteURL)
	if err != nil || u.User == nil {
		return remoteURL
	}
	u.User = nil
	return u.String()
}
