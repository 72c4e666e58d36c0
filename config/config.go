// Package config loads and validates the deployer configuration.
//
// Configuration comes from, in increasing precedence: built-in defaults
// matching the original Jenkins pipeline, a YAML file (deployer.yaml) and
// DEPLOYER_* environment variables (DEPLOYER_REGISTRY_HOST overrides
// registry.host).
package config

import (
	"path"
	"strings"
	"time"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/version"
)

// Config is the complete deployer configuration.
type Config struct {
	// Workspace is the checkout directory on disk.
	Workspace string `mapstructure:"workspace" yaml:"workspace"`

	Version  VersionConfig   `mapstructure:"version" yaml:"version"`
	Registry RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	Services []ServiceConfig `mapstructure:"services" yaml:"services"`
	Prompt   PromptConfig    `mapstructure:"prompt" yaml:"prompt"`
	Git      GitConfig       `mapstructure:"git" yaml:"git"`
	Secrets  SecretsConfig   `mapstructure:"secrets" yaml:"secrets"`
}

// VersionConfig controls tag derivation.
type VersionConfig struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Base   string `mapstructure:"base" yaml:"base,omitempty"`
}

// RegistryConfig describes where images are pushed.
type RegistryConfig struct {
	// Host is the registry host. docker.io is treated as Docker Hub.
	Host string `mapstructure:"host" yaml:"host"`

	// Namespace is the account or project images live under.
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// Credentials is the secret path holding the registry login.
	Credentials string `mapstructure:"credentials" yaml:"credentials"`

	PushAttempts int           `mapstructure:"push_attempts" yaml:"push_attempts"`
	PushBackoff  time.Duration `mapstructure:"push_backoff" yaml:"push_backoff"`

	// TagLatest also tags and pushes <repository>:latest.
	TagLatest bool `mapstructure:"tag_latest" yaml:"tag_latest"`

	// Verify resolves every pushed tag against the registry API.
	Verify bool `mapstructure:"verify" yaml:"verify"`

	PlainHTTP bool `mapstructure:"plain_http" yaml:"plain_http,omitempty"`

	// Cleanup removes local images after the run.
	Cleanup bool `mapstructure:"cleanup" yaml:"cleanup"`
}

// ServiceConfig describes one buildable service.
type ServiceConfig struct {
	Name string             `mapstructure:"name" yaml:"name"`
	Kind domain.ServiceKind `mapstructure:"kind" yaml:"kind"`

	// Dir is the build context relative to the workspace.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// Bento is the bento name for bento services.
	Bento string `mapstructure:"bento" yaml:"bento,omitempty"`

	// Dockerfile is relative to Dir. Empty uses Dir/Dockerfile.
	Dockerfile string `mapstructure:"dockerfile" yaml:"dockerfile,omitempty"`

	// BuildArgs is a shell-quoted list of KEY=VALUE pairs.
	BuildArgs string `mapstructure:"build_args" yaml:"build_args,omitempty"`

	// Image is the image name. A value containing "/" is used as the full
	// repository, otherwise it is placed under the registry namespace.
	Image string `mapstructure:"image" yaml:"image"`

	// Manifests are workspace-relative Kubernetes manifests to update.
	Manifests []string `mapstructure:"manifests" yaml:"manifests"`
}

// PromptConfig controls the service selection prompt.
type PromptConfig struct {
	// Mode is one of auto, tui, line or none.
	Mode    string        `mapstructure:"mode" yaml:"mode"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Default string        `mapstructure:"default" yaml:"default"`
}

// GitConfig controls checkout and the manifest commit.
type GitConfig struct {
	// URL is cloned into the workspace when it holds no repository.
	URL    string `mapstructure:"url" yaml:"url,omitempty"`
	Branch string `mapstructure:"branch" yaml:"branch,omitempty"`
	Remote string `mapstructure:"remote" yaml:"remote"`

	// Pull fast-forwards the workspace before building.
	Pull bool `mapstructure:"pull" yaml:"pull"`

	// Push pushes the manifest commit.
	Push bool `mapstructure:"push" yaml:"push"`

	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`

	// Token is the secret path of an HTTPS token. Empty means anonymous.
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// Username pairs with Token for servers that want basic auth with a
	// real user name instead of the token convention.
	Username string `mapstructure:"username" yaml:"username,omitempty"`

	// SSHKey is a private key file for SSH remotes.
	SSHKey string `mapstructure:"ssh_key" yaml:"ssh_key,omitempty"`

	// SSHAgent authenticates SSH remotes through SSH_AUTH_SOCK. It is tried
	// after SSHKey when both are set.
	SSHAgent bool `mapstructure:"ssh_agent" yaml:"ssh_agent,omitempty"`

	// KnownHosts lists known_hosts files for SSH host key checks.
	KnownHosts []string `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
}

// SecretsConfig selects the secrets backend.
type SecretsConfig struct {
	// Provider is env or aws.
	Provider  string `mapstructure:"provider" yaml:"provider"`
	EnvPrefix string `mapstructure:"env_prefix" yaml:"env_prefix,omitempty"`
	AWSRegion string `mapstructure:"aws_region" yaml:"aws_region,omitempty"`

	// AWSEndpoint overrides the Secrets Manager endpoint.
	AWSEndpoint string `mapstructure:"aws_endpoint" yaml:"aws_endpoint,omitempty"`
}

// Service returns the named service.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceConfig{}, false
}

// Select returns the services covered by sel in declaration order.
func (c *Config) Select(sel domain.Service) []ServiceConfig {
	var out []ServiceConfig
	for _, s := range c.Services {
		if sel.Includes(s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// ImageRepository returns the repository images of svc are pushed to.
func (c *Config) ImageRepository(svc ServiceConfig) string {
	if strings.Contains(svc.Image, "/") {
		return svc.Image
	}

	var parts []string
	if host := strings.TrimSpace(c.Registry.Host); host != "" && host != DockerHub {
		parts = append(parts, host)
	}
	if ns := strings.Trim(c.Registry.Namespace, "/"); ns != "" {
		parts = append(parts, ns)
	}
	parts = append(parts, svc.Image)
	return path.Join(parts...)
}

// RegistryHost returns the host passed to docker login, empty for Docker Hub.
func (c *Config) RegistryHost() string {
	if c.Registry.Host == DockerHub {
		return ""
	}
	return c.Registry.Host
}

// VersionOptions returns the tag derivation options.
func (c *Config) VersionOptions() version.Options {
	prefix := c.Version.Prefix
	return version.Options{Prefix: &prefix, Base: c.Version.Base}
}
