package config

import (
	"fmt"
	"strings"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/prompt"
	"github.com/saimanas17/housing-price-prediction-mlops/version"
)

// Validate checks the configuration and reports every problem found in a
// single INVALID_CONFIGURATION error.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Workspace) == "" {
		add("workspace is required")
	}

	if _, err := version.Tag("0", c.VersionOptions()); err != nil {
		add("version: %v", err)
	}

	if c.Registry.PushAttempts < 1 {
		add("registry.push_attempts must be at least 1")
	}
	if c.Registry.PushBackoff < 0 {
		add("registry.push_backoff cannot be negative")
	}
	if strings.TrimSpace(c.Registry.Credentials) == "" {
		add("registry.credentials is required")
	}

	problems = append(problems, c.validateServices()...)

	if _, err := prompt.ParseMode(c.Prompt.Mode); err != nil {
		add("prompt.mode: %v", err)
	}
	if c.Prompt.Timeout <= 0 {
		add("prompt.timeout must be positive")
	}
	if sel, err := domain.ParseService(c.Prompt.Default); err != nil {
		add("prompt.default: %v", err)
	} else if len(c.Select(sel)) == 0 {
		add("prompt.default %q selects no configured service", sel)
	}

	if strings.TrimSpace(c.Git.AuthorName) == "" || strings.TrimSpace(c.Git.AuthorEmail) == "" {
		add("git.author_name and git.author_email are required")
	}
	if c.Git.Username != "" && c.Git.Token == "" {
		add("git.username requires git.token")
	}

	switch c.Secrets.Provider {
	case "env", "aws":
	default:
		add("secrets.provider must be env or aws, got %q", c.Secrets.Provider)
	}

	if len(problems) > 0 {
		return errors.New(
			errors.CodeInvalidConfig,
			fmt.Sprintf("configuration validation failed: %s", strings.Join(problems, "; ")),
		)
	}
	return nil
}

func (c *Config) validateServices() []string {
	if len(c.Services) == 0 {
		return []string{"at least one service is required"}
	}

	var problems []string
	seen := make(map[string]bool)
	for i, svc := range c.Services {
		field := fmt.Sprintf("services[%d]", i)
		if svc.Name != "" {
			field = fmt.Sprintf("services[%s]", svc.Name)
		}

		switch {
		case svc.Name == "":
			problems = append(problems, field+": name is required")
		case svc.Name == string(domain.ServiceAll):
			problems = append(problems, field+": name \"all\" is reserved")
		default:
			if _, err := domain.ParseService(svc.Name); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", field, err))
			}
		}
		if seen[svc.Name] {
			problems = append(problems, field+": duplicate service name")
		}
		seen[svc.Name] = true

		if !svc.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("%s: unknown kind %q", field, svc.Kind))
		}
		if svc.Kind == domain.KindBento && svc.Bento == "" {
			problems = append(problems, field+": bento is required for bento services")
		}
		if strings.TrimSpace(svc.Dir) == "" {
			problems = append(problems, field+": dir is required")
		}
		if strings.TrimSpace(svc.Image) == "" {
			problems = append(problems, field+": image is required")
		} else if _, err := domain.NewImage(svc.Name, c.ImageRepository(svc), "latest"); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field, err))
		}
		if len(svc.Manifests) == 0 {
			problems = append(problems, field+": at least one manifest is required")
		}
	}
	return problems
}
