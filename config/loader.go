package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

const (
	// FileName is the configuration file looked up in the working directory.
	FileName = "deployer.yaml"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "DEPLOYER"

	// DockerHub is the default registry host.
	DockerHub = "docker.io"
)

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// Path is an explicit configuration file. It must exist.
	Path string

	// SearchDirs are checked for FileName before the XDG config directory.
	// Nil means the current directory.
	SearchDirs []string

	// SkipValidation returns the configuration without validating it.
	SkipValidation bool
}

// Load reads the configuration. Missing optional files are not an error;
// defaults apply. It returns the file that was used, if any.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, err := findConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read configuration",
				map[string]interface{}{"path": file})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to decode configuration",
			map[string]interface{}{"path": file})
	}

	if !opts.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return nil, file, err
		}
	}
	return &cfg, file, nil
}

// Default returns the built-in configuration with environment overrides
// applied and no file read.
func Default() *Config {
	cfg, _, err := Load(LoadOptions{SearchDirs: []string{}, SkipValidation: true})
	if err != nil {
		// Defaults alone always decode.
		panic(err)
	}
	return cfg
}

// YAML renders the configuration as a deployer.yaml document.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to render configuration")
	}
	return out, nil
}

func findConfigFile(opts LoadOptions) (string, error) {
	if opts.Path != "" {
		if _, err := os.Stat(opts.Path); err != nil {
			return "", errors.WrapWithContext(err, errors.CodeInvalidConfig, "configuration file not accessible",
				map[string]interface{}{"path": opts.Path})
		}
		return opts.Path, nil
	}

	dirs := opts.SearchDirs
	if dirs == nil {
		dirs = []string{"."}
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	// Only the implicit search falls back to $XDG_CONFIG_HOME/deployer.
	if opts.SearchDirs != nil {
		return "", nil
	}
	found, err := xdg.SearchConfigFile("deployer/" + FileName)
	if err != nil {
		return "", nil
	}
	return found, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace", ".")

	v.SetDefault("version.prefix", "v")
	v.SetDefault("version.base", "")

	v.SetDefault("registry.host", DockerHub)
	v.SetDefault("registry.namespace", "saimanas17")
	v.SetDefault("registry.credentials", "dockerhub-creds")
	v.SetDefault("registry.push_attempts", 3)
	v.SetDefault("registry.push_backoff", 2*time.Second)
	v.SetDefault("registry.tag_latest", true)
	v.SetDefault("registry.verify", false)
	v.SetDefault("registry.plain_http", false)
	v.SetDefault("registry.cleanup", true)

	v.SetDefault("services", []map[string]interface{}{
		{
			"name":      "bento",
			"kind":      string(domain.KindBento),
			"dir":       "bentoml",
			"bento":     "housing-predictor",
			"image":     "housing-predictor",
			"manifests": []string{"k8s/bento-deployment.yaml"},
		},
		{
			"name":       "frontend",
			"kind":       string(domain.KindDocker),
			"dir":        "frontend",
			"dockerfile": "Dockerfile",
			"image":      "housing-frontend",
			"manifests":  []string{"k8s/frontend-deployment.yaml"},
		},
	})

	v.SetDefault("prompt.mode", "auto")
	v.SetDefault("prompt.timeout", 30*time.Second)
	v.SetDefault("prompt.default", string(domain.ServiceAll))

	v.SetDefault("git.url", "")
	v.SetDefault("git.branch", "")
	v.SetDefault("git.remote", "origin")
	v.SetDefault("git.pull", true)
	v.SetDefault("git.push", true)
	v.SetDefault("git.author_name", "Jenkins")
	v.SetDefault("git.author_email", "jenkins@localhost")
	v.SetDefault("git.token", "")
	v.SetDefault("git.username", "")
	v.SetDefault("git.ssh_key", "")
	v.SetDefault("git.ssh_agent", false)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.env_prefix", "")
	v.SetDefault("secrets.aws_region", "")
	v.SetDefault("secrets.aws_endpoint", "")
}
