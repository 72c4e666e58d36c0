// Package aws provides an AWS Secrets Manager provider.
//
// Credentials are loaded lazily through the AWS SDK v2 default chain
// (environment, shared config, instance role). Secrets may be stored as
// strings or binary; both resolve to raw bytes.
//
//	provider, err := aws.New(ctx, aws.WithRegion("us-east-1"))
//	if err != nil {
//	    return err
//	}
//	secret, err := provider.Resolve(ctx, secrets.SecretRef{Path: "ci/dockerhub-creds"})
//
// For LocalStack-style testing, WithEndpoint points the client at a custom
// endpoint and uses anonymous credentials.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	"github.com/saimanas17/housing-price-prediction-mlops/secrets"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the provider
// uses. It allows mocking AWS SDK calls in unit tests.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(
		ctx context.Context,
		params *secretsmanager.DescribeSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.DescribeSecretOutput, error)
}

// Provider reads secrets from AWS Secrets Manager.
// It is safe for concurrent use by multiple goroutines.
type Provider struct {
	client SecretsManagerAPI
	config *Config
}

// Config holds the configuration for the provider.
type Config struct {
	// Region specifies the AWS region. Empty uses the SDK's resolution.
	Region string
	// MaxRetries bounds SDK-level retries. Zero keeps the SDK default.
	MaxRetries int
	// Endpoint overrides the service endpoint (e.g. LocalStack).
	Endpoint string
	// Client replaces the SDK client entirely.
	Client SecretsManagerAPI
}

// Option defines a functional option for configuring the provider.
type Option func(*Config)

// WithRegion sets the AWS region for the provider.
func WithRegion(region string) Option {
	return func(c *Config) {
		c.Region = region
	}
}

// WithMaxRetries sets the maximum number of SDK retries.
func WithMaxRetries(maxRetries int) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
	}
}

// WithEndpoint sets a custom endpoint and switches to anonymous credentials.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithClient injects a Secrets Manager client.
func WithClient(client SecretsManagerAPI) Option {
	return func(c *Config) {
		c.Client = client
	}
}

// New creates a provider. Returns an error if AWS configuration cannot be loaded.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Client != nil {
		return &Provider{client: cfg.Client, config: cfg}, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}
	if cfg.Endpoint != "" {
		if cfg.Region == "" {
			loadOpts = append(loadOpts, config.WithRegion("us-east-1"))
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Provider{client: client, config: cfg}, nil
}

// Name returns "aws".
func (p *Provider) Name() string {
	return "aws"
}

// Close is a no-op; SDK v2 clients need no cleanup.
func (p *Provider) Close() error {
	return nil
}

// Resolve retrieves a single secret. ref.Version may be a version ID or a
// stage such as AWSCURRENT or AWSPREVIOUS.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref.Path),
	}
	if ref.Version != "" {
		if isStage(ref.Version) {
			input.VersionStage = aws.String(ref.Version)
		} else {
			input.VersionId = aws.String(ref.Version)
		}
	}

	output, err := p.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, p.mapAWSError(ref, err)
	}

	var value []byte
	switch {
	case output.SecretString != nil:
		value = []byte(*output.SecretString)
	case output.SecretBinary != nil:
		value = output.SecretBinary
	default:
		return nil, fmt.Errorf("secret %q has no value (neither string nor binary): %w",
			ref.Path, secrets.ErrProviderError)
	}

	created := time.Now()
	if output.CreatedDate != nil {
		created = *output.CreatedDate
	}

	return &secrets.Secret{
		Value:     value,
		Version:   aws.ToString(output.VersionId),
		CreatedAt: created,
	}, nil
}

// Exists checks if a secret exists using DescribeSecret.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}

	_, err := p.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(ref.Path),
	})
	if err != nil {
		var rnf *types.ResourceNotFoundException
		if errors.As(err, &rnf) {
			return false, nil
		}
		return false, p.mapAWSError(ref, err)
	}
	return true, nil
}

// mapAWSError maps AWS SDK errors to the secrets error types.
func (p *Provider) mapAWSError(ref secrets.SecretRef, err error) error {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("secret %q not found: %w", ref.Path, secrets.ErrSecretNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "AccessDeniedException" || containsAccessDeniedMessage(apiErr.ErrorMessage()) {
			return fmt.Errorf("access denied for secret %q: %w", ref.Path, secrets.ErrAccessDenied)
		}
	}

	return fmt.Errorf("failed to resolve secret %q: %w", ref.Path,
		secrets.WrapProviderError(p.Name(), ref, err, "secrets manager request failed"))
}

func isStage(version string) bool {
	switch version {
	case "AWSCURRENT", "AWSPREVIOUS", "AWSPENDING":
		return true
	}
	return false
}

func containsAccessDeniedMessage(msg string) bool {
	lowerMsg := strings.ToLower(msg)
	return strings.Contains(lowerMsg, "access") && strings.Contains(lowerMsg, "denied")
}
