// Package registry publishes locally built images to a container registry.
// Login, push and cleanup go through the docker CLI so the daemon's image
// store is used as-is; pushed tags are verified against the registry API.
package registry

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
	"github.com/saimanas17/housing-price-prediction-mlops/executor"
)

// Defaults for push retries.
const (
	DefaultPushAttempts   = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Credentials authenticate against a registry.
type Credentials struct {
	Username string
	Password string
}

// Client talks to one registry.
type Client struct {
	runner executor.Runner
	host   string

	pushAttempts   int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	plainHTTP bool
	transport http.RoundTripper

	logger  *slog.Logger
	runOpts []executor.Option

	creds *Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithHost sets the registry host used for login and logout. Empty means
// Docker Hub.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

// WithPushRetry sets how many times a push is attempted and the initial
// backoff between attempts.
func WithPushRetry(attempts int, initial time.Duration) Option {
	return func(c *Client) {
		c.pushAttempts = attempts
		c.initialBackoff = initial
	}
}

// WithPlainHTTP talks to the registry API over HTTP instead of HTTPS.
func WithPlainHTTP(plain bool) Option {
	return func(c *Client) {
		c.plainHTTP = plain
	}
}

// WithTransport sets the HTTP transport used for registry API calls.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRunOptions passes executor options to every docker command.
func WithRunOptions(opts ...executor.Option) Option {
	return func(c *Client) {
		c.runOpts = append(c.runOpts, opts...)
	}
}

// New returns a Client running docker through runner.
func New(runner executor.Runner, opts ...Option) *Client {
	c := &Client{
		runner:         runner,
		pushAttempts:   DefaultPushAttempts,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pushAttempts < 1 {
		c.pushAttempts = 1
	}
	return c
}

// Host returns the configured registry host.
func (c *Client) Host() string {
	return c.host
}

// Login authenticates the docker CLI. The password is passed on stdin and
// never appears in arguments, logs or errors.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return errors.New(errors.CodeUnauthorized, "registry credentials are incomplete")
	}

	args := []string{"login"}
	if c.host != "" {
		args = append(args, c.host)
	}
	args = append(args, "--username", creds.Username, "--password-stdin")

	opts := append([]executor.Option{executor.WithRedaction(creds.Password)}, c.runOpts...)
	res, err := c.runner.Run(ctx, executor.Command{
		Program: "docker",
		Args:    args,
		Stdin:   creds.Password,
	}, opts...)
	if err != nil {
		if errors.IsCancellation(err) {
			return err
		}
		code := errors.CodePublishFailed
		if res != nil && looksUnauthorized(res.Stderr+res.Combined) {
			code = errors.CodeUnauthorized
		}
		return errors.WrapWithContext(err, code, "registry login failed",
			map[string]interface{}{"registry": c.displayHost(), "username": creds.Username})
	}

	c.creds = &creds
	c.log(ctx, "registry login succeeded", slog.String("registry", c.displayHost()))
	return nil
}

// Push pushes ref, retrying with exponential backoff.
func (c *Client) Push(ctx context.Context, ref string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.pushAttempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		_, err := c.runner.Run(ctx, executor.Command{
			Program: "docker",
			Args:    []string{"push", ref},
		}, c.runOpts...)
		if err != nil && errors.IsCancellation(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "push failed, retrying",
				slog.String("image", ref),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.IsCancellation(err) {
			return errors.Wrap(err, errors.CodeCancelled, "push cancelled")
		}
		return errors.WrapWithContext(err, errors.CodePublishFailed, "image push failed",
			map[string]interface{}{"image": ref, "attempts": attempt})
	}

	c.log(ctx, "image pushed", slog.String("image", ref), slog.Int("attempts", attempt))
	return nil
}

// Remove deletes local images. It is best-effort: failures are logged and
// returned for reporting but never meant to fail a run.
func (c *Client) Remove(ctx context.Context, refs ...string) error {
	if len(refs) == 0 {
		return nil
	}
	_, err := c.runner.Run(ctx, executor.Command{
		Program: "docker",
		Args:    append([]string{"rmi", "-f"}, refs...),
	}, c.runOpts...)
	if err != nil {
		c.warn(ctx, "image cleanup failed", err, slog.Any("images", refs))
		return errors.Wrap(err, errors.CodeExecutionFailed, "image cleanup failed")
	}
	c.log(ctx, "local images removed", slog.Any("images", refs))
	return nil
}

// Logout drops the docker CLI credentials. It is best-effort like Remove.
func (c *Client) Logout(ctx context.Context) error {
	args := []string{"logout"}
	if c.host != "" {
		args = append(args, c.host)
	}
	c.creds = nil
	if _, err := c.runner.Run(ctx, executor.Command{Program: "docker", Args: args}, c.runOpts...); err != nil {
		c.warn(ctx, "registry logout failed", err, slog.String("registry", c.displayHost()))
		return errors.Wrap(err, errors.CodeExecutionFailed, "registry logout failed")
	}
	return nil
}

func (c *Client) displayHost() string {
	if c.host == "" {
		return "docker.io"
	}
	return c.host
}

func (c *Client) log(ctx context.Context, msg string, attrs ...any) {
	if c.logger != nil {
		c.logger.InfoContext(ctx, msg, attrs...)
	}
}

func (c *Client) warn(ctx context.Context, msg string, err error, attrs ...any) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, append(attrs, slog.String("error", err.Error()))...)
	}
}

func looksUnauthorized(output string) bool {
	output = strings.ToLower(output)
	return strings.Contains(output, "unauthorized") ||
		strings.Contains(output, "incorrect username or password") ||
		strings.Contains(output, "authentication required")
}
