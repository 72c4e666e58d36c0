// Package executor runs the external tools the deployer drives (docker,
// bentoml) with retry logic, output capture, environment management, secret
// redaction and context support for cancellation and timeouts.
package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// stderrTailLimit bounds how much stderr is attached to an error.
const stderrTailLimit = 2048

// redacted replaces secret values in rendered commands and captured output.
const redacted = "****"

// Command describes a single process invocation.
type Command struct {
	// Program is the executable name or path.
	Program string

	// Args are passed to the program verbatim.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to the current process environment.
	Env map[string]string

	// Stdin is written to the process standard input when not empty.
	Stdin string
}

// String renders the command as a shell-quoted line.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Program}, c.Args...)...)
}

// Result holds the output of a command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	// Run executes cmd and returns its result. A non-zero exit status is
	// returned as an error carrying errors.CodeExecutionFailed.
	Run(ctx context.Context, cmd Command, opts ...Option) (*Result, error)
}

// Options configures command execution behavior.
type Options struct {
	// Output handling
	CaptureStdout   bool
	CaptureStderr   bool
	CaptureCombined bool

	// StreamToConsole copies output to the Stdout/Stderr writers as it is produced.
	StreamToConsole bool

	// Console writers used when StreamToConsole is set. Default to os.Stdout/os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    func(error) bool

	// Env is merged over Command.Env.
	Env map[string]string

	// Redact lists secret values masked in logs and error messages.
	Redact []string

	// Logger receives one debug record per attempt. Nil disables logging.
	Logger *slog.Logger
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns default execution options.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		Env:           make(map[string]string),
	}
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	options *Options
}

// New creates an Exec runner whose defaults are adjusted by opts.
func New(opts ...Option) *Exec {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Exec{options: options}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, cmd Command, opts ...Option) (*Result, error) {
	options := mergeOptions(e.options, opts...)

	maxAttempts := options.MaxRetries + 1
	var (
		result *Result
		err    error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = e.runOnce(ctx, cmd, options)
		logAttempt(ctx, options, cmd, attempt, result, err)

		if err == nil || attempt == maxAttempts {
			return result, err
		}

		if options.RetryOn != nil && !options.RetryOn(err) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, errors.Wrap(ctx.Err(), errors.CodeCancelled, "context cancelled during retry")
		case <-time.After(options.RetryDelay):
		}
	}

	return result, err
}

func (e *Exec) runOnce(ctx context.Context, c Command, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}

	env := mergeEnv(c.Env, options.Env)
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	stdoutBuf, stderrBuf, combinedBuf := setupOutput(cmd, options)

	start := time.Now()
	runErr := cmd.Run()

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return result, nil
	case stderrors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.WrapWithContext(ctxErr, errors.CodeCancelled, "command interrupted",
			map[string]interface{}{"command": Redact(c.String(), options.Redact)})
	}

	return result, errors.WrapWithContext(runErr, errors.CodeExecutionFailed, "command failed",
		map[string]interface{}{
			"command":   Redact(c.String(), options.Redact),
			"exit_code": result.ExitCode,
			"stderr":    Redact(tail(result.Stderr+result.Combined, stderrTailLimit), options.Redact),
		})
}

func setupOutput(cmd *exec.Cmd, options *Options) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	var stdoutWriters, stderrWriters []io.Writer
	switch {
	case options.CaptureCombined:
		stdoutWriters = append(stdoutWriters, &combinedBuf)
		stderrWriters = append(stderrWriters, &combinedBuf)
	default:
		if options.CaptureStdout {
			stdoutWriters = append(stdoutWriters, &stdoutBuf)
		}
		if options.CaptureStderr {
			stderrWriters = append(stderrWriters, &stderrBuf)
		}
	}

	if options.StreamToConsole {
		stdoutWriters = append(stdoutWriters, orDefault(options.Stdout, os.Stdout))
		stderrWriters = append(stderrWriters, orDefault(options.Stderr, os.Stderr))
	}

	if len(stdoutWriters) > 0 {
		cmd.Stdout = io.MultiWriter(stdoutWriters...)
	}
	if len(stderrWriters) > 0 {
		cmd.Stderr = io.MultiWriter(stderrWriters...)
	}

	return &stdoutBuf, &stderrBuf, &combinedBuf
}

func logAttempt(ctx context.Context, options *Options, cmd Command, attempt int, result *Result, err error) {
	if options.Logger == nil {
		return
	}

	attrs := []any{
		slog.String("command", Redact(cmd.String(), options.Redact)),
		slog.Int("attempt", attempt),
	}
	if cmd.Dir != "" {
		attrs = append(attrs, slog.String("dir", cmd.Dir))
	}
	if result != nil {
		attrs = append(attrs, slog.Int("exit_code", result.ExitCode), slog.Duration("duration", result.Duration))
	}

	if err != nil {
		options.Logger.WarnContext(ctx, "command failed", attrs...)
		return
	}
	options.Logger.DebugContext(ctx, "command finished", attrs...)
}

// Redact masks every non-empty secret in s.
func Redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func orDefault(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}

func mergeEnv(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	env := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func mergeOptions(base *Options, opts ...Option) *Options {
	merged := *base
	merged.Env = mergeEnv(base.Env, nil)
	merged.Redact = append([]string(nil), base.Redact...)

	for _, opt := range opts {
		opt(&merged)
	}

	return &merged
}

// Option functions for fluent configuration

// WithCapture configures output capture.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithConsole streams output to the given writers while still capturing it.
// Nil writers fall back to os.Stdout/os.Stderr.
func WithConsole(stdout, stderr io.Writer) Option {
	return func(o *Options) {
		o.StreamToConsole = true
		o.Stdout = stdout
		o.Stderr = stderr
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		o.Env[key] = value
	}
}

// WithRedaction masks the given values in logs and errors.
func WithRedaction(secrets ...string) Option {
	return func(o *Options) {
		o.Redact = append(o.Redact, secrets...)
	}
}

// WithLogger sets the logger used for per-attempt records.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
