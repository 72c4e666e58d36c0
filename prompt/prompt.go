// Package prompt asks the operator to choose between a fixed set of values
// and falls back to a default when nobody answers in time.
package prompt

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// DefaultTimeout is how long a prompt waits for an answer.
const DefaultTimeout = 30 * time.Second

// Question is a single-choice prompt.
type Question struct {
	Message string
	Choices []string
	Default string

	// Timeout bounds the wait. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Answer is the outcome of a prompt.
type Answer struct {
	Value string

	// TimedOut is set when Value is the default because the wait expired.
	TimedOut bool

	// Defaulted is set whenever Value is the fallback rather than an answer.
	Defaulted bool
}

// Prompter asks a question and returns the chosen value. Timeouts are not
// errors: the default is returned with Answer.TimedOut set.
type Prompter interface {
	Choose(ctx context.Context, q Question) (Answer, error)
}

// Validate checks that q is answerable.
func (q Question) Validate() error {
	if len(q.Choices) == 0 {
		return errors.New(errors.CodeInvalidInput, "question has no choices")
	}
	if q.Default != "" && q.index(q.Default) < 0 {
		return errors.Newf(errors.CodeInvalidInput, "default %q is not one of the choices", q.Default)
	}
	return nil
}

func (q Question) timeout() time.Duration {
	if q.Timeout <= 0 {
		return DefaultTimeout
	}
	return q.Timeout
}

func (q Question) fallback() string {
	if q.Default != "" {
		return q.Default
	}
	return q.Choices[0]
}

func (q Question) index(value string) int {
	for i, c := range q.Choices {
		if strings.EqualFold(c, value) {
			return i
		}
	}
	return -1
}

// resolve maps raw input to a choice. It accepts the value itself
// (case-insensitive) or its 1-based position.
func (q Question) resolve(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if i := q.index(input); i >= 0 {
		return q.Choices[i], true
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(q.Choices) {
		return q.Choices[n-1], true
	}
	return "", false
}

// LinePrompter prints the question and reads one line of input. It suits
// plain CI consoles where an operator may type into the build log.
//
// A single goroutine owns the input, so an answer typed after one prompt
// timed out is delivered to the next. Calls to Choose must not overlap.
type LinePrompter struct {
	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger

	start sync.Once
	lines chan lineResult
}

// LineOption configures a LinePrompter.
type LineOption func(*LinePrompter)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) LineOption {
	return func(p *LinePrompter) {
		p.logger = logger
	}
}

// NewLinePrompter reads answers from in and writes the question to out.
func NewLinePrompter(in io.Reader, out io.Writer, opts ...LineOption) *LinePrompter {
	p := &LinePrompter{in: bufio.NewReader(in), out: out, lines: make(chan lineResult)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type lineResult struct {
	line string
	err  error
}

// readLines hands every line to the waiting Choose and stops at the first
// read error. The channel is closed afterwards so later prompts see EOF.
func (p *LinePrompter) readLines() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		p.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Choose implements Prompter. An empty line or end of input selects the
// default; an unknown value is re-asked until the wait expires.
func (p *LinePrompter) Choose(ctx context.Context, q Question) (Answer, error) {
	if err := q.Validate(); err != nil {
		return Answer{}, err
	}

	p.start.Do(func() { go p.readLines() })

	timer := time.NewTimer(q.timeout())
	defer timer.Stop()

	fmt.Fprintf(p.out, "%s\n", q.Message)
	for i, c := range q.Choices {
		marker := " "
		if c == q.fallback() {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s %d) %s\n", marker, i+1, c)
	}

	for {
		fmt.Fprintf(p.out, "Choice [%s] (waiting %s): ", q.fallback(), q.timeout())

		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return Answer{}, errors.Wrap(ctx.Err(), errors.CodeCancelled, "prompt cancelled")

		case <-timer.C:
			fmt.Fprintf(p.out, "\nNo answer, using %q\n", q.fallback())
			p.log(ctx, "prompt timed out", q.fallback())
			return Answer{Value: q.fallback(), TimedOut: true, Defaulted: true}, nil

		case r, ok := <-p.lines:
			if !ok {
				r.err = io.EOF
			}
			if strings.TrimSpace(r.line) == "" {
				if r.err != nil && !stderrors.Is(r.err, io.EOF) {
					return Answer{}, errors.Wrap(r.err, errors.CodeInternal, "failed to read answer")
				}
				p.log(ctx, "prompt defaulted", q.fallback())
				return Answer{Value: q.fallback(), Defaulted: true}, nil
			}
			if value, ok := q.resolve(r.line); ok {
				p.log(ctx, "prompt answered", value)
				return Answer{Value: value}, nil
			}
			fmt.Fprintf(p.out, "Unknown choice %q, expected one of: %s\n",
				strings.TrimSpace(r.line), strings.Join(q.Choices, ", "))
			if r.err != nil {
				return Answer{Value: q.fallback(), Defaulted: true}, nil
			}
		}
	}
}

func (p *LinePrompter) log(ctx context.Context, msg, value string) {
	if p.logger == nil {
		return
	}
	p.logger.InfoContext(ctx, msg, slog.String("value", value))
}

// Static answers every question with a fixed value. It is used when the
// selection is already known, for example from a flag or a non-interactive
// environment.
type Static struct {
	Value string
}

// Choose implements Prompter.
func (s Static) Choose(_ context.Context, q Question) (Answer, error) {
	if err := q.Validate(); err != nil {
		return Answer{}, err
	}
	if s.Value == "" {
		return Answer{Value: q.fallback(), Defaulted: true}, nil
	}
	value, ok := q.resolve(s.Value)
	if !ok {
		return Answer{}, errors.Newf(errors.CodeInvalidInput, "%q is not one of: %s",
			s.Value, strings.Join(q.Choices, ", "))
	}
	return Answer{Value: value}, nil
}
