package executor

import (
	"context"
	"log/slog"
	"sync"
)

// DryRun is a Runner that records commands instead of executing them.
// It backs the --dry-run flag and doubles as a scripted fake in tests.
type DryRun struct {
	// Respond, when set, produces the result for each recorded command.
	// When nil every command succeeds with an empty result.
	Respond func(cmd Command) (*Result, error)

	// Logger receives one info record per command. Nil disables logging.
	Logger *slog.Logger

	mu       sync.Mutex
	commands []Command
}

// NewDryRun returns a DryRun runner logging to logger.
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{Logger: logger}
}

// Run implements Runner.
func (d *DryRun) Run(ctx context.Context, cmd Command, opts ...Option) (*Result, error) {
	options := mergeOptions(DefaultOptions(), opts...)

	d.mu.Lock()
	d.commands = append(d.commands, cmd)
	d.mu.Unlock()

	if d.Logger != nil {
		d.Logger.InfoContext(ctx, "dry-run: skipping command",
			slog.String("command", Redact(cmd.String(), options.Redact)),
			slog.String("dir", cmd.Dir),
		)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.Respond == nil {
		return &Result{}, nil
	}
	return d.Respond(cmd)
}

// Commands returns a copy of the recorded commands in call order.
func (d *DryRun) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Command(nil), d.commands...)
}

// Lines returns the recorded commands rendered with Command.String.
func (d *DryRun) Lines() []string {
	cmds := d.Commands()
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return lines
}
