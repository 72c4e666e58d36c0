package prompt

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// Mode selects how the operator is asked.
type Mode string

const (
	// ModeAuto uses the interactive list on a terminal and no prompt otherwise.
	ModeAuto Mode = "auto"
	// ModeTUI always uses the interactive list.
	ModeTUI Mode = "tui"
	// ModeLine reads a line from the input stream.
	ModeLine Mode = "line"
	// ModeNone never asks and answers with the default.
	ModeNone Mode = "none"
)

// ParseMode parses a prompt mode. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeTUI, ModeLine, ModeNone:
		return m, nil
	default:
		return "", errors.Newf(errors.CodeInvalidConfig,
			"unknown prompt mode %q (expected auto, tui, line or none)", s)
	}
}

// IsInteractive reports whether r and w are both attached to a terminal.
func IsInteractive(r io.Reader, w io.Writer) bool {
	in, ok := r.(*os.File)
	if !ok {
		return false
	}
	out, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd()))
}

// New returns the prompter for mode over the given streams.
func New(mode Mode, in io.Reader, out io.Writer, logger *slog.Logger) Prompter {
	switch mode {
	case ModeTUI:
		return NewTUIPrompter(in, out, WithTUILogger(logger))
	case ModeLine:
		return NewLinePrompter(in, out, WithLogger(logger))
	case ModeNone:
		return Static{}
	default:
		if IsInteractive(in, out) {
			return NewTUIPrompter(in, out, WithTUILogger(logger))
		}
		return Static{}
	}
}
