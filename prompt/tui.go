package prompt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// Theme holds the styles of the interactive prompt.
type Theme struct {
	Title    lipgloss.Style
	Cursor   lipgloss.Style
	Selected lipgloss.Style
	Choice   lipgloss.Style
	Help     lipgloss.Style
}

// DefaultTheme returns the standard prompt styles.
func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Choice:   lipgloss.NewStyle(),
		Help:     lipgloss.NewStyle().Faint(true),
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// selectModel is the bubbletea model behind TUIPrompter.
type selectModel struct {
	q         Question
	theme     Theme
	cursor    int
	remaining time.Duration

	chosen   string
	timedOut bool
	aborted  bool
	done     bool
}

func newSelectModel(q Question, theme Theme) selectModel {
	cursor := q.index(q.fallback())
	if cursor < 0 {
		cursor = 0
	}
	return selectModel{q: q, theme: theme, cursor: cursor, remaining: q.timeout()}
}

func (m selectModel) Init() tea.Cmd { return tick() }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.done {
		return m, nil
	}

	switch msg := msg.(type) {
	case tickMsg:
		m.remaining -= time.Second
		if m.remaining <= 0 {
			m.chosen = m.q.fallback()
			m.timedOut = true
			m.done = true
			return m, tea.Quit
		}
		return m, tick()

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "ctrl+c", "esc", "q":
			m.aborted = true
			m.done = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.q.Choices)-1 {
				m.cursor++
			}
		case "enter", " ":
			m.chosen = m.q.Choices[m.cursor]
			m.done = true
			return m, tea.Quit
		default:
			if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.q.Choices) {
				m.cursor = n - 1
				m.chosen = m.q.Choices[m.cursor]
				m.done = true
				return m, tea.Quit
			}
		}
	}

	return m, nil
}

func (m selectModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.theme.Title.Render(m.q.Message))
	b.WriteString("\n\n")

	for i, c := range m.q.Choices {
		label := fmt.Sprintf("%d) %s", i+1, c)
		if c == m.q.fallback() {
			label += " (default)"
		}
		if i == m.cursor {
			b.WriteString(m.theme.Cursor.Render("> "))
			b.WriteString(m.theme.Selected.Render(label))
		} else {
			b.WriteString("  ")
			b.WriteString(m.theme.Choice.Render(label))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Help.Render(fmt.Sprintf(
		"↑/↓ move • enter select • esc abort • %q in %ds",
		m.q.fallback(), int(m.remaining.Seconds()))))
	b.WriteString("\n")

	return b.String()
}

// TUIPrompter shows an interactive list with a countdown.
type TUIPrompter struct {
	in     io.Reader
	out    io.Writer
	theme  Theme
	logger *slog.Logger
}

// TUIOption configures a TUIPrompter.
type TUIOption func(*TUIPrompter)

// WithTheme overrides the default styles.
func WithTheme(theme Theme) TUIOption {
	return func(p *TUIPrompter) {
		p.theme = theme
	}
}

// WithTUILogger sets the logger. A nil logger disables logging.
func WithTUILogger(logger *slog.Logger) TUIOption {
	return func(p *TUIPrompter) {
		p.logger = logger
	}
}

// NewTUIPrompter returns a prompter that draws on out and reads keys from in.
func NewTUIPrompter(in io.Reader, out io.Writer, opts ...TUIOption) *TUIPrompter {
	p := &TUIPrompter{in: in, out: out, theme: DefaultTheme()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Choose implements Prompter.
func (p *TUIPrompter) Choose(ctx context.Context, q Question) (Answer, error) {
	if err := q.Validate(); err != nil {
		return Answer{}, err
	}

	program := tea.NewProgram(newSelectModel(q, p.theme),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)

	final, err := program.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Answer{}, errors.Wrap(ctxErr, errors.CodeCancelled, "prompt cancelled")
	}
	if err != nil {
		return Answer{}, errors.Wrap(err, errors.CodeInternal, "interactive prompt failed")
	}

	m, ok := final.(selectModel)
	if !ok {
		return Answer{}, errors.New(errors.CodeInternal, "unexpected prompt model")
	}
	return p.answer(ctx, m)
}

func (p *TUIPrompter) answer(ctx context.Context, m selectModel) (Answer, error) {
	if m.aborted {
		return Answer{}, errors.New(errors.CodeCancelled, "selection aborted by operator")
	}

	a := Answer{Value: m.chosen, TimedOut: m.timedOut, Defaulted: m.timedOut}
	if p.logger != nil {
		p.logger.InfoContext(ctx, "prompt answered",
			slog.String("value", a.Value),
			slog.Bool("timed_out", a.TimedOut),
		)
	}
	return a, nil
}
