package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/saimanas17/housing-price-prediction-mlops/domain"
	"github.com/saimanas17/housing-price-prediction-mlops/errors"
)

// Format selects how a report is rendered.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// ParseFormat parses a report format. The empty string is FormatPretty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPretty, nil
	case FormatPretty, FormatJSON:
		return f, nil
	default:
		return "", errors.Newf(errors.CodeInvalidInput, "unknown report format %q (expected pretty or json)", s)
	}
}

// Render writes report to w.
func Render(w io.Writer, report *domain.RunReport, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to encode report")
		}
		return nil
	case FormatPretty, "":
		return renderPretty(w, report)
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown report format %q", format)
	}
}

type reportStyles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	faint  lipgloss.Style
	status map[domain.StageStatus]lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	r := lipgloss.NewRenderer(w)
	return reportStyles{
		title: r.NewStyle().Bold(true),
		label: r.NewStyle().Width(12),
		faint: r.NewStyle().Faint(true),
		status: map[domain.StageStatus]lipgloss.Style{
			domain.StageStatusSuccess: r.NewStyle().Foreground(lipgloss.Color("2")).Width(8),
			domain.StageStatusFailed:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true).Width(8),
			domain.StageStatusSkipped: r.NewStyle().Foreground(lipgloss.Color("3")).Width(8),
			domain.StageStatusPending: r.NewStyle().Faint(true).Width(8),
			domain.StageStatusRunning: r.NewStyle().Foreground(lipgloss.Color("4")).Width(8),
		},
	}
}

func renderPretty(w io.Writer, report *domain.RunReport) error {
	s := newReportStyles(w)
	var b strings.Builder

	title := "Deployer run " + report.Tag
	if report.DryRun {
		title += " (dry run)"
	}
	b.WriteString(s.title.Render(title) + "\n")

	nameWidth := 0
	for _, st := range report.Stages {
		nameWidth = max(nameWidth, len(st.Name))
	}
	for _, st := range report.Stages {
		line := fmt.Sprintf("  %s %-*s", s.status[st.Status].Render(string(st.Status)), nameWidth, st.Name)
		if st.Status == domain.StageStatusSuccess || st.Status == domain.StageStatusFailed {
			line += " " + s.faint.Render(st.Duration.Round(time.Millisecond).String())
		}
		if st.Detail != "" {
			line += "  " + st.Detail
		}
		if st.Error != "" {
			line += "  " + st.Error
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}

	if len(report.Images) > 0 {
		b.WriteString(s.label.Render("images") + "\n")
		for _, image := range report.Images {
			b.WriteString("  " + image.String() + "\n")
		}
	}
	if len(report.Manifests) > 0 {
		b.WriteString(s.label.Render("manifests") + "\n")
		for _, m := range report.Manifests {
			b.WriteString("  " + m + "\n")
		}
	}
	if report.Commit != "" {
		b.WriteString(s.label.Render("commit") + shortSHA(report.Commit) + "\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to write report")
	}
	return nil
}
