package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Tiliavir/ttt-anomalies/internal/model"
	"github.com/Tiliavir/ttt-anomalies/internal/timecalc"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	dateStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	openStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	resolvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	summaryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

// colorOutput reports whether stdout is a terminal.
func colorOutput() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// painter applies styles only when color is enabled. Cells are padded before
// styling so escape codes do not break the column widths.
type painter struct {
	color bool
}

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p painter) status(st model.AnomalyStatus, text string) string {
	switch st {
	case model.StatusOpen:
		return p.paint(openStyle, text)
	case model.StatusMuted:
		return p.paint(mutedStyle, text)
	default:
		return p.paint(resolvedStyle, text)
	}
}

const rowFormat = "%-10s  %-12s  %-19s  %-8s  %7s  %7s  %s"

// printAnomalies writes a table of anomalies, one per line.
func printAnomalies(w io.Writer, anomalies []model.Anomaly, p painter) {
	if len(anomalies) == 0 {
		fmt.Fprintln(w, "No anomalies found.")
		return
	}

	fmt.Fprintln(w, p.paint(headerStyle, fmt.Sprintf(rowFormat,
		"DATE", "USER", "TYPE", "STATUS", "TRACKED", "TARGET", "COMMENTS")))
	for _, a := range anomalies {
		comments := ""
		if n := len(a.Comments); n > 0 {
			comments = fmt.Sprintf("%d", n)
		}
		status := fmt.Sprintf("%-8s", a.Status)
		fmt.Fprintf(w, "%s  %-12s  %-19s  %s  %7s  %7s  %s\n",
			p.paint(dateStyle, fmt.Sprintf("%-10s", a.Date)),
			a.UserID,
			a.Type.Slug(),
			p.status(a.Status, status),
			timecalc.FormatHours(a.Details.TrackedHours),
			timecalc.FormatHours(a.Details.TargetHours),
			comments,
		)
	}
}

// printSummary writes a one-line count of open, muted and resolved anomalies.
func printSummary(w io.Writer, anomalies []model.Anomaly, p painter) {
	var open, muted, resolved int
	for _, a := range anomalies {
		switch a.Status {
		case model.StatusOpen:
			open++
		case model.StatusMuted:
			muted++
		case model.StatusResolved:
			resolved++
		}
	}
	fmt.Fprintln(w, p.paint(summaryStyle, fmt.Sprintf("%d anomalies: %d open, %d muted, %d resolved",
		len(anomalies), open, muted, resolved)))
}
