package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
	"github.com/branchpnl/pnl-dashboard/pkg/utils"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// writeHeader writes a styled, tab separated header line and a rule.
func writeHeader(tw *tabwriter.Writer, cols ...string) {
	styled := make([]string, len(cols))
	rules := make([]string, len(cols))
	for i, c := range cols {
		styled[i] = headerStyle.Render(c)
		rules[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(tw, strings.Join(styled, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
}

// printResult writes the one-line outcome of an upload, then its warnings.
func printResult(w io.Writer, res converter.Result) {
	name := filepath.Base(res.FilePath)
	if !res.Success {
		fmt.Fprintf(w, "  %s %s: %s\n", errorStyle.Render("✗"), name, firstLine(res.Message))
		return
	}
	fmt.Fprintf(w, "  %s %s %s %s\n", successStyle.Render("✓"), name, dimStyle.Render("->"), res.Message)
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "      %s %s\n", warnStyle.Render("!"), warning.Error())
	}
}

// renderSummary formats a batch summary as a bordered box.
func renderSummary(s utils.ProcessingSummary) string {
	var b strings.Builder
	title := "Processing Complete"
	if s.DryRun {
		title += " (dry run)"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")
	fmt.Fprintf(&b, "Run ID:        %s\n", s.RunID)
	fmt.Fprintf(&b, "Total files:   %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "Successful:    %s\n", successStyle.Render(fmt.Sprint(s.SuccessfulFiles)))
	failed := fmt.Sprint(s.FailedFiles)
	if s.FailedFiles > 0 {
		failed = errorStyle.Render(failed)
	}
	fmt.Fprintf(&b, "Failed:        %s\n", failed)
	fmt.Fprintf(&b, "Branches:      %d\n", s.TotalBranches)
	fmt.Fprintf(&b, "Warnings:      %d\n", s.Warnings)
	fmt.Fprintf(&b, "Time elapsed:  %s", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	return boxStyle.Render(b.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
