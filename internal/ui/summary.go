package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"newsbench/internal/experiment"
	"newsbench/internal/report"
)

// Summary renders the outcome of a variant and its statistics table.
func Summary(out *experiment.Outcome, run *report.Run) string {
	s := DefaultStyles()

	var b strings.Builder
	icon := s.Success.Render(MessageIcons["success"])
	b.WriteString(icon + " " + s.Title.Render("Run finished") + "\n")

	kv := func(k, v string) {
		b.WriteString(s.Label.Render(fmt.Sprintf("  %-10s", k)) + s.Value.Render(v) + "\n")
	}
	if label := out.Variant.Label(); label != "" {
		kv("variant", label)
	}
	kv("items", fmt.Sprintf("%d", len(out.Items)))
	kv("calls", fmt.Sprintf("%d", out.Calls))
	if out.Resumed {
		kv("resumed", "yes")
	}
	kv("elapsed", FormatDuration(out.Duration))
	if run != nil {
		kv("results", run.Dir.Path)
	}

	if run != nil && run.Table != nil && len(run.Table.Rows) > 0 {
		b.WriteString("\n")
		b.WriteString(ScoreTable(run.Table, s))
		b.WriteString("\n")
	}
	return s.Box.Render(strings.TrimRight(b.String(), "\n"))
}

// ScoreTable renders a statistics table with the mean row emphasized.
func ScoreTable(t *report.Table, s *Styles) string {
	last := len(t.Rows) - 1
	tbl := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		Headers(t.Header...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return s.Header
			case row == last && len(t.Rows[row]) > 0 && t.Rows[row][0] == "mean":
				return s.Mean
			}
			return s.Cell
		})
	return tbl.String()
}
