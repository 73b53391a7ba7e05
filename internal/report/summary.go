package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown describes a run as a Markdown document.
func Markdown(r *Results, t *Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "- **Model:** `%s`\n", r.Model)
	fmt.Fprintf(&b, "- **Experiment:** %s\n", r.Experiment)
	if r.Variant != "" {
		fmt.Fprintf(&b, "- **Variant:** %s\n", r.Variant)
	}
	fmt.Fprintf(&b, "- **Samples per item:** %d\n", r.Samples)
	switch {
	case r.Likert && r.Agreement:
		b.WriteString("- **Scale:** Likert with agreement\n")
	case r.Likert:
		b.WriteString("- **Scale:** Likert\n")
	default:
		b.WriteString("- **Scale:** yes/no\n")
	}
	fmt.Fprintf(&b, "- **Items:** %d\n", len(r.IDs()))
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Written:** %s\n", r.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if t != nil && len(t.Rows) > 0 {
		b.WriteString("\n## Scores\n\n")
		b.WriteString(t.Markdown())
	}
	return b.String()
}

// RenderMarkdown renders md for the terminal. style is a glamour standard
// style name ("dark", "light", "notty"); width 0 disables wrapping.
func RenderMarkdown(md, style string, width int) (string, error) {
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
