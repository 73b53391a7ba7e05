// Package highlight colors run artifacts (checkpoints, results, configs)
// for terminal display.
package highlight

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// Highlighter provides syntax highlighting of artifact files.
type Highlighter struct {
	style     string
	formatter chroma.Formatter
}

// New creates a Highlighter with the given chroma style, "monokai" when empty.
func New(style string) *Highlighter {
	if style == "" {
		style = "monokai"
	}
	return &Highlighter{
		style:     style,
		formatter: formatters.Get("terminal256"),
	}
}

// Highlight applies syntax highlighting to code in lang. The input is
// returned unchanged when it cannot be tokenised.
func (h *Highlighter) Highlight(code, lang string) string {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.style)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// HighlightWithLineNumbers highlights code and prefixes each line with its number.
func (h *Highlighter) HighlightWithLineNumbers(code, lang string, startLine int) string {
	lines := strings.Split(h.Highlight(code, lang), "\n")
	lineNumStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var result strings.Builder
	for i, line := range lines {
		result.WriteString(lineNumStyle.Render(fmt.Sprintf("%4d", startLine+i)))
		result.WriteString(" │ ")
		result.WriteString(line)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// DetectLanguage maps an artifact file name to a lexer name.
func DetectLanguage(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".csv":
		return "text"
	case ".md":
		return "markdown"
	}
	if lexer := lexers.Match(filename); lexer != nil {
		return lexer.Config().Name
	}
	return "text"
}
