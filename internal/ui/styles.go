// Package ui renders run progress and summaries on the terminal.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Colors for the terminal output - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorHighlight = lipgloss.Color("#E9D5FF") // Soft Purple (Purple 200)
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500

	ColorGradient1 = lipgloss.Color("#C084FC") // Purple 500
	ColorGradient3 = lipgloss.Color("#38BDF8") // Sky 500
)

// MessageIcons provides consistent icons for different message types.
var MessageIcons = map[string]string{
	"success": "✓",
	"error":   "✗",
	"warning": "⚠",
	"info":    "ℹ",
	"skip":    "↷",
}

// Styles contains the styles of the terminal output.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Mean    lipgloss.Style
	Box     lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
	Dim     lipgloss.Style
}

// DefaultStyles returns the default style set.
func DefaultStyles() *Styles {
	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorHighlight),
		Label:   lipgloss.NewStyle().Foreground(ColorMuted),
		Value:   lipgloss.NewStyle().Foreground(ColorSecondary),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).PaddingRight(2),
		Cell:    lipgloss.NewStyle().PaddingRight(2),
		Mean:    lipgloss.NewStyle().Bold(true).PaddingRight(2),
		Box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorDim).Padding(0, 1),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Success: lipgloss.NewStyle().Foreground(ColorSuccess),
		Dim:     lipgloss.NewStyle().Foreground(ColorDim),
	}
}

// FormatDuration renders d compactly: 850ms, 4.2s, 12.5m, 1.3h.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
