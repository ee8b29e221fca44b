package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors used by styled command output.
var colors = struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	Error   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
}{
	Primary: lipgloss.Color("#6C5CE7"), // Purple
	Muted:   lipgloss.Color("#636E72"), // Gray
	Error:   lipgloss.Color("#D63031"), // Red
	Success: lipgloss.Color("#00B894"), // Green
	Warning: lipgloss.Color("#FDCB6E"), // Yellow
}

// styles holds the lipgloss styles for command output.
var styles = struct {
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Blurb   lipgloss.Style
}{
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colors.Primary),
	Muted:   lipgloss.NewStyle().Foreground(colors.Muted),
	Error:   lipgloss.NewStyle().Foreground(colors.Error),
	Success: lipgloss.NewStyle().Foreground(colors.Success),
	Warning: lipgloss.NewStyle().Foreground(colors.Warning),
	Blurb: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colors.Muted).
		Padding(0, 1),
}

// padRight pads s to width display cells.
func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
