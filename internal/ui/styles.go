package ui

import (
	"github.com/charmbracelet/lipgloss"

	"taskflow/internal/pipeline"
)

// Theme colors used throughout the UI
const (
	ColorAccent    = "86"  // Cyan/green - titles, completed work
	ColorHighlight = "205" // Magenta - borders, active stage
	ColorDanger    = "196" // Red - hard stops
	ColorMuted     = "241" // Gray - dimmed text, hints
	ColorText      = "252" // Light gray - normal text
	ColorDim       = "243" // Darker gray - agent output
	ColorWarning   = "208" // Orange - soft failures
)

// Styles contains shared style definitions for the printer and the TUI.
var Styles = struct {
	Title   lipgloss.Style // Bold accent color - headers
	Stage   lipgloss.Style // Stage badge
	Muted   lipgloss.Style // Timestamps, hints
	Normal  lipgloss.Style
	Output  lipgloss.Style // Agent output lines
	Success lipgloss.Style // Completed
	Warning lipgloss.Style // Soft failure
	Danger  lipgloss.Style // Hard stop
	Box     lipgloss.Style // Bordered panel
}{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorAccent)),
	Stage: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorHighlight)),
	Muted: lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorMuted)),
	Normal: lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorText)),
	Output: lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorDim)),
	Success: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorAccent)),
	Warning: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorWarning)),
	Danger: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorDanger)),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorHighlight)).
		Padding(0, 1),
}

// ResultStyle picks the style for a run outcome: warning for soft failures,
// danger for hard stops.
func ResultStyle(res pipeline.Result) lipgloss.Style {
	switch {
	case res.Status == pipeline.StatusCompleted:
		return Styles.Success
	case res.Status == pipeline.StatusStopped:
		return Styles.Muted
	case res.HardStop:
		return Styles.Danger
	default:
		return Styles.Warning
	}
}

// ResultLabel is the short heading shown for a run outcome.
func ResultLabel(res pipeline.Result) string {
	switch {
	case res.Status == pipeline.StatusCompleted:
		return "completed"
	case res.Status == pipeline.StatusStopped:
		return "stopped"
	case res.HardStop:
		return "hard stop"
	default:
		return "needs another pass"
	}
}
