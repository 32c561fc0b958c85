package ui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

// runKeys are the bindings of the live run view.
type runKeys struct {
	Stop   key.Binding
	Up     key.Binding
	Down   key.Binding
	Bottom key.Binding
}

func defaultRunKeys() runKeys {
	return runKeys{
		Stop: key.NewBinding(
			key.WithKeys("s", "q", "ctrl+c"),
			key.WithHelp("s/q", "stop run"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up", "pgup"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down", "pgdown"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "follow output"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k runKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Stop, k.Up, k.Down, k.Bottom}
}

// FullHelp implements help.KeyMap.
func (k runKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newHelp() help.Model {
	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorHighlight)).
		Bold(true)
	h.Styles.ShortDesc = lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorMuted))
	h.Styles.ShortSeparator = lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorMuted))
	return h
}
