package ui

import tea "github.com/charmbracelet/bubbletea"

// View is a region of the run screen with its own update loop. RunModel
// forwards messages to its child views.
type View interface {
	Init() tea.Cmd
	Update(tea.Msg) (View, tea.Cmd)
	View() string
}
