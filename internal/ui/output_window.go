package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"taskflow/internal/progress"
	"taskflow/internal/ui/textutil"
)

const (
	defaultOutputWidth  = 80
	defaultOutputHeight = 12
	// maxOutputLines caps the scrollback kept in memory.
	maxOutputLines = 1000
)

// OutputWindow shows live agent output with scrollback.
type OutputWindow struct {
	lines    []string
	viewport viewport.Model
	follow   bool
}

// Ensure OutputWindow implements View.
var _ View = (*OutputWindow)(nil)

// NewOutputWindow creates an empty output window.
func NewOutputWindow() *OutputWindow {
	vp := viewport.New(defaultOutputWidth, defaultOutputHeight)
	vp.Style = Styles.Box
	return &OutputWindow{viewport: vp, follow: true}
}

// Init implements View.
func (o *OutputWindow) Init() tea.Cmd {
	return nil
}

// Update implements View.
func (o *OutputWindow) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case progress.Event:
		if msg.Kind == progress.KindOutputLine {
			o.Append(msg.Line)
		}
		return o, nil
	case tea.WindowSizeMsg:
		o.Resize(msg.Width, msg.Height)
		return o, nil
	}

	var cmd tea.Cmd
	o.viewport, cmd = o.viewport.Update(msg)
	o.follow = o.viewport.AtBottom()
	return o, cmd
}

// View implements View.
func (o *OutputWindow) View() string {
	return o.viewport.View()
}

// Append adds one output line, dropping the oldest past the scrollback cap.
func (o *OutputWindow) Append(line string) {
	o.lines = append(o.lines, strings.ReplaceAll(strings.TrimRight(line, "\r"), "\t", "    "))
	if len(o.lines) > maxOutputLines {
		o.lines = o.lines[len(o.lines)-maxOutputLines:]
	}
	o.refreshContent()
}

// Lines returns the buffered output.
func (o *OutputWindow) Lines() []string {
	return o.lines
}

// Resize fits the window into a terminal of the given size, leaving room
// for the run header and help line.
func (o *OutputWindow) Resize(width, height int) {
	w := width - 2
	h := height - 10
	if w < 40 {
		w = 40
	}
	if h < 5 {
		h = 5
	}
	o.viewport.Width = w
	o.viewport.Height = h
	o.refreshContent()
}

func (o *OutputWindow) refreshContent() {
	inner := o.viewport.Width - o.viewport.Style.GetHorizontalFrameSize()
	rendered := make([]string, len(o.lines))
	for i, l := range o.lines {
		rendered[i] = Styles.Output.Render(textutil.Truncate(l, inner))
	}
	content := strings.Join(rendered, "\n")
	if content == "" {
		content = Styles.Muted.Render("Waiting for agent output...")
	}
	o.viewport.SetContent(content)
	if o.follow {
		o.viewport.GotoBottom()
	}
}

// Follow jumps to the newest output and keeps following it.
func (o *OutputWindow) Follow() {
	o.follow = true
	o.viewport.GotoBottom()
}
