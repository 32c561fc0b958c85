package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskflow/internal/pipeline"
	"taskflow/internal/progress"
	"taskflow/internal/ui/textutil"
)

// RunHandle is the part of a pipeline run the view controls.
type RunHandle interface {
	Stop()
	Wait() pipeline.Result
}

// RunFinishedMsg is sent once the run has produced its result.
type RunFinishedMsg struct {
	Result pipeline.Result
}

type eventsClosedMsg struct{}

type stageState int

const (
	stagePending stageState = iota
	stageActive
	stageDone
	stageFailed
	stageRejected
)

var runStages = []string{"plan", "code", "audit"}

// finishedTask is one line in the column-run summary.
type finishedTask struct {
	id       string
	ok       bool
	hardStop bool
	detail   string
}

// RunModel is the live view of one pipeline run. It follows the engine's
// event stream and stops the run on request.
type RunModel struct {
	run    RunHandle
	events <-chan progress.Event

	spinner spinner.Model
	output  *OutputWindow
	help    help.Model
	keys    runKeys

	taskID   string
	title    string
	stage    string
	agent    string
	provider string
	started  time.Time
	stages   map[string]stageState
	finished []finishedTask

	stopping bool
	result   *pipeline.Result
	width    int
}

var _ tea.Model = (*RunModel)(nil)

// NewRunModel returns a view over run fed by events.
func NewRunModel(run RunHandle, events <-chan progress.Event) *RunModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = Styles.Stage
	return &RunModel{
		run:     run,
		events:  events,
		spinner: sp,
		output:  NewOutputWindow(),
		help:    newHelp(),
		keys:    defaultRunKeys(),
		stages:  map[string]stageState{},
		width:   defaultOutputWidth,
	}
}

// Init implements tea.Model.
func (m *RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), waitForResult(m.run))
}

func waitForEvent(events <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return ev
	}
}

func waitForResult(run RunHandle) tea.Cmd {
	return func() tea.Msg {
		return RunFinishedMsg{Result: run.Wait()}
	}
}

// Update implements tea.Model.
func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progress.Event:
		m.apply(msg)
		if msg.Kind == progress.KindOutputLine {
			m.output.Update(msg)
		}
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		return m, nil
	case RunFinishedMsg:
		res := msg.Result
		m.result = &res
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.output.Resize(msg.Width, msg.Height)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Stop):
			if !m.stopping {
				m.stopping = true
				m.run.Stop()
			}
			return m, nil
		case key.Matches(msg, m.keys.Bottom):
			m.output.Follow()
			return m, nil
		}
	}

	_, cmd := m.output.Update(msg)
	return m, cmd
}

func (m *RunModel) apply(ev progress.Event) {
	switch ev.Kind {
	case progress.KindTaskStarted:
		m.taskID = ev.TaskID
		m.title = ev.Title
		m.stage = ev.Stage
		m.agent, m.provider = "", ""
		m.stages = map[string]stageState{}
		// Stages before the starting one are already behind the task.
		for _, s := range runStages {
			if s == ev.Stage {
				break
			}
			m.stages[s] = stageDone
		}
	case progress.KindStageStarted:
		m.stage = ev.Stage
		m.agent = ev.Agent
		m.provider = ev.Provider
		m.started = ev.Timestamp
		m.stages[ev.Stage] = stageActive
	case progress.KindStageCompleted:
		m.stages[ev.Stage] = stageDone
	case progress.KindTaskCompleted:
		m.finished = append(m.finished, finishedTask{id: ev.TaskID, ok: true, detail: "done"})
	case progress.KindTaskFailed:
		if !ev.HardStop {
			// Soft failures are audit rejections; the task went back to code.
			m.stages["audit"] = stageRejected
		} else if ev.Stage != "" {
			m.stages[ev.Stage] = stageFailed
		}
		id := ev.TaskID
		if id == "" {
			id = ev.Stage + " column"
		}
		m.finished = append(m.finished, finishedTask{id: id, hardStop: ev.HardStop, detail: ev.Error})
	}
}

// Result returns the run's result once it has finished.
func (m *RunModel) Result() (pipeline.Result, bool) {
	if m.result == nil {
		return pipeline.Result{}, false
	}
	return *m.result, true
}

// View implements tea.Model.
func (m *RunModel) View() string {
	if m.result != nil {
		return RenderResult(*m.result) + "\n"
	}

	var lines []string
	header := Styles.Title.Render("taskflow")
	if m.taskID != "" {
		header += " " + Styles.Normal.Render(m.taskID)
		if m.title != "" && m.title != m.taskID {
			header += " " + Styles.Muted.Render(m.title)
		}
	}
	lines = append(lines, header, m.renderStages())

	status := m.spinner.View() + " "
	switch {
	case m.stopping:
		status += Styles.Warning.Render("stopping...")
	case m.agent != "":
		status += fmt.Sprintf("%s via %s", m.agent, m.provider)
		if !m.started.IsZero() {
			status += " " + Styles.Muted.Render(time.Since(m.started).Round(time.Second).String())
		}
	default:
		status += Styles.Muted.Render("starting...")
	}
	lines = append(lines, status)

	for _, f := range m.finished {
		lines = append(lines, m.renderFinished(f))
	}

	lines = append(lines, m.output.View(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *RunModel) renderStages() string {
	parts := make([]string, len(runStages))
	for i, s := range runStages {
		switch m.stages[s] {
		case stageActive:
			parts[i] = Styles.Stage.Render("● " + s)
		case stageDone:
			parts[i] = Styles.Success.Render("✓ " + s)
		case stageFailed:
			parts[i] = Styles.Danger.Render("✗ " + s)
		case stageRejected:
			parts[i] = Styles.Warning.Render("↺ " + s)
		default:
			parts[i] = Styles.Muted.Render("· " + s)
		}
	}
	return strings.Join(parts, Styles.Muted.Render(" → "))
}

func (m *RunModel) renderFinished(f finishedTask) string {
	detail := textutil.Truncate(textutil.SingleLine(f.detail), m.width-textutil.VisualWidth(f.id)-4)
	switch {
	case f.ok:
		return Styles.Success.Render("✓ " + f.id)
	case f.hardStop:
		return Styles.Danger.Render("✗ "+f.id) + " " + Styles.Muted.Render(detail)
	default:
		return Styles.Warning.Render("↺ "+f.id) + " " + Styles.Muted.Render(detail)
	}
}
