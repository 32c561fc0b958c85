package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"taskflow/internal/markers"
	"taskflow/internal/pipeline"
	"taskflow/internal/progress"
	"taskflow/internal/ui/textutil"
)

// maxOutputWidth bounds echoed agent output lines in the plain printer.
const maxOutputWidth = 160

// Printer writes one styled line per pipeline event. Agent output is only
// echoed when ShowOutput is set.
type Printer struct {
	W          io.Writer
	ShowOutput bool
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer, showOutput bool) *Printer {
	return &Printer{W: w, ShowOutput: showOutput}
}

// Run prints events until the channel is closed.
func (p *Printer) Run(events <-chan progress.Event) {
	for ev := range events {
		p.Emit(ev)
	}
}

// Emit implements progress.Emitter.
func (p *Printer) Emit(ev progress.Event) {
	line := p.format(ev)
	if line == "" {
		return
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(p.W, "%s %s\n", Styles.Muted.Render(ts.Format("15:04:05")), line)
}

func (p *Printer) format(ev progress.Event) string {
	switch ev.Kind {
	case progress.KindTaskStarted:
		return fmt.Sprintf("%s %s %s", Styles.Title.Render("▶ "+ev.TaskID), ev.Title, Styles.Muted.Render("from "+ev.Stage))
	case progress.KindStageStarted:
		return fmt.Sprintf("  %s %s", Styles.Stage.Render(ev.Stage), Styles.Muted.Render(ev.Agent+" via "+ev.Provider))
	case progress.KindStageCompleted:
		return fmt.Sprintf("  %s %s%s", Styles.Success.Render("✓ "+ev.Stage), Styles.Muted.Render(ev.Duration.Round(time.Second).String()), describeMarkers(ev.Markers))
	case progress.KindTaskCompleted:
		return Styles.Success.Render("✓ " + ev.TaskID + " done")
	case progress.KindTaskFailed:
		style := Styles.Warning
		if ev.HardStop {
			style = Styles.Danger
		}
		if ev.TaskID == "" {
			return style.Render(fmt.Sprintf("✗ %s column: %s", ev.Stage, ev.Error))
		}
		return style.Render(fmt.Sprintf("✗ %s at %s: %s", ev.TaskID, ev.Stage, ev.Error))
	case progress.KindRunStopped:
		if ev.Reason != progress.ReasonStopped {
			return ""
		}
		return Styles.Muted.Render("■ run stopped")
	case progress.KindOutputLine:
		if !p.ShowOutput || strings.TrimSpace(ev.Line) == "" {
			return ""
		}
		return "    " + Styles.Output.Render(textutil.Truncate(ev.Line, maxOutputWidth))
	default:
		return ""
	}
}

func describeMarkers(m *markers.Result) string {
	if m == nil {
		return ""
	}
	var parts []string
	if m.Rating != nil {
		parts = append(parts, fmt.Sprintf("rating %d/10", *m.Rating))
	}
	if m.Verdict != markers.VerdictNone {
		parts = append(parts, string(m.Verdict))
	}
	if len(m.FilesChanged) > 0 {
		parts = append(parts, fmt.Sprintf("%d file(s) changed", len(m.FilesChanged)))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + Styles.Normal.Render(strings.Join(parts, ", "))
}

// RenderResult formats the final outcome of a run, including the per-task
// breakdown of a column run.
func RenderResult(res pipeline.Result) string {
	var b strings.Builder
	style := ResultStyle(res)
	head := ResultLabel(res)
	if res.TaskID != "" && len(res.Tasks) == 0 {
		head += ": " + res.TaskID
	}
	head += " (" + res.Stage.String() + ")"
	b.WriteString(style.Render(head))
	if res.Error != "" && res.Status != pipeline.StatusCompleted {
		b.WriteString("\n  " + style.Render(res.Error))
	}
	for _, tr := range res.Tasks {
		fmt.Fprintf(&b, "\n  %s %s %s", ResultStyle(tr).Render(marker(tr)), tr.TaskID, Styles.Muted.Render(tr.Stage.String()))
	}
	return b.String()
}

func marker(res pipeline.Result) string {
	switch {
	case res.Status == pipeline.StatusCompleted:
		return "✓"
	case res.Status == pipeline.StatusStopped:
		return "■"
	case res.HardStop:
		return "✗"
	default:
		return "↺"
	}
}
