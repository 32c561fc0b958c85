package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"taskflow/internal/markers"
	"taskflow/internal/pipeline"
	"taskflow/internal/progress"
	"taskflow/internal/task"
)

func TestPrinter_Lifecycle(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	rating := 9
	ts := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

	events := make(chan progress.Event, 8)
	events <- progress.Event{Kind: progress.KindTaskStarted, TaskID: "login", Title: "Add login", Stage: "plan", Timestamp: ts}
	events <- progress.Event{Kind: progress.KindStageStarted, TaskID: "login", Stage: "audit", Agent: "auditor", Provider: "codex", Timestamp: ts}
	events <- progress.Event{Kind: progress.KindOutputLine, Line: "thinking hard", Timestamp: ts}
	events <- progress.Event{Kind: progress.KindStageCompleted, Stage: "audit", Duration: 90 * time.Second,
		Markers: &markers.Result{Rating: &rating, Verdict: markers.VerdictAccepted}, Timestamp: ts}
	events <- progress.Event{Kind: progress.KindTaskCompleted, TaskID: "login", Timestamp: ts}
	events <- progress.Event{Kind: progress.KindRunStopped, Reason: progress.ReasonCompleted, Timestamp: ts}
	close(events)
	p.Run(events)

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	for _, want := range []string{"14:05:09", "▶ login", "Add login", "auditor via codex", "✓ audit", "1m30s", "rating 9/10", "ACCEPTED", "login done"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "thinking hard") {
		t.Errorf("agent output printed without ShowOutput:\n%s", out)
	}
}

func TestPrinter_ShowOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)

	p.Emit(progress.Event{Kind: progress.KindOutputLine, Line: "compiling"})
	p.Emit(progress.Event{Kind: progress.KindOutputLine, Line: "   "})
	p.Emit(progress.Event{Kind: progress.KindOutputLine, Line: strings.Repeat("x", 500)})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected blank line to be skipped, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "compiling") {
		t.Errorf("missing output line: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "…") {
		t.Errorf("long output line not truncated: %q", lines[1])
	}
}

func TestPrinter_Failures(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Emit(progress.Event{Kind: progress.KindTaskFailed, TaskID: "login", Stage: "code", Error: "audit rejected the work"})
	p.Emit(progress.Event{Kind: progress.KindRunStopped, Reason: progress.ReasonStopped})

	out := buf.String()
	if !strings.Contains(out, "✗ login at code: audit rejected the work") {
		t.Errorf("missing failure line:\n%s", out)
	}
	if !strings.Contains(out, "run stopped") {
		t.Errorf("missing stop line:\n%s", out)
	}
}

func TestPrinter_ColumnFailure(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)

	p.Emit(progress.Event{Kind: progress.KindTaskFailed, Stage: "code", Error: "working tree has uncommitted changes", HardStop: true})

	if out := buf.String(); !strings.Contains(out, "✗ code column: working tree has uncommitted changes") {
		t.Errorf("missing column failure line:\n%s", out)
	}
}

func TestRenderResult(t *testing.T) {
	tests := []struct {
		name string
		res  pipeline.Result
		want []string
	}{
		{
			name: "completed",
			res:  pipeline.Result{Status: pipeline.StatusCompleted, TaskID: "login", Stage: task.StageDone},
			want: []string{"completed: login (done)"},
		},
		{
			name: "soft failure",
			res:  pipeline.Result{Status: pipeline.StatusFailed, TaskID: "login", Stage: task.StageCode, Error: "audit rejected"},
			want: []string{"needs another pass: login (code)", "audit rejected"},
		},
		{
			name: "hard stop",
			res:  pipeline.Result{Status: pipeline.StatusFailed, HardStop: true, TaskID: "login", Stage: task.StagePlan, Error: "agent process crashed"},
			want: []string{"hard stop: login (plan)", "agent process crashed"},
		},
		{
			name: "column",
			res: pipeline.Result{Status: pipeline.StatusFailed, TaskID: "b", Stage: task.StageCode, Error: "1 of 2 task(s) need another attempt",
				Tasks: []pipeline.Result{
					{Status: pipeline.StatusCompleted, TaskID: "a", Stage: task.StageDone},
					{Status: pipeline.StatusFailed, TaskID: "b", Stage: task.StageCode},
				}},
			want: []string{"needs another pass (code)", "✓ a done", "↺ b code"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderResult(tt.res)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("RenderResult() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestResultStyle(t *testing.T) {
	soft := pipeline.Result{Status: pipeline.StatusFailed, Err: errors.New("x")}
	hard := pipeline.Result{Status: pipeline.StatusFailed, HardStop: true}

	if got := ResultStyle(soft).GetForeground(); got != Styles.Warning.GetForeground() {
		t.Errorf("soft failure color = %v, want warning", got)
	}
	if got := ResultStyle(hard).GetForeground(); got != Styles.Danger.GetForeground() {
		t.Errorf("hard stop color = %v, want danger", got)
	}
	if ResultLabel(hard) != "hard stop" {
		t.Errorf("ResultLabel(hard) = %q", ResultLabel(hard))
	}
}
