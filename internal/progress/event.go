// Package progress carries pipeline lifecycle events from the engine to
// whatever is displaying them (plain printer, TUI, tests).
package progress

import (
	"time"

	"taskflow/internal/markers"
)

// Kind identifies an event.
type Kind string

const (
	KindTaskStarted    Kind = "task_started"
	KindStageStarted   Kind = "stage_started"
	KindStageCompleted Kind = "stage_completed"
	KindTaskCompleted  Kind = "task_completed"
	KindTaskFailed     Kind = "task_failed"
	KindRunStopped     Kind = "run_stopped"
	KindOutputLine     Kind = "output_line"
)

// Reason is the terminal status reported with KindRunStopped.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonStopped   Reason = "stopped"
	ReasonFailed    Reason = "failed"
)

// Event is one pipeline notification. Fields beyond Kind are populated as
// relevant to the kind.
type Event struct {
	Kind      Kind
	RunID     string
	TaskID    string
	Title     string
	Stage     string
	Agent     string
	Provider  string
	Markers   *markers.Result // stage_completed
	Error     string          // task_failed
	HardStop  bool            // task_failed
	Reason    Reason          // run_stopped
	Stream    string          // output_line
	Line      string          // output_line
	Duration  time.Duration
	Timestamp time.Time
}

// Emitter receives events. Implementations must not block the engine.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Multi fans each event out to every non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	var live []Emitter
	for _, e := range emitters {
		if e != nil {
			live = append(live, e)
		}
	}
	return EmitterFunc(func(ev Event) {
		for _, e := range live {
			e.Emit(ev)
		}
	})
}
