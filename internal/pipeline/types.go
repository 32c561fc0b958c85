package pipeline

import (
	"errors"
	"fmt"

	"taskflow/internal/markers"
	"taskflow/internal/task"
)

var (
	// ErrRunActive is returned when a run is started while another is active.
	ErrRunActive = errors.New("a pipeline run is already active")
	// ErrUnrunnableStage is returned for starting stages outside plan/code/audit.
	ErrUnrunnableStage = errors.New("stage cannot be run by the pipeline")
	// ErrProviderNotFound is returned when a stage's provider has no configuration.
	ErrProviderNotFound = errors.New("provider not configured")
	// ErrProcessCrashed wraps non-zero exits and timeouts of agent processes.
	ErrProcessCrashed = errors.New("agent process crashed")
	// ErrAdapterFailure wraps failures reported by an adapter's response parser.
	ErrAdapterFailure = errors.New("agent reported failure")
	// ErrAuditRejected wraps audit rejections, soft or final.
	ErrAuditRejected = errors.New("audit rejected the work")
	// ErrStopped is attached to stopped results.
	ErrStopped = errors.New("run stopped")
)

// Status is the terminal state of a run.
type Status int

const (
	StatusCompleted Status = iota
	StatusStopped
	StatusFailed
)

// String returns a human-readable label for the status.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus converts a status label to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "completed":
		return StatusCompleted, nil
	case "stopped":
		return StatusStopped, nil
	case "failed":
		return StatusFailed, nil
	default:
		return 0, &task.EnumError{Enum: "status", Name: s}
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return task.EncodeNameJSON(s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	v, err := task.DecodeNameJSON(data, ParseStatus)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Result is the single outcome shape every run path funnels into.
type Result struct {
	Status   Status     `json:"status"`
	Error    string     `json:"error,omitempty"`
	HardStop bool       `json:"hard_stop,omitempty"`
	TaskID   string     `json:"task_id,omitempty"`
	Stage    task.Stage `json:"stage"`
	// Tasks holds per-task results of a column run, in processing order.
	Tasks []Result `json:"tasks,omitempty"`
	// Err is the underlying error, for errors.Is checks.
	Err error `json:"-"`
}

// Exit codes returned by Result.ExitCode.
const (
	ExitCompleted = 0
	ExitSoftFail  = 2
	ExitHardStop  = 3
	ExitStopped   = 5
)

// ExitCode maps the result to a distinct process exit code.
func (r Result) ExitCode() int {
	switch {
	case r.Status == StatusCompleted:
		return ExitCompleted
	case r.Status == StatusStopped:
		return ExitStopped
	case r.HardStop:
		return ExitHardStop
	default:
		return ExitSoftFail
	}
}

func completed(t *task.Task) Result {
	return Result{Status: StatusCompleted, TaskID: t.ID, Stage: t.Stage}
}

func stopped(t *task.Task) Result {
	return Result{Status: StatusStopped, TaskID: t.ID, Stage: t.Stage, Error: ErrStopped.Error(), Err: ErrStopped}
}

func hardStop(id string, stage task.Stage, err error) Result {
	return Result{Status: StatusFailed, HardStop: true, TaskID: id, Stage: stage, Error: err.Error(), Err: err}
}

func softFail(id string, stage task.Stage, err error) Result {
	return Result{Status: StatusFailed, TaskID: id, Stage: stage, Error: err.Error(), Err: err}
}

// pipelineStages is the fixed order of agent-driven stages.
var pipelineStages = []task.Stage{task.StagePlan, task.StageCode, task.StageAudit}

// RemainingStages returns the stages left to run for a task currently in
// stage: the suffix of [plan, code, audit] starting at stage.
func RemainingStages(stage task.Stage) ([]task.Stage, error) {
	for i, s := range pipelineStages {
		if s == stage {
			out := make([]task.Stage, len(pipelineStages)-i)
			copy(out, pipelineStages[i:])
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnrunnableStage, stage)
}

// AuditPolicy decides audit outcomes.
type AuditPolicy struct {
	// AcceptRating is the minimum rating that accepts the work.
	AcceptRating int
	// MaxAttempts is the rejection count at which the run hard-stops.
	MaxAttempts int
}

// DefaultAuditPolicy returns the policy used when none is configured.
func DefaultAuditPolicy() AuditPolicy {
	return AuditPolicy{AcceptRating: 8, MaxAttempts: 2}
}

func (p AuditPolicy) withDefaults() AuditPolicy {
	d := DefaultAuditPolicy()
	if p.AcceptRating <= 0 {
		p.AcceptRating = d.AcceptRating
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Accepts reports whether the audit markers accept the work: a rating at or
// above the threshold, or an explicit ACCEPTED verdict.
func (p AuditPolicy) Accepts(m markers.Result) bool {
	if m.Rating != nil && *m.Rating >= p.AcceptRating {
		return true
	}
	return m.Verdict == markers.VerdictAccepted
}

// Exhausted reports whether attempts rejections spend the retry budget.
func (p AuditPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// describeAudit summarizes the audit signals for failure messages.
func describeAudit(m markers.Result) string {
	rating := "none"
	if m.Rating != nil {
		rating = fmt.Sprintf("%d/10", *m.Rating)
	}
	verdict := string(m.Verdict)
	if verdict == "" {
		verdict = "none"
	}
	return fmt.Sprintf("rating %s, verdict %s", rating, verdict)
}
