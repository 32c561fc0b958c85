package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/task"
)

// Run is one active pipeline invocation, for a single task or a whole
// column. It is created by the Engine and owned by the caller, who can stop
// it or wait for its Result.
type Run struct {
	ID        string
	Target    string // task ref or stage name
	Column    bool
	StartedAt time.Time

	mu            sync.Mutex
	stopRequested bool
	cancelProcess context.CancelFunc
	current       *task.Task
	remaining     []task.Stage

	done   chan struct{}
	result Result
}

func newRun(target string, column bool) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Target:    target,
		Column:    column,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Stop requests cooperative termination. The request is observed before the
// next stage starts; an in-flight agent process is interrupted.
func (r *Run) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopRequested = true
	if r.cancelProcess != nil {
		r.cancelProcess()
	}
}

// StopRequested reports whether Stop has been called.
func (r *Run) StopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRequested
}

// Done is closed when the run finishes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its result.
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}

// Snapshot returns a copy of the task being worked on and its remaining
// stages. The task is nil before the first record is read.
func (r *Run) Snapshot() (*task.Task, []task.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, nil
	}
	t := *r.current
	remaining := append([]task.Stage(nil), r.remaining...)
	return &t, remaining
}

func (r *Run) setCurrent(t *task.Task, remaining []task.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = t
	r.remaining = remaining
}

// trackProcess registers the cancel func of the in-flight process. When a
// stop was already requested the process is cancelled immediately.
func (r *Run) trackProcess(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelProcess = cancel
	if r.stopRequested && cancel != nil {
		cancel()
	}
}

func (r *Run) finish(res Result) {
	r.result = res
	close(r.done)
}
