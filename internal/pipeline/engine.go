package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taskflow/internal/adapter"
	"taskflow/internal/metrics"
	"taskflow/internal/progress"
	"taskflow/internal/task"
	"taskflow/internal/trace"
)

// Options wires the engine to its collaborators.
type Options struct {
	// Root is the project root; agents run with it as working directory.
	Root string

	Store     TaskStore
	Order     Orderer
	Prompts   PromptBuilder
	Defaults  Defaults
	Providers ProviderResolver
	// Git checks the working tree before each run. Nil skips the check.
	Git    GitGuard
	Policy AuditPolicy

	Emitter progress.Emitter
	Logger  *slog.Logger
	Metrics metrics.Recorder
	Tracer  *trace.Tracer

	// Test hooks; nil means use the real implementation.
	NewAdapter AdapterFactory
	Execute    Executor
}

// Engine runs tasks through the pipeline, one run at a time.
type Engine struct {
	opts Options

	mu     sync.Mutex
	active *Run
}

// New returns an Engine. Store, Prompts, Defaults and Providers are required.
func New(opts Options) *Engine {
	if opts.Order == nil {
		opts.Order = task.OrderForStage
	}
	opts.Policy = opts.Policy.withDefaults()
	if opts.Emitter == nil {
		opts.Emitter = progress.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Noop()
	}
	if opts.NewAdapter == nil {
		opts.NewAdapter = adapter.New
	}
	if opts.Execute == nil {
		opts.Execute = execProcess
	}
	return &Engine{opts: opts}
}

// Active returns the run in progress, or nil.
func (e *Engine) Active() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Stop stops the active run, if any, and reports whether there was one.
func (e *Engine) Stop() bool {
	if r := e.Active(); r != nil {
		r.Stop()
		return true
	}
	return false
}

func (e *Engine) begin(target string, column bool) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, e.active.ID)
	}
	e.active = newRun(target, column)
	return e.active, nil
}

func (e *Engine) end(run *Run, res Result) {
	reason := progress.ReasonCompleted
	switch res.Status {
	case StatusStopped:
		reason = progress.ReasonStopped
	case StatusFailed:
		reason = progress.ReasonFailed
	}
	e.opts.Emitter.Emit(progress.Event{
		Kind:     progress.KindRunStopped,
		RunID:    run.ID,
		TaskID:   res.TaskID,
		Reason:   reason,
		Error:    res.Error,
		HardStop: res.HardStop,
		Duration: time.Since(run.StartedAt),
	})

	e.mu.Lock()
	if e.active == run {
		e.active = nil
	}
	e.mu.Unlock()
	run.finish(res)
}

// StartTask starts running one task in the background. It fails with
// ErrRunActive when another run is in progress.
func (e *Engine) StartTask(ctx context.Context, ref string) (*Run, error) {
	run, err := e.begin(ref, false)
	if err != nil {
		return nil, err
	}
	go func() {
		e.end(run, e.runSingle(ctx, run, ref))
	}()
	return run, nil
}

// RunTask runs one task to completion.
func (e *Engine) RunTask(ctx context.Context, ref string) (Result, error) {
	run, err := e.StartTask(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	return run.Wait(), nil
}

// StartColumn starts running every task in stage in the background.
func (e *Engine) StartColumn(ctx context.Context, stage task.Stage) (*Run, error) {
	run, err := e.begin(stage.String(), true)
	if err != nil {
		return nil, err
	}
	go func() {
		e.end(run, e.runColumn(ctx, run, stage))
	}()
	return run, nil
}

// RunColumn runs every task currently in stage, in order, one at a time.
// Soft failures move on to the next task; a hard stop or a stop request
// ends the column.
func (e *Engine) RunColumn(ctx context.Context, stage task.Stage) (Result, error) {
	run, err := e.StartColumn(ctx, stage)
	if err != nil {
		return Result{}, err
	}
	return run.Wait(), nil
}

func (e *Engine) checkGit(ctx context.Context) error {
	if e.opts.Git == nil {
		return nil
	}
	return e.opts.Git.EnsureClean(ctx)
}

func (e *Engine) runSingle(ctx context.Context, run *Run, ref string) Result {
	log := e.opts.Logger.With("run_id", run.ID)
	if err := e.checkGit(ctx); err != nil {
		log.Error("git precondition failed", "task", ref, "error", err)
		var stage task.Stage
		if t, readErr := e.opts.Store.ReadCurrent(ref); readErr == nil {
			stage = t.Stage
		}
		res := hardStop(task.ID(ref), stage, err)
		e.emitFailed(run, res)
		return res
	}
	return e.runTask(ctx, run, ref)
}

func (e *Engine) runColumn(ctx context.Context, run *Run, stage task.Stage) Result {
	log := e.opts.Logger.With("run_id", run.ID, "column", stage.String())
	fail := func(err error) Result {
		res := hardStop("", stage, err)
		e.emitFailed(run, res)
		return res
	}
	if _, err := RemainingStages(stage); err != nil {
		return fail(err)
	}
	if err := e.checkGit(ctx); err != nil {
		log.Error("git precondition failed", "error", err)
		return fail(err)
	}

	all, err := e.opts.Store.List()
	if err != nil {
		return fail(fmt.Errorf("list tasks: %w", err))
	}
	ordered := e.opts.Order(all, stage)
	log.Info("column run starting", "tasks", len(ordered))

	summary := Result{Status: StatusCompleted, Stage: stage}
	var softFailures int
	for _, t := range ordered {
		if stopping(ctx, run) {
			summary.Status = StatusStopped
			summary.Error = ErrStopped.Error()
			summary.Err = ErrStopped
			break
		}
		res := e.runTask(ctx, run, t.ID)
		summary.Tasks = append(summary.Tasks, res)
		summary.TaskID = res.TaskID

		if res.Status == StatusStopped {
			summary.Status = StatusStopped
			summary.Error = res.Error
			summary.Err = res.Err
			break
		}
		if res.Status == StatusFailed && res.HardStop {
			summary.Status = StatusFailed
			summary.HardStop = true
			summary.Error = res.Error
			summary.Err = res.Err
			break
		}
		if res.Status == StatusFailed {
			softFailures++
		}
	}
	if summary.Status == StatusCompleted && softFailures > 0 {
		summary.Status = StatusFailed
		summary.Err = fmt.Errorf("%d of %d task(s) need another attempt: %w", softFailures, len(summary.Tasks), ErrAuditRejected)
		summary.Error = summary.Err.Error()
	}
	log.Info("column run finished", "status", summary.Status.String(), "processed", len(summary.Tasks))
	return summary
}

// persist re-reads the record, applies mutate and writes it back, so edits
// made on disk between stages survive.
func (e *Engine) persist(ref string, mutate func(t *task.Task)) (*task.Task, error) {
	current, err := e.opts.Store.ReadCurrent(ref)
	if err != nil {
		return nil, fmt.Errorf("re-read task: %w", err)
	}
	mutate(current)
	data, err := e.opts.Store.Serialize(current, current.Raw)
	if err != nil {
		return nil, fmt.Errorf("serialize task: %w", err)
	}
	if err := e.opts.Store.WriteRaw(ref, data); err != nil {
		return nil, fmt.Errorf("write task: %w", err)
	}
	current.Raw = data
	return current, nil
}

func (e *Engine) emitFailed(run *Run, res Result) {
	e.opts.Emitter.Emit(progress.Event{
		Kind:     progress.KindTaskFailed,
		RunID:    run.ID,
		TaskID:   res.TaskID,
		Stage:    res.Stage.String(),
		Error:    res.Error,
		HardStop: res.HardStop,
	})
}

// stopping reports whether the run should end before doing more work.
func stopping(ctx context.Context, run *Run) bool {
	return run.StopRequested() || ctx.Err() != nil
}
