package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskflow/internal/adapter"
	"taskflow/internal/markers"
	"taskflow/internal/process"
	"taskflow/internal/progress"
	"taskflow/internal/task"
	"taskflow/internal/trace"
	"taskflow/internal/ui/textutil"
)

// crashExcerptLimit bounds how much process output is quoted in a crash error.
const crashExcerptLimit = 200

// runTask drives one task from its current stage until it completes, fails
// or is stopped. The caller has already checked the working tree.
func (e *Engine) runTask(ctx context.Context, run *Run, ref string) (res Result) {
	id := task.ID(ref)
	log := e.opts.Logger.With("run_id", run.ID, "task_id", id)

	ctx, span := e.opts.Tracer.StartRun(ctx, run.ID, id)
	defer func() {
		var err error
		if res.Status == StatusFailed {
			err = res.Err
		}
		trace.End(span, res.Status.String(), err)
		e.opts.Metrics.ObserveRun(res.Status.String(), res.HardStop)
		if res.Status == StatusFailed {
			e.emitFailed(run, res)
		}
	}()

	t, err := e.opts.Store.ReadCurrent(ref)
	if err != nil {
		log.Error("read task failed", "error", err)
		return hardStop(id, 0, fmt.Errorf("read task: %w", err))
	}
	stages, err := RemainingStages(t.Stage)
	if err != nil {
		log.Error("task cannot be run", "stage", t.Stage.String(), "error", err)
		return hardStop(t.ID, t.Stage, err)
	}
	run.setCurrent(t, stages)

	e.opts.Emitter.Emit(progress.Event{
		Kind:   progress.KindTaskStarted,
		RunID:  run.ID,
		TaskID: t.ID,
		Title:  t.DisplayTitle(),
		Stage:  t.Stage.String(),
	})
	log.Info("task started", "stage", t.Stage.String(), "remaining", len(stages))

	// A pass that starts from plan is a fresh attempt at the whole task.
	freshPass := t.Stage == task.StagePlan

	for i, stage := range stages {
		if stopping(ctx, run) {
			log.Info("stop requested before stage", "stage", stage.String())
			return stopped(t)
		}

		var outcome stageOutcome
		t, outcome = e.runStage(ctx, run, log, ref, t, stage, freshPass && stage == task.StagePlan)
		if outcome.result != nil {
			return *outcome.result
		}
		run.setCurrent(t, stages[i+1:])
	}

	// Only reachable if the last stage was not audit, which RemainingStages
	// never produces.
	return completed(t)
}

// stageOutcome carries a terminal result out of runStage; nil means the
// pipeline continues with the next stage.
type stageOutcome struct {
	result *Result
}

func terminal(r Result) stageOutcome { return stageOutcome{result: &r} }

func (e *Engine) runStage(ctx context.Context, run *Run, log *slog.Logger, ref string, t *task.Task, stage task.Stage, resetAttempts bool) (*task.Task, stageOutcome) {
	root := e.opts.Root
	agent := e.opts.Defaults.DefaultAgentForStage(root, stage)
	providerName, ok := e.opts.Defaults.DefaultProviderForAgent(agent)
	if !ok || providerName == "" {
		providerName = e.opts.Defaults.DefaultProvider()
	}
	log = log.With("stage", stage.String(), "agent", agent, "provider", providerName)

	entered, err := e.persist(ref, func(cur *task.Task) {
		cur.Stage = stage
		cur.Agent = agent
		cur.Provider = providerName
		if resetAttempts {
			cur.AuditAttempts = 0
		}
	})
	if err != nil {
		log.Error("persist stage entry failed", "error", err)
		return t, terminal(hardStop(t.ID, t.Stage, err))
	}
	t = entered

	start := time.Now()
	ctx, span := e.opts.Tracer.StartStage(ctx, t.ID, stage.String(), agent, providerName)
	observe := func(outcome string, err error) {
		e.opts.Metrics.ObserveStage(stage.String(), providerName, outcome, time.Since(start))
		trace.End(span, outcome, err)
	}

	e.opts.Emitter.Emit(progress.Event{
		Kind:     progress.KindStageStarted,
		RunID:    run.ID,
		TaskID:   t.ID,
		Title:    t.DisplayTitle(),
		Stage:    stage.String(),
		Agent:    agent,
		Provider: providerName,
	})
	log.Info("stage started")

	p, err := e.opts.Prompts.Build(t, root)
	if err != nil {
		err = fmt.Errorf("build prompt: %w", err)
		observe("failed", err)
		return t, terminal(hardStop(t.ID, stage, err))
	}

	cfg, ok := e.opts.Providers.ResolveProvider(root, providerName)
	if !ok {
		err := fmt.Errorf("%w: %q (agent %s)", ErrProviderNotFound, providerName, agent)
		observe("failed", err)
		return t, terminal(hardStop(t.ID, stage, err))
	}
	ad, err := e.opts.NewAdapter(cfg.Tool)
	if err != nil {
		err = fmt.Errorf("provider %s: %w", providerName, err)
		observe("failed", err)
		return t, terminal(hardStop(t.ID, stage, err))
	}

	cmd := ad.BuildCommand(cfg, p.Main, adapter.BuildOptions{SystemPrompt: p.System})
	log.Debug("running agent", "command", cmd.String())

	procCtx, cancel := context.WithCancel(ctx)
	run.trackProcess(cancel)
	procCtx, procSpan := e.opts.Tracer.StartProcess(procCtx, cmd.Name)
	proc, err := e.opts.Execute(procCtx, root, cmd, time.Duration(cfg.Timeout), e.lineHandler(run, t, stage))
	run.trackProcess(nil)
	cancel()
	if proc != nil {
		procSpan.SetAttributes(trace.KeyExitCode.Int(proc.ExitCode))
	}
	trace.End(procSpan, "", err)

	if stopping(ctx, run) {
		log.Info("stopped while agent was running")
		observe("stopped", nil)
		return t, terminal(stopped(t))
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrProcessCrashed, err)
		log.Error("agent failed to start", "error", err)
		observe("failed", err)
		return t, terminal(hardStop(t.ID, stage, err))
	}
	if proc.TimedOut || proc.ExitCode != 0 {
		err := crashError(cmd.Name, proc, time.Duration(cfg.Timeout))
		log.Error("agent crashed", "exit_code", proc.ExitCode, "timed_out", proc.TimedOut)
		observe("failed", err)
		return t, terminal(hardStop(t.ID, stage, err))
	}

	resp := ad.ParseResponse(proc.Stdout, proc.ExitCode)
	if resp.CostUSD != nil {
		e.opts.Metrics.ObserveCost(stage.String(), providerName, *resp.CostUSD)
	}
	if !resp.Success {
		err := fmt.Errorf("%w: %s", ErrAdapterFailure, resp.Error)
		log.Error("agent reported failure", "error", resp.Error)
		observe("failed", err)
		return t, terminal(hardStop(t.ID, stage, err))
	}

	isAudit := stage == task.StageAudit
	m := markers.Parse(resp.Result, isAudit)
	e.opts.Emitter.Emit(progress.Event{
		Kind:     progress.KindStageCompleted,
		RunID:    run.ID,
		TaskID:   t.ID,
		Title:    t.DisplayTitle(),
		Stage:    stage.String(),
		Agent:    agent,
		Provider: providerName,
		Markers:  &m,
		Duration: time.Since(start),
	})
	log.Info("stage completed", "duration", time.Since(start).Round(time.Second), "session_id", resp.SessionID)

	if !isAudit {
		if m.Transition != nil && *m.Transition != nextStage(stage) {
			log.Warn("agent requested an unexpected transition", "requested", m.Transition.String())
		}
		observe("advanced", nil)
		return t, stageOutcome{}
	}
	if m.Rating != nil {
		e.opts.Metrics.ObserveRating(providerName, *m.Rating)
	}
	return e.applyAudit(run, log, ref, t, m, observe)
}

// applyAudit turns the audit markers into the task's next position.
func (e *Engine) applyAudit(run *Run, log *slog.Logger, ref string, t *task.Task, m markers.Result, observe func(string, error)) (*task.Task, stageOutcome) {
	policy := e.opts.Policy
	if policy.Accepts(m) {
		done, err := e.persist(ref, func(cur *task.Task) { cur.Stage = task.StageDone })
		if err != nil {
			observe("failed", err)
			return t, terminal(hardStop(t.ID, task.StageAudit, err))
		}
		observe("accepted", nil)
		e.opts.Emitter.Emit(progress.Event{
			Kind:   progress.KindTaskCompleted,
			RunID:  run.ID,
			TaskID: done.ID,
			Title:  done.DisplayTitle(),
			Stage:  done.Stage.String(),
		})
		log.Info("audit accepted", "audit", describeAudit(m))
		return done, terminal(completed(done))
	}

	attempts := t.AuditAttempts + 1
	if policy.Exhausted(attempts) {
		updated, err := e.persist(ref, func(cur *task.Task) {
			cur.Stage = task.StageAudit
			cur.AuditAttempts = attempts
		})
		if err != nil {
			observe("failed", err)
			return t, terminal(hardStop(t.ID, task.StageAudit, err))
		}
		err = fmt.Errorf("%w (%s, attempt %d of %d); left in audit for review",
			ErrAuditRejected, describeAudit(m), attempts, policy.MaxAttempts)
		observe("rejected", err)
		log.Error("audit retry budget exhausted", "attempts", attempts)
		return updated, terminal(hardStop(updated.ID, updated.Stage, err))
	}

	updated, err := e.persist(ref, func(cur *task.Task) {
		cur.Stage = task.StageCode
		cur.AuditAttempts = attempts
	})
	if err != nil {
		observe("failed", err)
		return t, terminal(hardStop(t.ID, task.StageAudit, err))
	}
	err = fmt.Errorf("%w (%s, attempt %d of %d); sent back to code",
		ErrAuditRejected, describeAudit(m), attempts, policy.MaxAttempts)
	observe("rejected", err)
	log.Warn("audit rejected", "attempts", attempts)
	return updated, terminal(softFail(updated.ID, updated.Stage, err))
}

func (e *Engine) lineHandler(run *Run, t *task.Task, stage task.Stage) process.LineHandler {
	return func(stream process.Stream, line string) {
		e.opts.Emitter.Emit(progress.Event{
			Kind:   progress.KindOutputLine,
			RunID:  run.ID,
			TaskID: t.ID,
			Stage:  stage.String(),
			Stream: stream.String(),
			Line:   line,
		})
	}
}

func crashError(name string, proc *process.Result, timeout time.Duration) error {
	if proc.TimedOut {
		return fmt.Errorf("%w: %s timed out after %s", ErrProcessCrashed, name, timeout)
	}
	detail := strings.TrimSpace(proc.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(proc.Stdout)
	}
	if detail == "" {
		return fmt.Errorf("%w: %s exited with code %d", ErrProcessCrashed, name, proc.ExitCode)
	}
	return fmt.Errorf("%w: %s exited with code %d: %s",
		ErrProcessCrashed, name, proc.ExitCode, textutil.Excerpt(detail, crashExcerptLimit))
}

func nextStage(s task.Stage) task.Stage {
	if s >= task.StageDone {
		return task.StageDone
	}
	return s + 1
}
