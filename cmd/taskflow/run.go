package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"taskflow/internal/gitguard"
	"taskflow/internal/metrics"
	"taskflow/internal/pipeline"
	"taskflow/internal/progress"
	"taskflow/internal/prompt"
	"taskflow/internal/task"
	"taskflow/internal/trace"
	"taskflow/internal/ui"
)

// runFlags configure how a pipeline run is observed.
type runFlags struct {
	tui         bool
	metricsAddr string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.tui, "tui", false, "show a live terminal view of the run")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task from its current stage to done",
		Long: `Run one task through the remaining pipeline stages.

The working tree must be clean. The task starts from its current stage
(plan, code or audit) and each stage's agent is invoked in turn. An audit
rejection sends the task back to code and exits with status 2; a second
rejection, a crashed agent or a configuration problem exits with status 3.
Interrupting the run interrupts the running agent and stops without
recording the unfinished stage (status 5). A second interrupt aborts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), flags, rf, func(ctx context.Context, e *pipeline.Engine) (*pipeline.Run, error) {
				return e.StartTask(ctx, args[0])
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func newRunColumnCommand(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run-column <stage>",
		Short: "Run every task currently in a stage",
		Long: `Run every task currently in plan, code or audit, one at a time, ordered
by their order field and then by ID.

A task that needs another pass does not stop the column; a hard stop or an
interrupt does.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := task.ParseStage(args[0])
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), flags, rf, func(ctx context.Context, e *pipeline.Engine) (*pipeline.Run, error) {
				return e.StartColumn(ctx, stage)
			})
		},
	}
	rf.register(cmd)
	return cmd
}

// runPipeline wires the engine for one invocation, starts the run and
// reports its result as the exit status.
func runPipeline(ctx context.Context, flags *globalFlags, rf *runFlags, start func(context.Context, *pipeline.Engine) (*pipeline.Run, error)) error {
	ws, err := openWorkspace(flags, rf.tui)
	if err != nil {
		return err
	}
	defer ws.Close()
	log := ws.logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exporter, err := trace.NewOTLPExporter(ctx)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			log.Warn("trace shutdown failed", "error", err)
		}
	}()

	var recorder metrics.Recorder = metrics.Nop{}
	if rf.metricsAddr != "" {
		reg := metrics.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		go func() {
			if err := metrics.Serve(ctx, rf.metricsAddr, reg); err != nil {
				log.Error("metrics server failed", "addr", rf.metricsAddr, "error", err)
			}
		}()
	}

	bus := progress.NewBus()
	events, unsubscribe := bus.Subscribe(progress.DefaultBuffer)
	defer unsubscribe()

	file := ws.cfg.File
	engine := pipeline.New(pipeline.Options{
		Root:      ws.root,
		Store:     ws.store,
		Prompts:   prompt.NewBuilder(file.Pipeline.AcceptRating),
		Defaults:  ws.cfg,
		Providers: ws.cfg,
		Git:       ws.guard,
		Policy: pipeline.AuditPolicy{
			AcceptRating: file.Pipeline.AcceptRating,
			MaxAttempts:  file.Pipeline.MaxAuditAttempts,
		},
		Emitter: progress.Multi(bus, progress.Transcript(log)),
		Logger:  log,
		Metrics: recorder,
		Tracer:  exporter.Tracer(),
	})

	run, err := start(ctx, engine)
	if err != nil {
		return err
	}
	log.Info("run started", "run_id", run.ID, "target", run.Target)

	stopOnSignal(ctx, run, cancel)
	var res pipeline.Result
	if rf.tui {
		res, err = watchTUI(run, events)
		if err != nil {
			return err
		}
	} else {
		res = watchPlain(run, bus, events, flags.verbose)
	}

	if bus.Dropped() > 0 {
		log.Debug("progress events dropped", "count", bus.Dropped())
	}
	fmt.Println(ui.RenderResult(res))
	if errors.Is(res.Err, gitguard.ErrDirtyTree) {
		fmt.Fprintln(os.Stderr, ui.Styles.Muted.Render("Commit or stash your changes first, e.g. taskflow checkpoint <task>."))
	}
	if code := res.ExitCode(); code != pipeline.ExitCompleted {
		return &exitError{code: code}
	}
	return nil
}

const stopNotice = "stopping: interrupting the agent (interrupt again to abort)"

// stopOnSignal stops the run on the first interrupt and cancels its context
// on the second.
func stopOnSignal(ctx context.Context, run *pipeline.Run, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
		case <-run.Done():
			return
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, ui.Styles.Warning.Render(stopNotice))
		run.Stop()
		select {
		case <-sigs:
			cancel()
		case <-run.Done():
		}
	}()
}

func watchPlain(run *pipeline.Run, bus *progress.Bus, events <-chan progress.Event, verbose bool) pipeline.Result {
	printer := ui.NewPrinter(os.Stdout, verbose)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printer.Run(events)
	}()

	res := run.Wait()
	bus.Close()
	<-printed
	return res
}

func watchTUI(run *pipeline.Run, events <-chan progress.Event) (pipeline.Result, error) {
	model := ui.NewRunModel(run, events)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		run.Stop()
		run.Wait()
		return pipeline.Result{}, fmt.Errorf("terminal view: %w", err)
	}
	return run.Wait(), nil
}
