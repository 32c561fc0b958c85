package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskflow/internal/adapter"
	"taskflow/internal/config"
	"taskflow/internal/process"
	"taskflow/internal/progress"
	"taskflow/internal/prompt"
	"taskflow/internal/task"
)

// memStore keeps task documents in memory and records every write.
type memStore struct {
	mu     sync.Mutex
	files  map[string][]byte
	writes []*task.Task
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (s *memStore) put(t *testing.T, id, doc string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = []byte(doc)
}

func (s *memStore) raw(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.files[id])
}

func (s *memStore) get(t *testing.T, id string) *task.Task {
	t.Helper()
	tk, err := s.ReadCurrent(id)
	require.NoError(t, err)
	return tk
}

func (s *memStore) edit(id string, fn func(doc string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = []byte(fn(string(s.files[id])))
}

func (s *memStore) writeLog() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*task.Task(nil), s.writes...)
}

func (s *memStore) ReadCurrent(ref string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := task.ID(ref)
	data, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, task.ErrNotFound)
	}
	return task.Parse(id, id+".md", data)
}

func (s *memStore) Serialize(t *task.Task, originalRaw []byte) ([]byte, error) {
	return task.Render(t, originalRaw)
}

func (s *memStore) WriteRaw(ref string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := task.ID(ref)
	s.files[id] = append([]byte(nil), data...)
	parsed, err := task.Parse(id, id+".md", data)
	if err != nil {
		return err
	}
	s.writes = append(s.writes, parsed)
	return nil
}

func (s *memStore) List() ([]*task.Task, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	var out []*task.Task
	for _, id := range ids {
		tk, err := s.ReadCurrent(id)
		if err != nil {
			return nil, err
		}
		out = append(out, tk)
	}
	return out, nil
}

// fakeConfig implements Defaults and ProviderResolver with call counting.
type fakeConfig struct {
	mu              sync.Mutex
	stageAgents     map[task.Stage]string
	agentProviders  map[string]string
	defaultProvider string
	providers       map[string]config.Provider

	agentLookups    int
	providerLookups []string
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		stageAgents: map[task.Stage]string{
			task.StagePlan:  "planner",
			task.StageCode:  "coder",
			task.StageAudit: "auditor",
		},
		agentProviders:  map[string]string{"auditor": "reviewer"},
		defaultProvider: "main",
		providers: map[string]config.Provider{
			"main":     {Tool: "fake", Command: "fake-cli", Timeout: config.Duration(time.Minute)},
			"reviewer": {Tool: "fake", Command: "fake-review"},
		},
	}
}

func (c *fakeConfig) DefaultAgentForStage(_ string, stage task.Stage) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentLookups++
	return c.stageAgents[stage]
}

func (c *fakeConfig) DefaultProviderForAgent(agent string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.agentProviders[agent]
	return p, ok
}

func (c *fakeConfig) DefaultProvider() string { return c.defaultProvider }

func (c *fakeConfig) ResolveProvider(_ string, name string) (config.Provider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providerLookups = append(c.providerLookups, name)
	p, ok := c.providers[name]
	return p, ok
}

func (c *fakeConfig) lookups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.providerLookups...)
}

type fakePrompts struct{}

func (fakePrompts) Build(t *task.Task, _ string) (prompt.Prompt, error) {
	return prompt.Prompt{Main: "work on " + t.ID + " at " + t.Stage.String(), System: "persona " + t.Agent}, nil
}

// fakeAdapter passes the process stdout through as the result. Output that
// starts with "FAIL:" is reported as an adapter failure.
type fakeAdapter struct{}

func (fakeAdapter) Name() string { return "fake" }

func (fakeAdapter) BuildCommand(cfg config.Provider, prompt string, opts adapter.BuildOptions) adapter.Command {
	return adapter.Command{Name: cfg.Command, Args: []string{prompt}, Stdin: opts.SystemPrompt}
}

func (fakeAdapter) ParseResponse(stdout string, _ int) adapter.Response {
	if msg, ok := strings.CutPrefix(stdout, "FAIL:"); ok {
		return adapter.Response{Error: msg}
	}
	cost := 0.1
	return adapter.Response{Success: true, Result: stdout, CostUSD: &cost}
}

func fakeAdapterFactory(tool string) (adapter.Adapter, error) {
	if tool == "fake" {
		return fakeAdapter{}, nil
	}
	return adapter.New(tool)
}

// step is one scripted agent invocation.
type step struct {
	stdout   string
	exit     int
	err      error
	timedOut bool
	// block waits for ctx cancellation and reports an interrupted process.
	block bool
	// before runs inside the invocation, before it returns.
	before func()
}

// scriptedExec plays back steps in order and records each command.
type scriptedExec struct {
	mu       sync.Mutex
	steps    []step
	calls    []adapter.Command
	timeouts []time.Duration
	started  chan struct{}
}

func newScript(steps ...step) *scriptedExec {
	return &scriptedExec{steps: steps, started: make(chan struct{}, len(steps)+1)}
}

func (s *scriptedExec) Execute(ctx context.Context, _ string, cmd adapter.Command, timeout time.Duration, onLine process.LineHandler) (*process.Result, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, cmd)
	s.timeouts = append(s.timeouts, timeout)
	var st step
	if n < len(s.steps) {
		st = s.steps[n]
	} else {
		st = step{exit: 99, stdout: "unscripted call"}
	}
	s.mu.Unlock()
	s.started <- struct{}{}

	if st.before != nil {
		st.before()
	}
	if st.block {
		<-ctx.Done()
		return &process.Result{ExitCode: -1, Interrupted: true}, nil
	}
	if st.err != nil {
		return nil, st.err
	}
	for _, line := range strings.Split(st.stdout, "\n") {
		onLine(process.Stdout, line)
	}
	return &process.Result{ExitCode: st.exit, Stdout: st.stdout, TimedOut: st.timedOut}, nil
}

func (s *scriptedExec) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// recorder collects emitted events; hook runs synchronously on each event.
type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	hook   func(progress.Event)
}

func (r *recorder) Emit(ev progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *recorder) kinds(skipOutput bool) []progress.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Kind
	for _, ev := range r.events {
		if skipOutput && ev.Kind == progress.KindOutputLine {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) find(kind progress.Kind) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fakeGuard struct {
	err   error
	calls int
}

func (g *fakeGuard) EnsureClean(context.Context) error {
	g.calls++
	return g.err
}

// harness bundles an engine with its fakes.
type harness struct {
	store  *memStore
	cfg    *fakeConfig
	exec   *scriptedExec
	events *recorder
	guard  *fakeGuard
	opts   Options
	engine *Engine
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	h := &harness{
		store:  newMemStore(),
		cfg:    newFakeConfig(),
		exec:   newScript(steps...),
		events: &recorder{},
		guard:  &fakeGuard{},
	}
	h.opts = Options{
		Root:       "/project",
		Store:      h.store,
		Prompts:    fakePrompts{},
		Defaults:   h.cfg,
		Providers:  h.cfg,
		Git:        h.guard,
		Emitter:    h.events,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewAdapter: fakeAdapterFactory,
		Execute:    h.exec.Execute,
	}
	h.engine = New(h.opts)
	return h
}

// with rebuilds the engine after fn adjusts its options.
func (h *harness) with(fn func(*Options)) *harness {
	fn(&h.opts)
	h.engine = New(h.opts)
	return h
}

func taskDoc(stage string, attempts int, extra ...string) string {
	var b strings.Builder
	b.WriteString("---\ntitle: Add login\n")
	for _, e := range extra {
		b.WriteString(e)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "stage: %s\naudit_attempts: %d\n---\n\nUsers need to log in.\n", stage, attempts)
	return b.String()
}

const (
	planOut  = "Plan ready.\n<!-- STAGE_TRANSITION: code -->"
	codeOut  = "Implemented.\n<!-- FILES_CHANGED: login.go, login_test.go -->\n<!-- STAGE_TRANSITION: audit -->"
	auditOK  = "Looks good.\n<!-- AUDIT_RATING: 9 -->\n<!-- STAGE_TRANSITION: done -->"
	auditBad = "Missing tests.\n<!-- AUDIT_RATING: 5 -->\n<!-- AUDIT_VERDICT: NEEDS_WORK -->"
)
