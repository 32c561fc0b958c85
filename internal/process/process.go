// Package process runs an agent CLI invocation to completion, streaming its
// output line by line while capturing it in full.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskflow/internal/adapter"
)

const (
	// DefaultTimeout bounds a single invocation when the provider sets none.
	DefaultTimeout = 30 * time.Minute
	// DefaultInterruptGrace is how long an interrupted process may take to
	// exit before it is killed.
	DefaultInterruptGrace = 10 * time.Second
)

// Stream identifies which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Result holds the outcome of one invocation.
type Result struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	Duration    time.Duration
	TimedOut    bool // killed because the timeout elapsed
	Interrupted bool // interrupted because the caller cancelled ctx
}

// CommandFactory builds the *exec.Cmd for an invocation. Tests inject a
// factory that re-executes the test binary instead.
type CommandFactory func(ctx context.Context, workDir, name string, args ...string) *exec.Cmd

func defaultCommandFactory(ctx context.Context, workDir, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	return cmd
}

// LineHandler receives each output line as it is read. Calls are serialized.
type LineHandler func(stream Stream, line string)

type options struct {
	timeout        time.Duration
	grace          time.Duration
	commandFactory CommandFactory
	onLine         LineHandler
	env            []string
}

// Option configures Run.
type Option func(*options)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInterruptGrace overrides DefaultInterruptGrace.
func WithInterruptGrace(d time.Duration) Option {
	return func(o *options) { o.grace = d }
}

// WithCommandFactory injects a custom command factory (used in tests).
func WithCommandFactory(f CommandFactory) Option {
	return func(o *options) { o.commandFactory = f }
}

// WithLineHandler streams output lines to h.
func WithLineHandler(h LineHandler) Option {
	return func(o *options) { o.onLine = h }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(o *options) { o.env = append(o.env, env...) }
}

// Run executes c in workDir and waits for it to exit. Cancelling ctx sends
// the process an interrupt, escalating to a kill after the grace period.
// A non-zero exit is reported through Result.ExitCode, not as an error;
// errors are reserved for failures to start the process at all.
func Run(ctx context.Context, workDir string, c adapter.Command, opts ...Option) (*Result, error) {
	cfg := options{
		timeout:        DefaultTimeout,
		grace:          DefaultInterruptGrace,
		commandFactory: defaultCommandFactory,
	}
	for _, o := range opts {
		o(&cfg)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	cmd := cfg.commandFactory(runCtx, workDir, c.Name, c.Args...)
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = cfg.grace
	if len(cfg.env) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, cfg.env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var (
		mu             sync.Mutex
		stdout, stderr strings.Builder
		g              errgroup.Group
	)
	emit := func(stream Stream, line string) {
		if cfg.onLine == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		cfg.onLine(stream, line)
	}
	g.Go(func() error { return drain(stdoutR, Stdout, &stdout, emit) })
	g.Go(func() error { return drain(stderrR, Stderr, &stderr, emit) })

	start := time.Now()
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		_ = g.Wait()
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	// WaitDelay bounds Wait even when a grandchild keeps the pipes open.
	waitErr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	readErr := g.Wait()

	result := &Result{
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		Duration:    time.Since(start),
		TimedOut:    errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil,
		Interrupted: ctx.Err() != nil,
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay):
			result.ExitCode = cmd.ProcessState.ExitCode()
		default:
			return nil, fmt.Errorf("wait %s: %w", c.Name, waitErr)
		}
	}
	if readErr != nil {
		return result, fmt.Errorf("read output: %w", readErr)
	}
	return result, nil
}

// drain copies r into buf line by line, forwarding each line to emit.
func drain(r io.Reader, stream Stream, buf *strings.Builder, emit LineHandler) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			buf.WriteString(line)
			emit(stream, strings.TrimRight(line, "\r\n"))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
