// Package gitguard wraps the git queries and mutations the pipeline needs:
// asserting a clean working tree before a run and creating recovery commits.
package gitguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskflow/internal/adapter"
	"taskflow/internal/process"
)

// ErrDirtyTree is returned by EnsureClean when git reports pending changes.
var ErrDirtyTree = errors.New("working tree has uncommitted changes")

// UntitledTask replaces an empty title in recovery commit messages.
const UntitledTask = "untitled task"

const gitTimeout = 2 * time.Minute

// Output is the captured result of one git invocation.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes git with args in dir. It returns an error only when git
// could not be run at all; a non-zero exit is reported in Output.
type Runner func(ctx context.Context, dir string, args ...string) (Output, error)

// ExecRunner runs the real git binary with dir as its working directory.
func ExecRunner(ctx context.Context, dir string, args ...string) (Output, error) {
	res, err := process.Run(ctx, dir,
		adapter.Command{Name: "git", Args: args},
		process.WithTimeout(gitTimeout),
		process.WithEnv("GIT_TERMINAL_PROMPT=0"),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}, nil
}

// Guard runs git in a single working directory.
type Guard struct {
	Dir string
	Run Runner
}

// New returns a Guard for dir backed by the git binary.
func New(dir string) *Guard {
	return &Guard{Dir: dir, Run: ExecRunner}
}

// git runs one command and converts a non-zero exit into an error carrying
// git's own output.
func (g *Guard) git(ctx context.Context, args ...string) (string, error) {
	run := g.Run
	if run == nil {
		run = ExecRunner
	}
	out, err := run(ctx, g.Dir, args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	if out.ExitCode != 0 {
		detail := strings.TrimSpace(out.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(out.Stdout)
		}
		if detail == "" {
			return "", fmt.Errorf("git %s: exit code %d", args[0], out.ExitCode)
		}
		return "", fmt.Errorf("git %s: exit code %d: %s", args[0], out.ExitCode, detail)
	}
	return out.Stdout, nil
}

// DirtyPaths returns the paths git status reports as changed.
func (g *Guard) DirtyPaths(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			paths = append(paths, strings.TrimSpace(line[3:]))
		}
	}
	return paths, nil
}

// EnsureClean fails with ErrDirtyTree when the working tree has changes.
func (g *Guard) EnsureClean(ctx context.Context) error {
	paths, err := g.DirtyPaths(ctx)
	if err != nil {
		return err
	}
	if len(paths) > 0 {
		return fmt.Errorf("%w: %d changed path(s), first %s", ErrDirtyTree, len(paths), paths[0])
	}
	return nil
}

// CommitMessage builds the recovery commit message for a task title.
func CommitMessage(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		title = UntitledTask
	}
	return "taskflow checkpoint: " + title
}

// RecoveryCommit stages everything, commits it and returns the new HEAD hash.
func (g *Guard) RecoveryCommit(ctx context.Context, title string) (string, error) {
	if _, err := g.git(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.git(ctx, "commit", "-m", CommitMessage(title)); err != nil {
		return "", err
	}
	hash, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}
