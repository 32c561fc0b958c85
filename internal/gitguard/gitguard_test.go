package gitguard

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.name", "Test"},
		{"config", "user.email", "test@example.com"},
		{"config", "commit.gpgsign", "false"},
		{"checkout", "-b", "main"},
	} {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	for _, args := range [][]string{{"add", "README.md"}, {"commit", "-m", "initial"}} {
		out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	return dir
}

func TestEnsureClean_RealRepo(t *testing.T) {
	dir := setupTestRepo(t)
	g := New(dir)
	ctx := context.Background()

	require.NoError(t, g.EnsureClean(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.go"), []byte("package x\n"), 0o644))
	err := g.EnsureClean(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirtyTree))
	assert.Contains(t, err.Error(), "new.go")
}

func TestEnsureClean_RelativeDir(t *testing.T) {
	dir := setupTestRepo(t)
	t.Chdir(filepath.Dir(dir))

	require.NoError(t, New(filepath.Base(dir)).EnsureClean(context.Background()))
}

func TestRecoveryCommit_RealRepo(t *testing.T) {
	dir := setupTestRepo(t)
	g := New(dir)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "work.txt"), []byte("wip\n"), 0o644))
	hash, err := g.RecoveryCommit(ctx, "  Add   login\n page ")
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	out, err := exec.Command("git", "-C", dir, "log", "-1", "--format=%s").Output()
	require.NoError(t, err)
	assert.Equal(t, "taskflow checkpoint: Add login page", strings.TrimSpace(string(out)))
	require.NoError(t, g.EnsureClean(ctx))

	// Nothing left to commit: git commit exits non-zero and its output surfaces.
	_, err = g.RecoveryCommit(ctx, "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git commit")
	assert.Contains(t, err.Error(), "nothing to commit")
}

func TestEnsureClean_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	err := New(t.TempDir()).EnsureClean(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDirtyTree))
	assert.Contains(t, err.Error(), "git status")
}

type call struct {
	dir  string
	args []string
}

func fakeRunner(calls *[]call, outputs map[string]Output) Runner {
	return func(_ context.Context, dir string, args ...string) (Output, error) {
		*calls = append(*calls, call{dir: dir, args: args})
		return outputs[args[0]], nil
	}
}

func TestRecoveryCommit_StopsAtFirstFailure(t *testing.T) {
	var calls []call
	g := &Guard{Dir: "/repo", Run: fakeRunner(&calls, map[string]Output{
		"add": {ExitCode: 128, Stderr: "fatal: index.lock exists"},
	})}

	_, err := g.RecoveryCommit(context.Background(), "t")
	require.Error(t, err)
	assert.Equal(t, "git add: exit code 128: fatal: index.lock exists", err.Error())
	require.Len(t, calls, 1)
	assert.Equal(t, "/repo", calls[0].dir)
}

func TestRecoveryCommit_Sequence(t *testing.T) {
	var calls []call
	g := &Guard{Dir: "/repo", Run: fakeRunner(&calls, map[string]Output{
		"rev-parse": {Stdout: "abc123\n"},
	})}

	hash, err := g.RecoveryCommit(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"add", "-A"}, calls[0].args)
	assert.Equal(t, []string{"commit", "-m", "taskflow checkpoint: untitled task"}, calls[1].args)
	assert.Equal(t, []string{"rev-parse", "HEAD"}, calls[2].args)
}

func TestGit_FallsBackToStdoutDetail(t *testing.T) {
	var calls []call
	g := &Guard{Dir: "/repo", Run: fakeRunner(&calls, map[string]Output{
		"status": {ExitCode: 1, Stdout: "something odd"},
	})}
	err := g.EnsureClean(context.Background())
	require.Error(t, err)
	assert.Equal(t, "git status: exit code 1: something odd", err.Error())
}

func TestGit_RunnerError(t *testing.T) {
	g := &Guard{Dir: "/repo", Run: func(context.Context, string, ...string) (Output, error) {
		return Output{}, errors.New("exec: \"git\": executable file not found")
	}}
	err := g.EnsureClean(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git status: exec")
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "taskflow checkpoint: a b", CommitMessage("\ta\n\n b "))
	assert.Equal(t, "taskflow checkpoint: untitled task", CommitMessage("   "))
}
