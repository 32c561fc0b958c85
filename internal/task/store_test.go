package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTask = `---
title: Add login form
stage: code
priority: high
provider: claude
agent: coder
audit_attempts: 1
---

Build the login form.
`

func writeTask(t *testing.T, dir, id, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".md"), []byte(content), 0o644))
}

func TestFileStore_ReadCurrent(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "login", sampleTask)
	store := NewFileStore(dir)

	got, err := store.ReadCurrent("login")
	require.NoError(t, err)
	assert.Equal(t, "login", got.ID)
	assert.Equal(t, "Add login form", got.Title)
	assert.Equal(t, StageCode, got.Stage)
	assert.Equal(t, "claude", got.Provider)
	assert.Equal(t, "coder", got.Agent)
	assert.Equal(t, 1, got.AuditAttempts)
	assert.Equal(t, "Build the login form.\n", got.Body)
	assert.Equal(t, filepath.Join(dir, "login.md"), got.Path)
	assert.Equal(t, sampleTask, string(got.Raw))
}

func TestFileStore_ReadCurrent_AcceptsPathRef(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "login", sampleTask)
	store := NewFileStore(dir)

	got, err := store.ReadCurrent(filepath.Join("somewhere", "login.md"))
	require.NoError(t, err)
	assert.Equal(t, "login", got.ID)
}

func TestFileStore_ReadCurrent_Missing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, err := store.ReadCurrent("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParse_NoFrontMatterIsIntake(t *testing.T) {
	got, err := Parse("idea", "idea.md", []byte("just an idea\n"))
	require.NoError(t, err)
	assert.Equal(t, StageIntake, got.Stage)
	assert.Equal(t, "just an idea\n", got.Body)
	assert.Equal(t, "idea", got.DisplayTitle())
}

func TestParse_InvalidStage(t *testing.T) {
	_, err := Parse("bad", "bad.md", []byte("---\nstage: review\n---\nbody\n"))
	assert.Error(t, err)
}

func TestParse_Unterminated(t *testing.T) {
	_, err := Parse("bad", "bad.md", []byte("---\nstage: plan\nbody\n"))
	assert.ErrorIs(t, err, ErrMalformedFrontMatter)
}

func TestRender_PreservesUnknownKeysAndOrder(t *testing.T) {
	tk, err := Parse("login", "login.md", []byte(sampleTask))
	require.NoError(t, err)

	tk.Stage = StageAudit
	tk.Agent = "auditor"
	tk.AuditAttempts = 0

	out, err := Render(tk, tk.Raw)
	require.NoError(t, err)

	want := `---
title: Add login form
stage: audit
priority: high
provider: claude
agent: auditor
audit_attempts: 0
---

Build the login form.
`
	assert.Equal(t, want, string(out))
}

func TestRender_AddsMissingKeys(t *testing.T) {
	tk, err := Parse("x", "x.md", []byte("---\ntitle: X\n---\nbody\n"))
	require.NoError(t, err)
	tk.Stage = StagePlan
	tk.Provider = "codex"

	out, err := Render(tk, tk.Raw)
	require.NoError(t, err)

	reparsed, err := Parse("x", "x.md", out)
	require.NoError(t, err)
	assert.Equal(t, StagePlan, reparsed.Stage)
	assert.Equal(t, "codex", reparsed.Provider)
	assert.Equal(t, "", reparsed.Agent)
	assert.Equal(t, "body\n", reparsed.Body)
}

func TestFileStore_WriteRawAndList(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.WriteRaw("b", []byte("---\nstage: plan\norder: 2\n---\nB\n")))
	require.NoError(t, store.WriteRaw("a", []byte("---\nstage: plan\norder: 2\n---\nA\n")))
	require.NoError(t, store.WriteRaw("c", []byte("---\nstage: plan\norder: 1\n---\nC\n")))
	require.NoError(t, store.WriteRaw("d", []byte("---\nstage: code\n---\nD\n")))

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 4)

	ordered := OrderForStage(all, StagePlan)
	ids := make([]string, 0, len(ordered))
	for _, tk := range ordered {
		ids = append(ids, tk.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	// No leftover temp files.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope"))
	all, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileStore_Move_ResetsAttemptsOnAuditEntry(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "login", sampleTask)
	store := NewFileStore(dir)

	moved, err := store.Move("login", StageAudit)
	require.NoError(t, err)
	assert.Equal(t, StageAudit, moved.Stage)
	assert.Equal(t, 0, moved.AuditAttempts)

	reread, err := store.ReadCurrent("login")
	require.NoError(t, err)
	assert.Equal(t, StageAudit, reread.Stage)
	assert.Equal(t, 0, reread.AuditAttempts)
}

func TestFileStore_Move_KeepsAttemptsOutsideAudit(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "login", sampleTask)
	store := NewFileStore(dir)

	moved, err := store.Move("login", StagePlan)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.AuditAttempts)
}
