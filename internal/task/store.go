package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a task file does not exist.
var ErrNotFound = errors.New("task not found")

// FileStore keeps one markdown file per task in a directory.
// Layout: <Dir>/<id>.md
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// ID normalizes a task reference (an ID, a file name or a path) to an ID.
func ID(ref string) string {
	base := filepath.Base(strings.TrimSpace(ref))
	return strings.TrimSuffix(base, ".md")
}

// Path returns the file path for a task reference.
func (s *FileStore) Path(ref string) string {
	return filepath.Join(s.Dir, ID(ref)+".md")
}

// ReadCurrent reads the task's current on-disk representation.
func (s *FileStore) ReadCurrent(ref string) (*Task, error) {
	path := s.Path(ref)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", ID(ref), ErrNotFound)
		}
		return nil, fmt.Errorf("reading task %s: %w", ID(ref), err)
	}
	return Parse(ID(ref), path, data)
}

// Serialize renders t on top of originalRaw.
func (s *FileStore) Serialize(t *Task, originalRaw []byte) ([]byte, error) {
	return Render(t, originalRaw)
}

// WriteRaw replaces the task file atomically (temp file + rename).
func (s *FileStore) WriteRaw(ref string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure task dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, "."+ID(ref)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write task %s: %w", ID(ref), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write task %s: %w", ID(ref), err)
	}
	if err := os.Rename(tmpName, s.Path(ref)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename task %s: %w", ID(ref), err)
	}
	return nil
}

// List reads every task in the directory, sorted by ID. A missing directory
// yields an empty list.
func (s *FileStore) List() ([]*Task, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading task dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	tasks := make([]*Task, 0, len(names))
	for _, name := range names {
		t, err := s.ReadCurrent(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Move sets a task's stage by hand. Moving into audit from a lower stage
// resets the audit attempt counter.
func (s *FileStore) Move(ref string, stage Stage) (*Task, error) {
	t, err := s.ReadCurrent(ref)
	if err != nil {
		return nil, err
	}
	if stage == StageAudit && t.Stage < StageAudit {
		t.AuditAttempts = 0
	}
	t.Stage = stage
	data, err := s.Serialize(t, t.Raw)
	if err != nil {
		return nil, err
	}
	if err := s.WriteRaw(ref, data); err != nil {
		return nil, err
	}
	t.Raw = data
	return t, nil
}
