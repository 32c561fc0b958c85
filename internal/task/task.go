// Package task models pipeline work items and stores them as markdown files
// with YAML frontmatter.
package task

import (
	"fmt"
	"sort"
)

// Task is a single work item as read from disk.
type Task struct {
	ID            string // Stable identifier, derived from the file name.
	Title         string
	Stage         Stage
	Provider      string
	Agent         string
	AuditAttempts int
	Order         int
	Body          string

	// Path is the file the task was read from.
	Path string
	// Raw is the exact file content at read time. Serialization merges into it
	// so frontmatter keys the engine does not own survive a write.
	Raw []byte
}

// String returns a debug-friendly representation of Task.
func (t *Task) String() string {
	return fmt.Sprintf("Task{ID: %s, Title: %q, Stage: %s}", t.ID, t.Title, t.Stage)
}

// DisplayTitle returns the title, falling back to the ID.
func (t *Task) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.ID
}

// OrderForStage returns the tasks currently in stage, sorted by their order
// field and then by ID so column runs are deterministic.
func OrderForStage(all []*Task, stage Stage) []*Task {
	out := make([]*Task, 0, len(all))
	for _, t := range all {
		if t != nil && t.Stage == stage {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}
