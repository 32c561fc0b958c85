// Package prompt assembles the text sent to an agent for one task stage.
//
// The main prompt is layered: stage instructions (embedded, overridable per
// project in .taskflow/prompts/<stage>.md), project context documents from
// .taskflow/context/, then the task itself. The agent's persona file,
// .taskflow/agents/<agent>.md, becomes the system prompt.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"taskflow/internal/config"
	"taskflow/internal/task"
)

//go:embed stages/*.md
var stageFS embed.FS

// ErrNoInstructions is returned for stages agents never run (intake, done).
var ErrNoInstructions = errors.New("no instructions for stage")

// Prompt is the assembled input for one agent invocation.
type Prompt struct {
	Main   string
	System string
}

// Builder assembles prompts from a project's .taskflow directory.
type Builder struct {
	// AcceptRating is substituted into the audit instructions.
	AcceptRating int
}

// NewBuilder returns a Builder using the given audit threshold.
func NewBuilder(acceptRating int) *Builder {
	if acceptRating <= 0 {
		acceptRating = config.DefaultAcceptRating
	}
	return &Builder{AcceptRating: acceptRating}
}

// Build assembles the prompt for t at its current stage.
func (b *Builder) Build(t *task.Task, root string) (Prompt, error) {
	instructions, err := b.Instructions(root, t.Stage)
	if err != nil {
		return Prompt{}, err
	}
	docs, err := contextDocs(root)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(t.DisplayTitle())
	sb.WriteString("\n\nTask ID: ")
	sb.WriteString(t.ID)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(instructions))
	sb.WriteString("\n")

	if len(docs) > 0 {
		sb.WriteString("\n## Project context\n")
		for _, d := range docs {
			sb.WriteString("\n### ")
			sb.WriteString(d.name)
			sb.WriteString("\n\n")
			sb.WriteString(strings.TrimSpace(d.body))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n## Task\n\n")
	if body := strings.TrimSpace(t.Body); body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	} else {
		sb.WriteString("(no description)\n")
	}

	system, err := persona(root, t.Agent)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Main: sb.String(), System: system}, nil
}

// Instructions returns the stage instructions, preferring a project override.
func (b *Builder) Instructions(root string, stage task.Stage) (string, error) {
	switch stage {
	case task.StagePlan, task.StageCode, task.StageAudit:
	default:
		return "", fmt.Errorf("%w: %s", ErrNoInstructions, stage)
	}

	override := filepath.Join(root, config.Dir, "prompts", stage.String()+".md")
	data, err := os.ReadFile(override)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = stageFS.ReadFile("stages/" + stage.String() + ".md")
	}
	if err != nil {
		return "", fmt.Errorf("read %s instructions: %w", stage, err)
	}
	return strings.ReplaceAll(string(data), "{{ACCEPT_RATING}}", strconv.Itoa(b.AcceptRating)), nil
}

type doc struct {
	name string
	body string
}

// contextDocs loads .taskflow/context/*.md sorted by file name.
func contextDocs(root string) ([]doc, error) {
	dir := config.ContextDir(root)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read context dir: %w", err)
	}
	var docs []doc
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read context %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		docs = append(docs, doc{name: strings.TrimSuffix(e.Name(), ".md"), body: string(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].name < docs[j].name })
	return docs, nil
}

// persona returns the agent's persona text, or "" when it has none.
func persona(root, agent string) (string, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" || strings.ContainsAny(agent, `/\`) {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Join(config.AgentsDir(root), agent+".md"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read agent %s: %w", agent, err)
	}
	return strings.TrimSpace(string(data)), nil
}
