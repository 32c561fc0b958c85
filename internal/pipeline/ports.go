package pipeline

import (
	"context"
	"time"

	"taskflow/internal/adapter"
	"taskflow/internal/config"
	"taskflow/internal/process"
	"taskflow/internal/prompt"
	"taskflow/internal/task"
)

// TaskStore reads and writes task records. The engine does not know the
// storage format; re-reading must reflect the latest on-disk state.
type TaskStore interface {
	ReadCurrent(ref string) (*task.Task, error)
	Serialize(t *task.Task, originalRaw []byte) ([]byte, error)
	WriteRaw(ref string, data []byte) error
	List() ([]*task.Task, error)
}

// Orderer selects and orders the tasks of one stage for a column run.
type Orderer func(all []*task.Task, stage task.Stage) []*task.Task

// PromptBuilder assembles the agent prompt for a task.
type PromptBuilder interface {
	Build(t *task.Task, root string) (prompt.Prompt, error)
}

// Defaults resolves the agent and provider assigned to a stage.
type Defaults interface {
	DefaultAgentForStage(root string, stage task.Stage) string
	DefaultProviderForAgent(agent string) (string, bool)
	DefaultProvider() string
}

// ProviderResolver looks up provider configuration by name.
type ProviderResolver interface {
	ResolveProvider(root, name string) (config.Provider, bool)
}

// GitGuard asserts the working tree is clean before a run.
type GitGuard interface {
	EnsureClean(ctx context.Context) error
}

// Executor runs one agent command to completion.
type Executor func(ctx context.Context, workDir string, cmd adapter.Command, timeout time.Duration, onLine process.LineHandler) (*process.Result, error)

// AdapterFactory returns the adapter for a tool name.
type AdapterFactory func(tool string) (adapter.Adapter, error)

func execProcess(ctx context.Context, workDir string, cmd adapter.Command, timeout time.Duration, onLine process.LineHandler) (*process.Result, error) {
	return process.Run(ctx, workDir, cmd, process.WithTimeout(timeout), process.WithLineHandler(onLine))
}
