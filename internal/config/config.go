// Package config loads .taskflow/config.yaml: provider definitions, the
// agent assigned to each stage, and audit policy thresholds.
//
// Layout of a taskflow workspace:
//
//	.taskflow/
//	├── config.yaml
//	├── tasks/      <- one markdown file per task
//	├── context/    <- project context documents added to every prompt
//	├── agents/     <- persona files, one per agent name
//	└── logs/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"taskflow/internal/task"
)

const (
	// Dir is the workspace directory created in each project root.
	Dir = ".taskflow"
	// RootEnv overrides the project root (useful in tests and scripts).
	RootEnv = "TASKFLOW_ROOT"

	// DefaultAcceptRating is the minimum audit rating that accepts the work.
	DefaultAcceptRating = 8
	// DefaultMaxAuditAttempts is the number of audit rejections after which
	// the task is left in audit and the run hard-stops.
	DefaultMaxAuditAttempts = 2
	// DefaultProviderName is used when neither the agent nor the config names one.
	DefaultProviderName = "claude"
)

// PromptMode is how a tool receives the prompt text.
type PromptMode string

const (
	PromptFlag       PromptMode = "flag"
	PromptPositional PromptMode = "positional"
	PromptStdin      PromptMode = "stdin"
)

// Duration is a time.Duration that reads Go duration strings ("20m") from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}

// Provider describes one external CLI tool + model combination.
type Provider struct {
	Name            string     `yaml:"-"`
	Tool            string     `yaml:"tool"`
	Command         string     `yaml:"command,omitempty"`
	Model           string     `yaml:"model,omitempty"`
	ModelProvider   string     `yaml:"model_provider,omitempty"`
	Subcommand      string     `yaml:"subcommand,omitempty"`
	UnattendedFlags []string   `yaml:"unattended_flags,omitempty"`
	OutputFlags     []string   `yaml:"output_flags,omitempty"`
	PromptMode      PromptMode `yaml:"prompt_mode,omitempty"`
	PromptFlag      string     `yaml:"prompt_flag,omitempty"`
	ExtraArgs       []string   `yaml:"extra_args,omitempty"`
	MaxTurns        int        `yaml:"max_turns,omitempty"`
	MaxBudgetUSD    float64    `yaml:"max_budget_usd,omitempty"`
	Timeout         Duration   `yaml:"timeout,omitempty"`
}

// Agent maps a persona to the provider that runs it.
type Agent struct {
	Provider string `yaml:"provider"`
}

// Pipeline holds the audit policy thresholds.
type Pipeline struct {
	AcceptRating     int `yaml:"accept_rating"`
	MaxAuditAttempts int `yaml:"max_audit_attempts"`
}

// File models .taskflow/config.yaml.
type File struct {
	Version         int                 `yaml:"version"`
	DefaultProvider string              `yaml:"default_provider"`
	Pipeline        Pipeline            `yaml:"pipeline"`
	Stages          map[string]string   `yaml:"stages"`
	Agents          map[string]Agent    `yaml:"agents"`
	Providers       map[string]Provider `yaml:"providers"`
}

// Config is the loaded configuration for one project root.
type Config struct {
	Root string
	File File
}

var defaultStageAgents = map[task.Stage]string{
	task.StagePlan:  "planner",
	task.StageCode:  "coder",
	task.StageAudit: "auditor",
}

// DefaultFile returns the configuration written by Init.
func DefaultFile() File {
	return File{
		Version:         1,
		DefaultProvider: DefaultProviderName,
		Pipeline: Pipeline{
			AcceptRating:     DefaultAcceptRating,
			MaxAuditAttempts: DefaultMaxAuditAttempts,
		},
		Stages: map[string]string{
			"plan":  "planner",
			"code":  "coder",
			"audit": "auditor",
		},
		Agents: map[string]Agent{
			"planner": {Provider: "claude"},
			"coder":   {Provider: "claude"},
			"auditor": {Provider: "codex"},
		},
		Providers: map[string]Provider{
			"claude": {
				Tool:            "claude",
				Command:         "claude",
				Model:           "sonnet",
				UnattendedFlags: []string{"--dangerously-skip-permissions"},
				MaxTurns:        40,
				Timeout:         Duration(30 * time.Minute),
			},
			"codex": {
				Tool:            "codex",
				Command:         "codex",
				Model:           "gpt-5-codex",
				UnattendedFlags: []string{"--full-auto", "--skip-git-repo-check"},
				Timeout:         Duration(30 * time.Minute),
			},
			"gemini": {
				Tool:            "gemini",
				Command:         "gemini",
				Model:           "gemini-2.5-pro",
				UnattendedFlags: []string{"--yolo"},
				PromptMode:      PromptFlag,
				Timeout:         Duration(30 * time.Minute),
			},
			"opencode": {
				Tool:          "opencode",
				Command:       "opencode",
				Model:         "claude-sonnet-4",
				ModelProvider: "anthropic",
				Timeout:       Duration(30 * time.Minute),
			},
		},
	}
}

// Load reads <root>/.taskflow/config.yaml. A missing file yields the defaults.
func Load(root string) (*Config, error) {
	cfg := &Config{Root: root, File: DefaultFile()}

	data, err := os.ReadFile(Path(root))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", Path(root), err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", Path(root), err)
	}
	file.applyDefaults()
	if err := file.Validate(); err != nil {
		return nil, err
	}
	cfg.File = file
	return cfg, nil
}

func (f *File) applyDefaults() {
	if f.DefaultProvider == "" {
		f.DefaultProvider = DefaultProviderName
	}
	if f.Pipeline.AcceptRating <= 0 {
		f.Pipeline.AcceptRating = DefaultAcceptRating
	}
	if f.Pipeline.MaxAuditAttempts <= 0 {
		f.Pipeline.MaxAuditAttempts = DefaultMaxAuditAttempts
	}
	if f.Stages == nil {
		f.Stages = map[string]string{}
	}
	if f.Agents == nil {
		f.Agents = map[string]Agent{}
	}
	if f.Providers == nil {
		f.Providers = map[string]Provider{}
	}
}

// Validate checks the parts of the file that can be checked without running
// anything. Tool names are validated later by the adapter factory.
func (f *File) Validate() error {
	var issues []string
	for stage := range f.Stages {
		if _, err := task.ParseStage(stage); err != nil {
			issues = append(issues, fmt.Sprintf("stages: %v", err))
		}
	}
	for name, p := range f.Providers {
		if strings.TrimSpace(p.Tool) == "" {
			issues = append(issues, fmt.Sprintf("providers.%s: tool is required", name))
		}
		switch p.PromptMode {
		case "", PromptFlag, PromptPositional, PromptStdin:
		default:
			issues = append(issues, fmt.Sprintf("providers.%s: prompt_mode must be flag, positional or stdin", name))
		}
		if p.MaxTurns < 0 || p.MaxBudgetUSD < 0 || p.Timeout < 0 {
			issues = append(issues, fmt.Sprintf("providers.%s: limits must not be negative", name))
		}
	}
	if len(issues) > 0 {
		return fmt.Errorf("config: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Init creates the workspace directory structure and writes the default
// config file if none exists. Logs are git-ignored so they never dirty the
// working tree.
func Init(root string) error {
	for _, dir := range []string{TasksDir(root), ContextDir(root), AgentsDir(root), LogsDir(root)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	ignore := filepath.Join(root, Dir, ".gitignore")
	if _, err := os.Stat(ignore); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(ignore, []byte("logs/\n"), 0o644); err != nil {
			return err
		}
	}
	path := Path(root)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	data, err := yaml.Marshal(DefaultFile())
	if err != nil {
		return fmt.Errorf("config: encode defaults: %w", err)
	}
	header := []byte("# taskflow configuration\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// Path returns the config file path for root.
func Path(root string) string { return filepath.Join(root, Dir, "config.yaml") }

// TasksDir returns the directory holding task files.
func TasksDir(root string) string { return filepath.Join(root, Dir, "tasks") }

// ContextDir returns the directory holding shared prompt context documents.
func ContextDir(root string) string { return filepath.Join(root, Dir, "context") }

// AgentsDir returns the directory holding agent persona files.
func AgentsDir(root string) string { return filepath.Join(root, Dir, "agents") }

// LogsDir returns the log directory.
func LogsDir(root string) string { return filepath.Join(root, Dir, "logs") }

// forRoot returns the config for root, loading another project's file when
// root differs from c.Root.
func (c *Config) forRoot(root string) *Config {
	if root == "" || root == c.Root {
		return c
	}
	other, err := Load(root)
	if err != nil {
		return c
	}
	return other
}

// DefaultAgentForStage returns the agent configured for stage.
func (c *Config) DefaultAgentForStage(root string, stage task.Stage) string {
	cfg := c.forRoot(root)
	if agent := strings.TrimSpace(cfg.File.Stages[stage.String()]); agent != "" {
		return agent
	}
	return defaultStageAgents[stage]
}

// DefaultProviderForAgent returns the provider mapped to agent, if any.
func (c *Config) DefaultProviderForAgent(agent string) (string, bool) {
	a, ok := c.File.Agents[agent]
	if !ok || strings.TrimSpace(a.Provider) == "" {
		return "", false
	}
	return a.Provider, true
}

// DefaultProvider returns the global fallback provider name.
func (c *Config) DefaultProvider() string {
	if c.File.DefaultProvider == "" {
		return DefaultProviderName
	}
	return c.File.DefaultProvider
}

// ResolveProvider returns the named provider configuration.
func (c *Config) ResolveProvider(root, name string) (Provider, bool) {
	cfg := c.forRoot(root)
	p, ok := cfg.File.Providers[name]
	if !ok {
		return Provider{}, false
	}
	p.Name = name
	return p, true
}
