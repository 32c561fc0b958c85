// Package adapter translates a provider configuration and a prompt into a
// concrete CLI invocation, and translates the tool's raw output back into a
// normalized Response. Adapters never execute anything themselves.
package adapter

import (
	"errors"
	"fmt"
	"strings"

	"taskflow/internal/config"
	"taskflow/internal/ui/textutil"
)

// ErrUnsupportedTool is returned by New for tool names with no adapter.
var ErrUnsupportedTool = errors.New("unsupported tool")

// excerptLimit bounds how much raw output is attached to a failure.
const excerptLimit = 200

// Adapter encodes one agent CLI's invocation and output conventions.
type Adapter interface {
	// Name returns the canonical tool name.
	Name() string
	// BuildCommand is pure: identical inputs yield identical commands.
	BuildCommand(cfg config.Provider, prompt string, opts BuildOptions) Command
	// ParseResponse normalizes the tool's stdout and exit code.
	ParseResponse(stdout string, exitCode int) Response
}

// BuildOptions are per-invocation overrides.
type BuildOptions struct {
	// MaxTurns overrides the configured turn limit when positive.
	MaxTurns int
	// SystemPrompt is additional system-level instruction text.
	SystemPrompt string
	// ResumeSession continues a prior session when set.
	ResumeSession string
}

// Command is a normalized process invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

// String renders the command for logs. The prompt may be long, so each
// argument is clipped.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		arg = textutil.SingleLine(arg)
		if strings.ContainsAny(arg, " \t") {
			arg = fmt.Sprintf("%q", textutil.Truncate(arg, 60))
		}
		parts = append(parts, arg)
	}
	if c.Stdin != "" {
		parts = append(parts, "<stdin>")
	}
	return strings.Join(parts, " ")
}

// Response is a tool's output in normalized form.
type Response struct {
	Success   bool
	Result    string
	Error     string
	SessionID string
	CostUSD   *float64
	Turns     *int
}

func failure(format string, args ...interface{}) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

func excerpt(s string) string {
	return textutil.Excerpt(strings.TrimSpace(s), excerptLimit)
}

func executable(cfg config.Provider, fallback string) string {
	if strings.TrimSpace(cfg.Command) != "" {
		return cfg.Command
	}
	return fallback
}

// baseArgs starts a fresh argument vector with the configured subcommand.
func baseArgs(cfg config.Provider, defaults ...string) []string {
	args := make([]string, 0, 16)
	if cfg.Subcommand != "" {
		return append(args, strings.Fields(cfg.Subcommand)...)
	}
	return append(args, defaults...)
}

func maxTurns(cfg config.Provider, opts BuildOptions) int {
	if opts.MaxTurns > 0 {
		return opts.MaxTurns
	}
	return cfg.MaxTurns
}

// withSystemPrompt prepends system instructions for tools that have no
// dedicated flag.
func withSystemPrompt(prompt, system string) string {
	if strings.TrimSpace(system) == "" {
		return prompt
	}
	return strings.TrimRight(system, "\n") + "\n\n" + prompt
}
