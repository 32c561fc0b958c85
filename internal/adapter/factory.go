package adapter

import (
	"fmt"
	"strconv"
	"strings"
)

// New returns the adapter for tool. Matching is case-insensitive; unknown
// names fail with ErrUnsupportedTool.
func New(tool string) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(tool)) {
	case "claude", "claude-code":
		return Claude{}, nil
	case "codex":
		return Codex{}, nil
	case "gemini":
		return Gemini{}, nil
	case "opencode":
		return Opencode{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTool, tool)
	}
}

// Tools lists the canonical tool names New accepts.
func Tools() []string {
	return []string{"claude", "codex", "gemini", "opencode"}
}

func itoa(n int) string { return strconv.Itoa(n) }
