package adapter

import (
	"strings"

	"taskflow/internal/config"
)

// Gemini drives a CLI that prints plain text. The prompt is passed according
// to the provider's prompt mode, -p by default.
type Gemini struct{}

func (Gemini) Name() string { return "gemini" }

func (Gemini) BuildCommand(cfg config.Provider, prompt string, opts BuildOptions) Command {
	args := baseArgs(cfg)
	if cfg.Model != "" {
		args = append(args, "-m", cfg.Model)
	}
	args = append(args, cfg.UnattendedFlags...)
	args = append(args, cfg.OutputFlags...)
	args = append(args, cfg.ExtraArgs...)

	text := withSystemPrompt(prompt, opts.SystemPrompt)
	cmd := Command{Name: executable(cfg, "gemini")}
	switch cfg.PromptMode {
	case config.PromptStdin:
		cmd.Stdin = text
	case config.PromptPositional:
		args = append(args, text)
	default:
		flag := cfg.PromptFlag
		if flag == "" {
			flag = "-p"
		}
		args = append(args, flag, text)
	}
	cmd.Args = args
	return cmd
}

func (Gemini) ParseResponse(stdout string, exitCode int) Response {
	trimmed := strings.TrimSpace(stdout)
	if exitCode != 0 {
		return failure("gemini exited with code %d: %s", exitCode, excerpt(trimmed))
	}
	if trimmed == "" {
		return failure("gemini produced no output")
	}
	return Response{Success: true, Result: trimmed}
}
