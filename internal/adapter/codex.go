package adapter

import (
	"strings"

	"taskflow/internal/config"
	"taskflow/internal/jsonutil"
)

// Codex drives a CLI that reads the prompt from stdin ("-") and streams
// JSON-lines events.
type Codex struct{}

func (Codex) Name() string { return "codex" }

func (Codex) BuildCommand(cfg config.Provider, prompt string, opts BuildOptions) Command {
	args := baseArgs(cfg, "exec")
	args = append(args, "--json")
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	args = append(args, cfg.UnattendedFlags...)
	args = append(args, cfg.ExtraArgs...)
	if opts.ResumeSession != "" {
		args = append(args, "resume", opts.ResumeSession)
	}
	args = append(args, "-")
	return Command{
		Name:  executable(cfg, "codex"),
		Args:  args,
		Stdin: withSystemPrompt(prompt, opts.SystemPrompt),
	}
}

func (Codex) ParseResponse(stdout string, exitCode int) Response {
	var resp Response
	var text, lastErr string

	for _, event := range jsonutil.Objects(stdout) {
		switch jsonutil.GetString(event, "type") {
		case "thread.started":
			if id := jsonutil.GetString(event, "thread_id"); id != "" {
				resp.SessionID = id
			}
		case "item.completed":
			item := jsonutil.GetObject(event, "item")
			switch jsonutil.GetString(item, "type") {
			case "agent_message", "assistant_message":
				if t := jsonutil.FirstString(item, "text"); t != "" {
					text = t
				}
			case "error":
				lastErr = jsonutil.FirstString(item, "message", "text")
			}
		case "turn.failed", "error":
			if msg := jsonutil.ToString(event["error"]); msg != "" {
				lastErr = msg
			} else {
				lastErr = jsonutil.GetString(event, "message")
			}
		}

		// Older releases wrap events in {"id":..., "msg":{...}}.
		if msg := jsonutil.GetObject(event, "msg"); msg != nil {
			switch jsonutil.GetString(msg, "type") {
			case "agent_message":
				if t := jsonutil.GetString(msg, "message"); t != "" {
					text = t
				}
			case "task_complete":
				if t := jsonutil.GetString(msg, "last_agent_message"); t != "" {
					text = t
				}
			case "session_configured":
				if id := jsonutil.GetString(msg, "session_id"); id != "" {
					resp.SessionID = id
				}
			case "error", "stream_error":
				lastErr = jsonutil.GetString(msg, "message")
			}
		}
	}

	switch {
	case text != "":
		resp.Success = true
		resp.Result = strings.TrimSpace(text)
	case lastErr != "":
		resp.Error = "codex: " + lastErr
	case exitCode != 0:
		resp.Error = "codex crashed: exit code " + itoa(exitCode) + ": " + excerpt(stdout)
	default:
		resp.Error = "codex: no agent message in output: " + excerpt(stdout)
	}
	return resp
}
