package adapter

import (
	"strings"

	"taskflow/internal/config"
	"taskflow/internal/jsonutil"
)

// textFields is the preference order for text-bearing fields across the
// event schemas opencode has shipped.
var textFields = []string{"text", "content", "message", "result", "output"}

// nestedFields are the containers searched when an event carries no text at
// the top level.
var nestedFields = []string{"part", "properties", "message"}

// okEventTypes clear a previously seen error signal.
var okEventTypes = map[string]bool{
	"step_finish": true,
	"step-finish": true,
	"finish":      true,
	"done":        true,
	"success":     true,
}

// Opencode drives a CLI that takes a positional prompt, a combined
// provider/model argument, and streams JSON-lines events.
type Opencode struct{}

func (Opencode) Name() string { return "opencode" }

func (Opencode) BuildCommand(cfg config.Provider, prompt string, opts BuildOptions) Command {
	args := baseArgs(cfg, "run")
	if model := combinedModel(cfg); model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "--format", "json")
	if opts.ResumeSession != "" {
		args = append(args, "--session", opts.ResumeSession)
	}
	for _, flag := range cfg.UnattendedFlags {
		// auto-yes is rejected in combination with --format.
		if flag == "--yes" || flag == "-y" {
			continue
		}
		args = append(args, flag)
	}
	args = append(args, cfg.ExtraArgs...)
	args = append(args, withSystemPrompt(prompt, opts.SystemPrompt))
	return Command{Name: executable(cfg, "opencode"), Args: args}
}

func combinedModel(cfg config.Provider) string {
	if cfg.Model == "" || strings.Contains(cfg.Model, "/") || cfg.ModelProvider == "" {
		return cfg.Model
	}
	return cfg.ModelProvider + "/" + cfg.Model
}

func (Opencode) ParseResponse(stdout string, exitCode int) Response {
	var resp Response
	var texts []string
	failed := false
	lastErr := ""

	for _, event := range jsonutil.Objects(stdout) {
		if id := sessionID(event); id != "" {
			resp.SessionID = id
		}

		eventType := jsonutil.GetString(event, "type")
		if eventType == "error" || event["error"] != nil {
			failed = true
			lastErr = jsonutil.ToString(event["error"])
			if lastErr == "" {
				lastErr = extractText(event, 2)
			}
			continue
		}
		if okEventTypes[eventType] {
			failed = false
		}
		if t := extractText(event, 2); strings.TrimSpace(t) != "" {
			texts = append(texts, strings.TrimSpace(t))
		}
	}

	switch {
	case failed:
		if lastErr == "" {
			lastErr = "opencode reported an error"
		}
		resp.Error = "opencode: " + lastErr
	case len(texts) > 0:
		resp.Success = true
		resp.Result = strings.Join(texts, "\n")
	case exitCode != 0:
		resp.Error = "opencode crashed: exit code " + itoa(exitCode) + ": " + excerpt(stdout)
	default:
		resp.Error = "opencode: no text in output: " + excerpt(stdout)
	}
	return resp
}

// extractText returns the first text field of obj, descending into nested
// containers up to depth levels.
func extractText(obj jsonutil.Object, depth int) string {
	if obj == nil {
		return ""
	}
	if t := jsonutil.FirstString(obj, textFields...); t != "" {
		return t
	}
	if depth == 0 {
		return ""
	}
	for _, key := range nestedFields {
		if t := extractText(jsonutil.GetObject(obj, key), depth-1); t != "" {
			return t
		}
	}
	return ""
}

func sessionID(event jsonutil.Object) string {
	if id := jsonutil.FirstString(event, "sessionID", "session_id"); id != "" {
		return id
	}
	if part := jsonutil.GetObject(event, "part"); part != nil {
		return jsonutil.GetString(part, "sessionID")
	}
	return ""
}
