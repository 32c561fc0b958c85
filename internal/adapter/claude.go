package adapter

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"taskflow/internal/config"
	"taskflow/internal/jsonutil"
)

// Claude drives a CLI that takes the prompt through -p and prints a single
// JSON result object.
type Claude struct{}

func (Claude) Name() string { return "claude" }

func (Claude) BuildCommand(cfg config.Provider, prompt string, opts BuildOptions) Command {
	args := baseArgs(cfg)
	if opts.ResumeSession != "" {
		args = append(args, "--resume", opts.ResumeSession)
	}
	flag := cfg.PromptFlag
	if flag == "" {
		flag = "-p"
	}
	args = append(args, flag, prompt)
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	args = append(args, "--output-format", "json")
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if turns := maxTurns(cfg, opts); turns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(turns))
	}
	if cfg.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(cfg.MaxBudgetUSD, 'f', -1, 64))
	}
	args = append(args, cfg.UnattendedFlags...)
	args = append(args, cfg.ExtraArgs...)
	return Command{Name: executable(cfg, "claude"), Args: args}
}

func (Claude) ParseResponse(stdout string, exitCode int) Response {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		if exitCode != 0 {
			return failure("claude crashed: exit code %d with no output", exitCode)
		}
		return failure("claude produced no output")
	}

	obj, err := decodeResultObject(trimmed)
	if err != nil {
		return failure("claude: unparseable output (%v): %s", err, excerpt(trimmed))
	}

	resp := Response{
		Result:    jsonutil.GetString(obj, "result"),
		SessionID: jsonutil.GetString(obj, "session_id"),
		CostUSD:   jsonutil.GetFloat(obj, "total_cost_usd"),
		Turns:     jsonutil.GetInt(obj, "num_turns"),
	}
	if jsonutil.GetBool(obj, "is_error") {
		resp.Error = jsonutil.FirstString(obj, "result", "error")
		if resp.Error == "" {
			resp.Error = jsonutil.ToString(obj["error"])
		}
		if resp.Error == "" {
			resp.Error = "claude reported an error (" + jsonutil.GetString(obj, "subtype") + ")"
		}
		return resp
	}
	resp.Success = true
	return resp
}

// decodeResultObject accepts either a bare JSON object or output whose last
// line is one (some wrappers print warnings first).
func decodeResultObject(text string) (jsonutil.Object, error) {
	var obj jsonutil.Object
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj, nil
	}
	lines := strings.Split(text, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(last, "{") {
		return nil, errors.New("no result object")
	}
	if err := jsonutil.UnmarshalWithContext([]byte(last), &obj, "decode result line"); err != nil {
		return nil, err
	}
	return obj, nil
}
