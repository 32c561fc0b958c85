package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/config"
)

func TestOpencode_BuildCommand(t *testing.T) {
	cfg := config.Provider{
		Tool:            "opencode",
		Model:           "claude-sonnet-4",
		ModelProvider:   "anthropic",
		UnattendedFlags: []string{"--yes", "-y", "--print-logs"},
		ExtraArgs:       []string{"--agent", "build"},
	}

	cmd := Opencode{}.BuildCommand(cfg, "implement", BuildOptions{SystemPrompt: "you audit"})
	assert.Equal(t, "opencode", cmd.Name)
	assert.Equal(t, []string{
		"run",
		"--model", "anthropic/claude-sonnet-4",
		"--format", "json",
		"--print-logs",
		"--agent", "build",
		"you audit\n\nimplement",
	}, cmd.Args)
	assert.Empty(t, cmd.Stdin)
}

func TestOpencode_CombinedModel(t *testing.T) {
	assert.Equal(t, "openai/gpt-5", combinedModel(config.Provider{Model: "openai/gpt-5", ModelProvider: "anthropic"}))
	assert.Equal(t, "gpt-5", combinedModel(config.Provider{Model: "gpt-5"}))
	assert.Equal(t, "", combinedModel(config.Provider{ModelProvider: "anthropic"}))

	cmd := Opencode{}.BuildCommand(config.Provider{Tool: "opencode"}, "p", BuildOptions{ResumeSession: "ses_1"})
	assert.Equal(t, []string{"run", "--format", "json", "--session", "ses_1", "p"}, cmd.Args)
}

func TestOpencode_ParseResponse(t *testing.T) {
	t.Run("nested extraction across schemas", func(t *testing.T) {
		stream := `{"type":"step_start","sessionID":"ses_a","part":{"type":"step-start"}}
{"type":"text","part":{"type":"text","text":"Plan written."}}
INFO  noise line
{"type":"message.part.updated","properties":{"part":{"text":"shadowed by content"},"content":"<!-- STAGE_TRANSITION: code -->"}}
{"type":"step_finish","part":{"type":"step-finish","reason":"stop"}}`
		resp := Opencode{}.ParseResponse(stream, 0)
		require.True(t, resp.Success)
		assert.Equal(t, "Plan written.\n<!-- STAGE_TRANSITION: code -->", resp.Result)
		assert.Equal(t, "ses_a", resp.SessionID)
	})

	t.Run("field preference order", func(t *testing.T) {
		resp := Opencode{}.ParseResponse(`{"type":"x","output":"low","content":"high"}`, 0)
		require.True(t, resp.Success)
		assert.Equal(t, "high", resp.Result)
	})

	t.Run("error after text fails the stream", func(t *testing.T) {
		stream := `{"type":"text","part":{"text":"working"}}
{"type":"error","error":{"name":"ProviderAuthError","message":"invalid api key"}}`
		resp := Opencode{}.ParseResponse(stream, 0)
		assert.False(t, resp.Success)
		assert.Equal(t, "opencode: invalid api key", resp.Error)
	})

	t.Run("a later successful finish clears an earlier error", func(t *testing.T) {
		stream := `{"type":"error","error":"rate limited, retrying"}
{"type":"text","part":{"text":"recovered"}}
{"type":"step_finish","part":{"reason":"stop"}}`
		resp := Opencode{}.ParseResponse(stream, 0)
		require.True(t, resp.Success)
		assert.Equal(t, "recovered", resp.Result)
	})

	t.Run("last error wins", func(t *testing.T) {
		stream := `{"type":"error","error":"first"}
{"type":"error","error":"second"}`
		resp := Opencode{}.ParseResponse(stream, 1)
		assert.Equal(t, "opencode: second", resp.Error)
	})

	t.Run("no events and non-zero exit", func(t *testing.T) {
		resp := Opencode{}.ParseResponse("command not found", 127)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "exit code 127")
	})
}
