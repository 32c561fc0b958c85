package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageIntake, "intake"},
		{StagePlan, "plan"},
		{StageCode, "code"},
		{StageAudit, "audit"},
		{StageDone, "done"},
		{Stage(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.String())
	}
}

func TestParseStage(t *testing.T) {
	for _, s := range Stages {
		got, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStage("  AUDIT ")
	require.NoError(t, err)
	assert.Equal(t, StageAudit, got)

	_, err = ParseStage("review")
	assert.EqualError(t, err, `unknown stage "review"`)
	assert.ErrorIs(t, err, ErrUnknownName)
}

func TestStage_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StageCode)
	require.NoError(t, err)
	assert.Equal(t, `"code"`, string(data))

	var s Stage
	require.NoError(t, json.Unmarshal([]byte(`"done"`), &s))
	assert.Equal(t, StageDone, s)

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &s))
}

func TestStage_YAML(t *testing.T) {
	var v struct {
		Stage Stage `yaml:"stage"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("stage: Plan\n"), &v))
	assert.Equal(t, StagePlan, v.Stage)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "stage: plan\n", string(out))
}

func TestStage_YAMLErrors(t *testing.T) {
	var v struct {
		Stage Stage `yaml:"stage"`
	}
	err := yaml.Unmarshal([]byte("title: x\nstage: review\n"), &v)
	assert.ErrorIs(t, err, ErrUnknownName)
	assert.Contains(t, err.Error(), `line 2: unknown stage "review"`)

	err = yaml.Unmarshal([]byte("stage: [plan, code]\n"), &v)
	assert.ErrorContains(t, err, "line 1: expected a single name")
}
