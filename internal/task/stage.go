package task

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Stage is one position in the fixed task pipeline.
type Stage int

const (
	StageIntake Stage = iota // Captured but not yet planned; the engine never starts here.
	StagePlan
	StageCode
	StageAudit
	StageDone
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageIntake, StagePlan, StageCode, StageAudit, StageDone}

// String returns the lowercase name used in files and markers.
func (s Stage) String() string {
	switch s {
	case StageIntake:
		return "intake"
	case StagePlan:
		return "plan"
	case StageCode:
		return "code"
	case StageAudit:
		return "audit"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// ParseStage converts a stage name to a Stage. Matching is case-insensitive
// and ignores surrounding whitespace.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "intake":
		return StageIntake, nil
	case "plan":
		return StagePlan, nil
	case "code":
		return StageCode, nil
	case "audit":
		return StageAudit, nil
	case "done":
		return StageDone, nil
	default:
		return 0, &EnumError{Enum: "stage", Name: s}
	}
}

// MarshalJSON implements json.Marshaler.
func (s Stage) MarshalJSON() ([]byte, error) {
	return EncodeNameJSON(s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stage) UnmarshalJSON(data []byte) error {
	parsed, err := DecodeNameJSON(data, ParseStage)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Stage) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Stage) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := DecodeNameYAML(value, ParseStage)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
