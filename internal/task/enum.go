package task

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrUnknownName matches every EnumError.
var ErrUnknownName = errors.New("unknown name")

// EnumError reports a name that is not a member of the named enum.
type EnumError struct {
	Enum string
	Name string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Enum, e.Name)
}

func (e *EnumError) Unwrap() error { return ErrUnknownName }

// Named is implemented by enums that travel as their String form in task
// files, config and JSON output.
type Named interface {
	String() string
}

// EncodeNameJSON encodes v as its name.
func EncodeNameJSON[T Named](v T) ([]byte, error) {
	return json.Marshal(v.String())
}

// DecodeNameJSON decodes a JSON string and hands it to parse.
func DecodeNameJSON[T any](data []byte, parse func(string) (T, error)) (T, error) {
	var zero T
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return zero, err
	}
	return parse(name)
}

// DecodeNameYAML decodes a scalar YAML node and hands it to parse. Errors
// carry the node's line so config mistakes are easy to find.
func DecodeNameYAML[T any](node *yaml.Node, parse func(string) (T, error)) (T, error) {
	var zero T
	if node.Kind != yaml.ScalarNode {
		return zero, fmt.Errorf("line %d: expected a single name", node.Line)
	}
	v, err := parse(node.Value)
	if err != nil {
		return zero, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return v, nil
}
