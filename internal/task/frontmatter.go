package task

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMalformedFrontMatter indicates an opening fence without a closing one.
	ErrMalformedFrontMatter = errors.New("task: malformed frontmatter")
)

// frontMatter holds the keys taskflow reads. Unknown keys are left in the
// yaml.Node form and preserved on write.
type frontMatter struct {
	Title         string `yaml:"title"`
	Stage         string `yaml:"stage"`
	Provider      string `yaml:"provider"`
	Agent         string `yaml:"agent"`
	AuditAttempts int    `yaml:"audit_attempts"`
	Order         int    `yaml:"order"`
}

// splitFrontMatter returns the YAML block and the body. Documents without an
// opening fence have an empty YAML block.
func splitFrontMatter(content []byte) ([]byte, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, normalized, nil
	}
	rest := normalized[4:]
	// Empty frontmatter: "---\n---\n"
	if bytes.HasPrefix(rest, []byte("---\n")) {
		return nil, rest[4:], nil
	}
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return bytes.TrimSuffix(rest, []byte("\n---")), nil, nil
		}
		return nil, nil, ErrMalformedFrontMatter
	}
	return parts[0], parts[1], nil
}

// Parse decodes a task document. id and path are attached as-is.
func Parse(id, path string, content []byte) (*Task, error) {
	meta, body, err := splitFrontMatter(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	var fm frontMatter
	if len(bytes.TrimSpace(meta)) > 0 {
		if err := yaml.Unmarshal(meta, &fm); err != nil {
			return nil, fmt.Errorf("%s: parse frontmatter: %w", id, err)
		}
	}
	stage := StageIntake
	if strings.TrimSpace(fm.Stage) != "" {
		stage, err = ParseStage(fm.Stage)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
	}
	if fm.AuditAttempts < 0 {
		fm.AuditAttempts = 0
	}
	return &Task{
		ID:            id,
		Title:         fm.Title,
		Stage:         stage,
		Provider:      fm.Provider,
		Agent:         fm.Agent,
		AuditAttempts: fm.AuditAttempts,
		Order:         fm.Order,
		Body:          strings.TrimLeft(string(body), "\n"),
		Path:          path,
		Raw:           append([]byte(nil), content...),
	}, nil
}

// Render writes t's managed fields into the frontmatter of originalRaw and
// replaces the body. Keys and ordering from originalRaw are preserved.
func Render(t *Task, originalRaw []byte) ([]byte, error) {
	meta, _, err := splitFrontMatter(originalRaw)
	if err != nil {
		// Unreadable original: start over rather than refuse to persist.
		meta = nil
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(meta)) > 0 {
		if err := yaml.Unmarshal(meta, &doc); err != nil {
			return nil, fmt.Errorf("task: parse frontmatter: %w", err)
		}
	}
	mapping := documentMapping(&doc)

	if t.Title != "" || hasKey(mapping, "title") {
		setScalar(mapping, "title", t.Title, "!!str")
	}
	setScalar(mapping, "stage", t.Stage.String(), "!!str")
	setScalar(mapping, "provider", t.Provider, "!!str")
	setScalar(mapping, "agent", t.Agent, "!!str")
	setScalar(mapping, "audit_attempts", strconv.Itoa(t.AuditAttempts), "!!int")
	if t.Order != 0 || hasKey(mapping, "order") {
		setScalar(mapping, "order", strconv.Itoa(t.Order), "!!int")
	}

	var yamlBuf bytes.Buffer
	enc := yaml.NewEncoder(&yamlBuf)
	enc.SetIndent(2)
	if err := enc.Encode(mapping); err != nil {
		return nil, fmt.Errorf("task: encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("task: encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(yamlBuf.Bytes(), "\n"))
	buf.WriteString("\n---\n\n")
	buf.WriteString(strings.TrimLeft(t.Body, "\n"))
	return buf.Bytes(), nil
}

// documentMapping returns the top-level mapping node of doc, creating one if
// doc is empty or not a mapping.
func documentMapping(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		return doc.Content[0]
	}
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

func setScalar(mapping *yaml.Node, key, value, tag string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			v := mapping.Content[i+1]
			v.Kind = yaml.ScalarNode
			v.Tag = tag
			v.Value = value
			v.Style = 0
			v.Content = nil
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}
