package steps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/harness/pkg/locator"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single steps file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided steps file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses steps YAML: a sequence whose entries are single-key mappings
// such as "click: {role: button, name: Login}".
func Parse(data []byte, sourcePath string) (*File, error) {
	f := &File{
		Path: sourcePath,
		Name: strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)),
	}

	var rawSteps []yaml.Node
	if err := yaml.Unmarshal(data, &rawSteps); err != nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}
	if len(rawSteps) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty steps file"}
	}

	for i := range rawSteps {
		step, err := parseStep(&rawSteps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		f.Steps = append(f.Steps, step)
	}
	return f, nil
}

// params is the long form of a step value.
type params struct {
	Target locator.Chain `yaml:"target"`
	Text   *string       `yaml:"text"`
	Count  *int          `yaml:"count"`
	Force  bool          `yaml:"force"`
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	fail := func(line int, format string, args ...interface{}) (Step, error) {
		return Step{}, &ParseError{Path: sourcePath, Line: line, Message: fmt.Sprintf(format, args...)}
	}

	// Steps without parameters may be written bare: "- reload".
	if node.Kind == yaml.ScalarNode && Kind(node.Value) == KindReload {
		return Step{Kind: KindReload, Line: node.Line}, nil
	}
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fail(node.Line, "step must be a mapping with exactly one key")
	}
	keyNode, valueNode := node.Content[0], node.Content[1]
	kind := Kind(keyNode.Value)
	if !kinds[kind] {
		return fail(keyNode.Line, "unknown step type: %s", keyNode.Value)
	}

	step := Step{Kind: kind, Line: keyNode.Line}
	switch kind {
	case KindGoto:
		if valueNode.Kind != yaml.ScalarNode || valueNode.Value == "" {
			return fail(valueNode.Line, "goto requires a URL")
		}
		step.URL = valueNode.Value
		return step, nil
	case KindReload:
		return step, nil
	case KindScreenshot:
		if valueNode.Kind != yaml.ScalarNode || valueNode.Value == "" {
			return fail(valueNode.Line, "screenshot requires a name")
		}
		step.Name = valueNode.Value
		return step, nil
	}

	var p params
	if valueNode.Kind == yaml.MappingNode && hasKey(valueNode, "target") {
		if err := valueNode.Decode(&p); err != nil {
			return fail(valueNode.Line, "%s: %v", kind, err)
		}
	} else if err := valueNode.Decode(&p.Target); err != nil {
		return fail(valueNode.Line, "%s: %v", kind, err)
	}
	step.Target = p.Target
	step.Force = p.Force

	switch kind {
	case KindFill, KindType, KindAssertText:
		if p.Text == nil {
			return fail(valueNode.Line, "%s requires text", kind)
		}
		step.Text = *p.Text
	case KindAssertCount:
		if p.Count == nil {
			return fail(valueNode.Line, "assertCount requires a non-negative count")
		}
		step.Count = *p.Count
	}
	if err := step.Validate(); err != nil {
		return fail(valueNode.Line, "%v", err)
	}
	return step, nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}
