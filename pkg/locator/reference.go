// Package locator describes UI elements semantically and resolves ordered
// fallback chains of descriptions to live element handles.
package locator

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/harness/pkg/core"
)

// DefaultTestAttr is the attribute used by TestID.
const DefaultTestAttr = "data-test"

// Reference is an immutable description of how to find one element.
type Reference struct {
	q core.Query
}

// Role matches by ARIA role and, when name is not empty, accessible name.
func Role(role, name string) Reference {
	return Reference{q: core.Query{Kind: core.QueryRole, Role: role, Name: name}}
}

// Label matches form controls by their associated label text.
func Label(text string) Reference {
	return Reference{q: core.Query{Kind: core.QueryLabel, Text: text}}
}

// TestAttr matches elements whose attribute key equals value.
func TestAttr(key, value string) Reference {
	return Reference{q: core.Query{Kind: core.QueryTestAttr, Key: key, Value: value}}
}

// TestID matches the data-test attribute.
func TestID(id string) Reference {
	return TestAttr(DefaultTestAttr, id)
}

// Text matches by visible text.
func Text(text string) Reference {
	return Reference{q: core.Query{Kind: core.QueryText, Text: text}}
}

// CSS matches by a raw provider selector.
func CSS(selector string) Reference {
	return Reference{q: core.Query{Kind: core.QuerySelector, Selector: selector}}
}

// Exact returns a copy that requires exact, case-sensitive text matching.
func (r Reference) Exact() Reference {
	r.q.Exact = true
	return r
}

// Query returns the provider-facing form.
func (r Reference) Query() core.Query {
	return r.q
}

// Kind returns the strategy kind.
func (r Reference) Kind() core.QueryKind {
	return r.q.Kind
}

// IsZero reports whether r describes nothing.
func (r Reference) IsZero() bool {
	return r.q.Kind == 0
}

func (r Reference) String() string {
	return r.q.String()
}

// referenceRaw is the YAML mapping form of a Reference.
type referenceRaw struct {
	Role   string `yaml:"role"`
	Name   string `yaml:"name"`
	Label  string `yaml:"label"`
	TestID string `yaml:"testId"`
	Attr   string `yaml:"attr"`
	Value  string `yaml:"value"`
	Text   string `yaml:"text"`
	CSS    string `yaml:"css"`
	Exact  bool   `yaml:"exact"`
}

// UnmarshalYAML accepts either a scalar, taken as a raw selector, or a mapping
// naming exactly one of role, label, testId, attr, text or css.
func (r *Reference) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if strings.TrimSpace(node.Value) == "" {
			return fmt.Errorf("line %d: empty selector", node.Line)
		}
		*r = CSS(node.Value)
		return nil
	}

	var raw referenceRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}

	var refs []Reference
	if raw.Role != "" {
		refs = append(refs, Role(raw.Role, raw.Name))
	}
	if raw.Label != "" {
		refs = append(refs, Label(raw.Label))
	}
	if raw.TestID != "" {
		refs = append(refs, TestID(raw.TestID))
	}
	if raw.Attr != "" {
		refs = append(refs, TestAttr(raw.Attr, raw.Value))
	}
	if raw.Text != "" {
		refs = append(refs, Text(raw.Text))
	}
	if raw.CSS != "" {
		refs = append(refs, CSS(raw.CSS))
	}

	switch len(refs) {
	case 0:
		return fmt.Errorf("line %d: element reference needs one of role, label, testId, attr, text, css", node.Line)
	case 1:
	default:
		return fmt.Errorf("line %d: element reference must name exactly one strategy, got %d", node.Line, len(refs))
	}

	*r = refs[0]
	if raw.Exact {
		*r = r.Exact()
	}
	return nil
}

// Parse reads the compact command-line form:
//
//	role=button:Login   label=Username   testid=login-button
//	attr=data-qa:submit text=Products    css=#user-name
//
// Anything without a known prefix is a raw selector.
func Parse(spec string) (Reference, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Reference{}, fmt.Errorf("empty element reference")
	}

	kind, rest, ok := strings.Cut(spec, "=")
	if !ok {
		return CSS(spec), nil
	}
	switch strings.ToLower(kind) {
	case "role":
		role, name, _ := strings.Cut(rest, ":")
		if role == "" {
			return Reference{}, fmt.Errorf("%q: role is empty", spec)
		}
		return Role(role, name), nil
	case "label":
		return Label(rest), nil
	case "testid":
		return TestID(rest), nil
	case "attr":
		key, value, found := strings.Cut(rest, ":")
		if !found || key == "" {
			return Reference{}, fmt.Errorf("%q: want attr=<name>:<value>", spec)
		}
		return TestAttr(key, value), nil
	case "text":
		return Text(rest), nil
	case "css":
		return CSS(rest), nil
	default:
		return CSS(spec), nil
	}
}

// Chain is an ordered list of fallback references for one logical element.
type Chain []Reference

// NewChain builds a chain from refs in priority order.
func NewChain(refs ...Reference) Chain {
	return Chain(refs)
}

// String joins the chain's references with " || ".
func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, r := range c {
		parts[i] = r.String()
	}
	return strings.Join(parts, " || ")
}

// UnmarshalYAML accepts a sequence of references or a single reference.
func (c *Chain) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var refs []Reference
		if err := node.Decode(&refs); err != nil {
			return err
		}
		*c = refs
		return nil
	}
	var r Reference
	if err := node.Decode(&r); err != nil {
		return err
	}
	*c = Chain{r}
	return nil
}
