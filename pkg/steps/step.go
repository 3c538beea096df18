// Package steps handles parsing and running YAML step files: sequences of UI
// actions and assertions on located elements.
package steps

import (
	"fmt"

	"github.com/devicelab-dev/harness/pkg/locator"
)

// Kind represents the type of step.
type Kind string

// Step kinds.
const (
	// Navigation & Interaction
	KindGoto   Kind = "goto"
	KindReload Kind = "reload"
	KindClick  Kind = "click"
	KindFill   Kind = "fill"
	KindType   Kind = "type"
	KindHover  Kind = "hover"

	// Diagnostics
	KindScreenshot Kind = "screenshot"

	// Assertions
	KindAssertText       Kind = "assertText"
	KindAssertVisible    Kind = "assertVisible"
	KindAssertNotVisible Kind = "assertNotVisible"
	KindAssertCount      Kind = "assertCount"
)

var kinds = map[Kind]bool{
	KindGoto:             true,
	KindReload:           true,
	KindScreenshot:       true,
	KindClick:            true,
	KindFill:             true,
	KindType:             true,
	KindHover:            true,
	KindAssertText:       true,
	KindAssertVisible:    true,
	KindAssertNotVisible: true,
	KindAssertCount:      true,
}

// Step is one parsed step.
type Step struct {
	Kind   Kind
	Line   int // Source line, for error messages
	URL    string
	Name   string // screenshot
	Target locator.Chain
	Text   string // fill, type, assertText
	Count  int    // assertCount
	Force  bool   // click
}

// Describe returns a human-readable description of the step.
func (s Step) Describe() string {
	switch s.Kind {
	case KindGoto:
		return fmt.Sprintf("goto %s", s.URL)
	case KindReload:
		return "reload"
	case KindScreenshot:
		return fmt.Sprintf("screenshot %s", s.Name)
	case KindFill, KindType, KindAssertText:
		return fmt.Sprintf("%s %s %q", s.Kind, s.Target, s.Text)
	case KindAssertCount:
		return fmt.Sprintf("%s %s == %d", s.Kind, s.Target, s.Count)
	}
	return fmt.Sprintf("%s %s", s.Kind, s.Target)
}

// File is a parsed steps file.
type File struct {
	Path  string
	Name  string
	Steps []Step
}

// Validate checks the fields s.Kind needs.
func (s Step) Validate() error {
	if !kinds[s.Kind] {
		return fmt.Errorf("unknown step type: %s", s.Kind)
	}
	if s.Kind == KindGoto {
		if s.URL == "" {
			return fmt.Errorf("goto requires a URL")
		}
		return nil
	}
	switch s.Kind {
	case KindReload:
		return nil
	case KindScreenshot:
		if s.Name == "" {
			return fmt.Errorf("screenshot requires a name")
		}
		return nil
	}
	if len(s.Target) == 0 {
		return fmt.Errorf("%s requires a target", s.Kind)
	}
	if s.Kind == KindAssertCount {
		if s.Count < 0 {
			return fmt.Errorf("assertCount requires a non-negative count")
		}
		if len(s.Target) != 1 {
			return fmt.Errorf("assertCount takes a single reference, got %d", len(s.Target))
		}
	}
	return nil
}
