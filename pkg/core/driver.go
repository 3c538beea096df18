package core

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Driver defines the capabilities the harness consumes from an automation
// provider (Playwright, a mock, ...). The harness handles resolution, retry and
// diagnostics; the Driver only finds elements and performs single actions.
type Driver interface {
	ScreenshotSource

	// FindCandidates returns every element currently matching q inside scope.
	// A nil scope means the whole page. An empty result is not an error.
	FindCandidates(ctx context.Context, q Query, scope Handle) ([]Handle, error)

	// Perform executes one action against a resolved handle
	Perform(ctx context.Context, h Handle, a Action) (ActionResult, error)
}

// ScreenshotSource captures the current screen as PNG
type ScreenshotSource interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Handle is an opaque, short-lived binding to one live element. Handles are
// produced per attempt and must not be reused across attempts.
type Handle interface {
	Describe() string
}

// QueryKind selects the strategy used to locate an element
type QueryKind int

const (
	QueryRole     QueryKind = iota + 1 // ARIA role plus accessible name
	QueryLabel                         // Associated label text
	QueryTestAttr                      // data-* test attribute
	QueryText                          // Visible text
	QuerySelector                      // Raw CSS/XPath selector
)

// String returns the string representation of QueryKind
func (k QueryKind) String() string {
	switch k {
	case QueryRole:
		return "role"
	case QueryLabel:
		return "label"
	case QueryTestAttr:
		return "testattr"
	case QueryText:
		return "text"
	case QuerySelector:
		return "css"
	default:
		return "unknown"
	}
}

// Query is the provider-facing form of an element reference.
type Query struct {
	Kind     QueryKind
	Role     string // QueryRole
	Name     string // QueryRole accessible name (optional)
	Text     string // QueryLabel, QueryText
	Key      string // QueryTestAttr attribute name
	Value    string // QueryTestAttr attribute value
	Selector string // QuerySelector
	Exact    bool   // Exact text matching for role name, label and text
}

// String returns a quoted description like role=button[name="Login"].
func (q Query) String() string {
	switch q.Kind {
	case QueryRole:
		if q.Name == "" {
			return "role=" + q.Role
		}
		return fmt.Sprintf("role=%s[name=%s]", q.Role, strconv.Quote(q.Name))
	case QueryLabel:
		return "label=" + strconv.Quote(q.Text)
	case QueryTestAttr:
		return fmt.Sprintf("[%s=%s]", q.Key, strconv.Quote(q.Value))
	case QueryText:
		return "text=" + strconv.Quote(q.Text)
	case QuerySelector:
		return "css=" + q.Selector
	default:
		return ""
	}
}

// ActionKind enumerates the interactions a Driver performs
type ActionKind string

const (
	ActionClick   ActionKind = "click"
	ActionFill    ActionKind = "fill"
	ActionType    ActionKind = "type"
	ActionText    ActionKind = "text"
	ActionVisible ActionKind = "visible"
	ActionHover   ActionKind = "hover"
)

// Action describes a single interaction with a resolved element
type Action struct {
	Kind  ActionKind    `json:"kind"`
	Text  string        `json:"text,omitempty"`  // fill, type
	Clear bool          `json:"clear,omitempty"` // fill: clear before filling
	Delay time.Duration `json:"delay,omitempty"` // type: per-key delay
	Force bool          `json:"force,omitempty"` // click: skip actionability checks
}

// ActionResult carries data returned by read-style actions
type ActionResult struct {
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// Response is the read side of an HTTP response supplied by the provider.
// playwright.APIResponse satisfies it directly.
type Response interface {
	Status() int
	Headers() map[string]string
	Body() ([]byte, error)
}
