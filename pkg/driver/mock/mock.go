// Package mock provides a scripted in-memory driver for testing without a
// browser.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
)

// PNG is a minimal valid PNG (1x1 transparent pixel).
var PNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

// Element is an in-memory element. It implements core.Handle.
type Element struct {
	ID       string
	Text     string
	Hidden   bool
	Detached bool // Actions fail with core.ErrElementDetached
}

// Describe implements core.Handle.
func (e *Element) Describe() string {
	return "mock:" + e.ID
}

// Config configures mock driver behavior.
type Config struct {
	// Delay adds artificial latency to every call
	Delay time.Duration
	// ScreenshotErr makes Screenshot fail
	ScreenshotErr error
}

// Driver is a mock implementation of core.Driver for testing. Lookups are
// answered from Elements unless OnFind is set; actions are applied to the
// element unless OnPerform is set. The call argument of the hooks is 1-based.
type Driver struct {
	Config Config

	OnFind       func(ctx context.Context, q core.Query, scope core.Handle, call int) ([]core.Handle, error)
	OnPerform    func(ctx context.Context, h core.Handle, a core.Action, call int) (core.ActionResult, error)
	OnScreenshot func(ctx context.Context) ([]byte, error)
	OnGoto       func(ctx context.Context, url string, call int) error

	mu          sync.Mutex
	elements    map[string][]*Element
	finds       int
	performs    int
	screenshots int
	performed   []core.Action
	visited     []string
	gotos       int
	reloads     int
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	return &Driver{Config: cfg, elements: make(map[string][]*Element)}
}

// Set registers the elements that q matches.
func (d *Driver) Set(q core.Query, els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[q.String()] = els
}

// FindCandidates implements core.Driver.
func (d *Driver) FindCandidates(ctx context.Context, q core.Query, scope core.Handle) ([]core.Handle, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.finds++
	call := d.finds
	els := d.elements[q.String()]
	d.mu.Unlock()

	if d.OnFind != nil {
		return d.OnFind(ctx, q, scope, call)
	}
	handles := make([]core.Handle, len(els))
	for i, e := range els {
		handles[i] = e
	}
	return handles, nil
}

// Perform implements core.Driver.
func (d *Driver) Perform(ctx context.Context, h core.Handle, a core.Action) (core.ActionResult, error) {
	if err := d.wait(ctx); err != nil {
		return core.ActionResult{}, err
	}
	d.mu.Lock()
	d.performs++
	call := d.performs
	d.performed = append(d.performed, a)
	d.mu.Unlock()

	if d.OnPerform != nil {
		return d.OnPerform(ctx, h, a, call)
	}

	el, ok := h.(*Element)
	if !ok {
		return core.ActionResult{}, core.ErrActionFailed.WithMessage(fmt.Sprintf("foreign handle %s", h.Describe()))
	}
	if el.Detached {
		return core.ActionResult{}, core.ErrElementDetached
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch a.Kind {
	case core.ActionClick, core.ActionHover:
		if el.Hidden && !a.Force {
			return core.ActionResult{}, core.ErrActionTimeout.WithMessage(el.Describe() + " is not visible")
		}
	case core.ActionFill:
		el.Text = a.Text
	case core.ActionType:
		el.Text += a.Text
	case core.ActionText:
		return core.ActionResult{Text: el.Text, Visible: !el.Hidden}, nil
	case core.ActionVisible:
		return core.ActionResult{Visible: !el.Hidden}, nil
	default:
		return core.ActionResult{}, core.ErrUnsupportedAction.WithMessage(fmt.Sprintf("mock cannot %s", a.Kind))
	}
	return core.ActionResult{Visible: !el.Hidden}, nil
}

// Screenshot returns a mock PNG image.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	d.screenshots++
	d.mu.Unlock()

	if d.OnScreenshot != nil {
		return d.OnScreenshot(ctx)
	}
	if d.Config.ScreenshotErr != nil {
		return nil, d.Config.ScreenshotErr
	}
	return append([]byte(nil), PNG...), nil
}

// Goto records a navigation. With OnGoto set, a failed navigation is not
// recorded.
func (d *Driver) Goto(ctx context.Context, url string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.gotos++
	call := d.gotos
	d.mu.Unlock()

	if d.OnGoto != nil {
		if err := d.OnGoto(ctx, url, call); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited = append(d.visited, url)
	return nil
}

// Reload counts a page reload.
func (d *Driver) Reload(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
	return nil
}

// Reloads returns the number of Reload calls.
func (d *Driver) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

// Visited returns the URLs passed to Goto.
func (d *Driver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}

// FindCalls returns the number of FindCandidates calls.
func (d *Driver) FindCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds
}

// PerformCalls returns the number of Perform calls.
func (d *Driver) PerformCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.performs
}

// ScreenshotCalls returns the number of Screenshot calls.
func (d *Driver) ScreenshotCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshots
}

// Performed returns the actions received, in order.
func (d *Driver) Performed() []core.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Action(nil), d.performed...)
}

func (d *Driver) wait(ctx context.Context) error {
	if d.Config.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.Config.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ core.Driver = (*Driver)(nil)
