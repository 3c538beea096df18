package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/driver/mock"
	"github.com/devicelab-dev/harness/pkg/interact"
	"github.com/devicelab-dev/harness/pkg/locator"
	"github.com/devicelab-dev/harness/pkg/retry"
)

type captureCounter struct{ n int }

func (c *captureCounter) Capture(_ context.Context, fc core.FailureContext) core.FailureReport {
	c.n++
	return core.NewFailureReport(fc, time.Now())
}

func newRunner(d *mock.Driver, nav Navigator) *Runner {
	return newCapturingRunner(d, nav, nil)
}

func newCapturingRunner(d *mock.Driver, nav Navigator, c retry.Capturer) *Runner {
	opts := []retry.Option{
		retry.WithPolicy(retry.Policy{MaxAttempts: 2, Backoff: retry.Fixed{Interval: time.Millisecond}}),
		retry.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	}
	if c != nil {
		opts = append(opts, retry.WithCapturer(c))
	}
	exec := retry.NewExecutor(opts...)
	ui := interact.New(d, locator.NewResolver(d, locator.Options{}), exec)
	return NewRunner(ui, nav, nil)
}

func saucedemo() *mock.Driver {
	d := mock.New(mock.Config{})
	d.Set(locator.Label("Username").Query(), &mock.Element{ID: "user"})
	d.Set(locator.TestID("password").Query(), &mock.Element{ID: "password"})
	d.Set(locator.Role("button", "Login").Query(), &mock.Element{ID: "login"})
	d.Set(locator.CSS(".title").Query(), &mock.Element{ID: "title", Text: "Products"})
	d.Set(locator.CSS(".inventory_item").Query(),
		&mock.Element{ID: "i1"}, &mock.Element{ID: "i2"}, &mock.Element{ID: "i3"},
		&mock.Element{ID: "i4"}, &mock.Element{ID: "i5"}, &mock.Element{ID: "i6"})
	d.Set(locator.CSS("[data-test=error]").Query(), &mock.Element{ID: "error", Hidden: true})
	d.Set(locator.CSS("#react-burger-menu-btn").Query(), &mock.Element{ID: "menu", Hidden: true})
	return d
}

func TestRunner_RunsAllSteps(t *testing.T) {
	f, err := Parse([]byte(loginSteps), "login.yaml")
	if err != nil {
		t.Fatal(err)
	}
	d := saucedemo()
	r := newRunner(d, d)

	var results []StepResult
	r.OnStep = func(res StepResult) { results = append(results, res) }

	if err := r.Run(context.Background(), f); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != len(f.Steps) {
		t.Errorf("OnStep called %d times, want %d", len(results), len(f.Steps))
	}
	if v := d.Visited(); len(v) != 1 || v[0] != "/" {
		t.Errorf("Visited() = %v", v)
	}

	var fills []string
	for _, a := range d.Performed() {
		if a.Kind == core.ActionFill {
			fills = append(fills, a.Text)
		}
	}
	if len(fills) != 2 || fills[0] != "standard_user" || fills[1] != "secret_sauce" {
		t.Errorf("fills = %v", fills)
	}
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	content := `
- click: "#missing"
- click: {role: button, name: Login}
`
	f, err := Parse([]byte(content), "broken.yaml")
	if err != nil {
		t.Fatal(err)
	}
	d := saucedemo()

	err = newRunner(d, d).Run(context.Background(), f)

	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StepError", err)
	}
	if se.Index != 0 || se.Step.Line != 2 {
		t.Errorf("failed step = %d (line %d)", se.Index, se.Step.Line)
	}
	var exhausted *core.ExhaustedRetriesError
	if !errors.As(err, &exhausted) || len(exhausted.Report.Attempts) != 2 {
		t.Errorf("error = %v, want exhausted after 2 attempts", err)
	}
	if d.PerformCalls() != 0 {
		t.Error("later steps must not run")
	}
}

func TestRunner_GotoWithoutNavigator(t *testing.T) {
	f := &File{Path: "nav.yaml", Steps: []Step{{Kind: KindGoto, URL: "/", Line: 1}}}

	err := newRunner(saucedemo(), nil).Run(context.Background(), f)
	if !errors.Is(err, core.ErrUnsupportedAction) {
		t.Errorf("error = %v, want unsupported_action", err)
	}
}

func TestRunner_FailingGotoIsRetriedAndCapturedOnce(t *testing.T) {
	f := &File{Path: "nav.yaml", Steps: []Step{{Kind: KindGoto, URL: "/inventory.html", Line: 1}}}
	d := saucedemo()
	d.OnGoto = func(context.Context, string, int) error { return core.ErrActionTimeout }
	capturer := &captureCounter{}

	err := newCapturingRunner(d, d, capturer).Run(context.Background(), f)

	var se *StepError
	if !errors.As(err, &se) || se.Step.Kind != KindGoto {
		t.Fatalf("error = %v, want a goto StepError", err)
	}
	var exhausted *core.ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *core.ExhaustedRetriesError", err)
	}
	if len(exhausted.Report.Attempts) != 2 || exhausted.Report.Target != "goto /inventory.html" {
		t.Errorf("report = %+v", exhausted.Report)
	}
	if capturer.n != 1 {
		t.Errorf("captures = %d, want 1", capturer.n)
	}
}

func TestRunner_ReloadAndScreenshot(t *testing.T) {
	f := &File{Path: "diag.yaml", Steps: []Step{
		{Kind: KindReload, Line: 1},
		{Kind: KindScreenshot, Name: "after reload", Line: 2},
	}}
	d := saucedemo()
	r := newRunner(d, d)

	var shots []string
	r.Snapshot = func(_ context.Context, name string) (string, error) {
		shots = append(shots, name)
		return "shots/" + name + ".png", nil
	}

	if err := r.Run(context.Background(), f); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if d.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", d.Reloads())
	}
	if len(shots) != 1 || shots[0] != "after reload" {
		t.Errorf("snapshots = %v", shots)
	}
}

func TestRunner_ScreenshotWithoutSnapshot(t *testing.T) {
	f := &File{Path: "diag.yaml", Steps: []Step{{Kind: KindScreenshot, Name: "x", Line: 1}}}

	err := newRunner(saucedemo(), nil).Run(context.Background(), f)
	if !errors.Is(err, core.ErrUnsupportedAction) {
		t.Errorf("error = %v, want unsupported_action", err)
	}
}
