package retry

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/driver/mock"
)

// fakeCapturer records every failure context it receives.
type fakeCapturer struct {
	mu    sync.Mutex
	calls []core.FailureContext
	ctxOK bool
}

func (c *fakeCapturer) Capture(ctx context.Context, fc core.FailureContext) core.FailureReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fc)
	c.ctxOK = ctx.Err() == nil
	r := core.NewFailureReport(fc, time.Now())
	r.ArtifactPath = "screenshots/fake.png"
	return r
}

// sleepRecorder replaces the backoff sleep.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestExecutor(p Policy) (*Executor, *fakeCapturer, *sleepRecorder) {
	c := &fakeCapturer{}
	s := &sleepRecorder{}
	return NewExecutor(WithPolicy(p), WithCapturer(c), WithSleep(s.sleep)), c, s
}

func TestDo_ExhaustsAfterMaxAttempts(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		e, capt, _ := newTestExecutor(Policy{MaxAttempts: n, Backoff: Fixed{Interval: ms}})

		calls := 0
		_, res, err := Do(context.Background(), e, Op{Target: "click login"}, func(context.Context, int) (int, error) {
			calls++
			return 0, core.ErrElementDetached
		})

		var ex *core.ExhaustedRetriesError
		if !errors.As(err, &ex) {
			t.Fatalf("n=%d: error = %T %v, want *core.ExhaustedRetriesError", n, err, err)
		}
		if len(ex.Report.Attempts) != n || calls != n {
			t.Errorf("n=%d: attempts = %d, calls = %d", n, len(ex.Report.Attempts), calls)
		}
		if ex.Report.Terminal != core.TerminalExhausted {
			t.Errorf("n=%d: Terminal = %s, want exhausted", n, ex.Report.Terminal)
		}
		if len(capt.calls) != 1 {
			t.Errorf("n=%d: capturer called %d times, want 1", n, len(capt.calls))
		}
		if res.Report == nil || res.Report.ArtifactPath != "screenshots/fake.png" {
			t.Errorf("n=%d: Result.Report = %+v", n, res.Report)
		}
		if !errors.Is(err, core.ErrElementDetached) {
			t.Errorf("n=%d: last attempt error not unwrapped", n)
		}
		for i, a := range ex.Report.Attempts {
			if a.Attempt != i+1 || a.Succeeded {
				t.Errorf("n=%d: attempt[%d] = %+v", n, i, a)
			}
		}
	}
}

func TestDo_NonRetryableStopsAfterOneAttempt(t *testing.T) {
	e, capt, sleeps := newTestExecutor(Policy{MaxAttempts: 5})

	calls := 0
	_, err := e.Execute(context.Background(), Op{Target: "fill username"}, func(context.Context, int) error {
		calls++
		return core.ErrTargetClosed
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	var ex *core.ExhaustedRetriesError
	if !errors.As(err, &ex) {
		t.Fatalf("error = %T %v", err, err)
	}
	if ex.Report.Terminal != core.TerminalNonRetryable || len(ex.Report.Attempts) != 1 {
		t.Errorf("Report = %+v", ex.Report)
	}
	if len(capt.calls) != 1 || len(sleeps.delays) != 0 {
		t.Errorf("captures = %d, sleeps = %v", len(capt.calls), sleeps.delays)
	}
}

func TestDo_SucceedsOnThirdAttemptWithSchedule(t *testing.T) {
	e, capt, sleeps := newTestExecutor(Policy{MaxAttempts: 3, Backoff: Schedule{0, 100 * ms, 200 * ms}})

	d := mock.New(mock.Config{})
	d.OnPerform = func(_ context.Context, _ core.Handle, _ core.Action, call int) (core.ActionResult, error) {
		if call < 3 {
			return core.ActionResult{}, core.ErrElementDetached
		}
		return core.ActionResult{Visible: true}, nil
	}

	got, res, err := Do(context.Background(), e, Op{Target: "click", Screen: d}, func(ctx context.Context, _ int) (core.ActionResult, error) {
		return d.Perform(ctx, &mock.Element{ID: "btn"}, core.Action{Kind: core.ActionClick})
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !got.Visible {
		t.Error("result of the successful attempt not returned")
	}
	if len(res.Attempts) != 3 || !res.Attempts[2].Succeeded {
		t.Errorf("Attempts = %+v", res.Attempts)
	}
	if res.Report != nil || len(capt.calls) != 0 || d.ScreenshotCalls() != 0 {
		t.Error("no failure report may be created on success")
	}
	if want := []time.Duration{100 * ms, 200 * ms}; !reflect.DeepEqual(sleeps.delays, want) {
		t.Errorf("sleeps = %v, want %v", sleeps.delays, want)
	}
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	capt := &fakeCapturer{}
	e := NewExecutor(WithPolicy(Policy{MaxAttempts: 5, Backoff: Fixed{Interval: time.Hour}}), WithCapturer(capt))

	ctx, cancel := context.WithTimeout(context.Background(), 20*ms)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, Op{Target: "click"}, func(context.Context, int) error {
		return core.ErrElementDetached
	})

	var ce *core.CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T %v, want *core.CancelledError", err, err)
	}
	var ex *core.ExhaustedRetriesError
	if errors.As(err, &ex) {
		t.Error("cancellation folded into ExhaustedRetriesError")
	}
	if ce.Attempt != 1 || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("CancelledError = %+v", ce)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff sleep was not interrupted")
	}
	if len(capt.calls) != 0 {
		t.Error("cancellation must not capture diagnostics")
	}
}

func TestDo_CancelledBetweenAttempts(t *testing.T) {
	e, capt, _ := newTestExecutor(Policy{MaxAttempts: 5, Backoff: Fixed{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := e.Execute(ctx, Op{Target: "type"}, func(context.Context, int) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return core.ErrActionTimeout
	})

	var ce *core.CancelledError
	if !errors.As(err, &ce) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want cancellation", err)
	}
	if calls != 2 || ce.Attempt != 2 {
		t.Errorf("calls = %d, Attempt = %d; want 2", calls, ce.Attempt)
	}
	if len(capt.calls) != 0 {
		t.Error("cancellation must not capture diagnostics")
	}
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	e, _, _ := newTestExecutor(Policy{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := e.Execute(ctx, Op{Target: "x"}, func(context.Context, int) error {
		called = true
		return nil
	})
	var ce *core.CancelledError
	if !errors.As(err, &ce) || called {
		t.Errorf("error = %v, called = %v", err, called)
	}
}

func TestDo_CaptureSurvivesExpiringContext(t *testing.T) {
	e, capt, _ := newTestExecutor(Policy{MaxAttempts: 1})
	_, err := e.Execute(context.Background(), Op{Target: "x"}, func(context.Context, int) error {
		return core.ErrElementDetached
	})
	if err == nil || !capt.ctxOK {
		t.Errorf("capture ctx usable = %v, err = %v", capt.ctxOK, err)
	}
}

func TestDo_UsesDefaultPolicyForZeroFields(t *testing.T) {
	e, _, sleeps := newTestExecutor(Policy{})
	calls := 0
	_, err := e.Execute(context.Background(), Op{Target: "x"}, func(context.Context, int) error {
		calls++
		return core.ErrElementDetached
	})
	if err == nil || calls != DefaultMaxAttempts {
		t.Errorf("calls = %d, want %d", calls, DefaultMaxAttempts)
	}
	if want := []time.Duration{250 * ms, 500 * ms}; !reflect.DeepEqual(sleeps.delays, want) {
		t.Errorf("sleeps = %v, want %v", sleeps.delays, want)
	}
}

func TestDo_InvalidPolicy(t *testing.T) {
	e, _, _ := newTestExecutor(Policy{})
	called := false
	_, err := e.Execute(context.Background(), Op{Policy: Policy{MaxAttempts: -2}}, func(context.Context, int) error {
		called = true
		return nil
	})
	if !errors.Is(err, core.ErrInvalidConfig) || called {
		t.Errorf("error = %v, called = %v", err, called)
	}
}

func TestDo_WithoutCapturerStillReports(t *testing.T) {
	e := NewExecutor(WithPolicy(Policy{MaxAttempts: 2, Backoff: Fixed{}}))
	_, res, err := Do(context.Background(), e, Op{Target: "api"}, func(context.Context, int) (string, error) {
		return "", core.ErrElementDetached
	})
	var ex *core.ExhaustedRetriesError
	if !errors.As(err, &ex) || res.Report == nil || len(res.Report.Attempts) != 2 {
		t.Errorf("err = %v, report = %+v", err, res.Report)
	}
}
