// Package retry runs single interactions under a bounded, deterministic
// retry policy and hands terminal failures to a diagnostic capturer.
package retry

import (
	"context"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
	"github.com/devicelab-dev/harness/pkg/logger"
	"github.com/devicelab-dev/harness/pkg/metrics"
)

// Capturer records diagnostics for a terminal failure. It must not fail.
type Capturer interface {
	Capture(ctx context.Context, fc core.FailureContext) core.FailureReport
}

// Op describes one retried operation.
type Op struct {
	Target string                // Human description, e.g. the locator chain
	Policy Policy                // Zero fields take the executor's defaults
	Screen core.ScreenshotSource // Captured on terminal failure; nil for API calls
}

// Result is the attempt history of one operation. Report is set only after a
// terminal failure.
type Result struct {
	Attempts []core.AttemptOutcome
	Report   *core.FailureReport
}

// Executor runs operations. It holds no per-operation state and is safe for
// concurrent use when its capturer is.
type Executor struct {
	policy   Policy
	capturer Capturer
	log      *logger.Logger
	metrics  *metrics.Recorder
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the default policy. Zero fields keep DefaultPolicy values.
func WithPolicy(p Policy) Option {
	return func(e *Executor) { e.policy = p.merge(DefaultPolicy()) }
}

// WithCapturer sets the diagnostic capturer.
func WithCapturer(c Capturer) Option {
	return func(e *Executor) { e.capturer = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSleep replaces the backoff sleep. The function must return ctx.Err()
// when ctx ends first.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor creates an Executor using DefaultPolicy unless overridden.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		policy: DefaultPolicy(),
		log:    logger.Nop(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Policy returns the executor's default policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs fn under op's policy.
func (e *Executor) Execute(ctx context.Context, op Op, fn func(ctx context.Context, attempt int) error) (Result, error) {
	_, res, err := Do(ctx, e, op, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return res, err
}

// Do runs fn until it succeeds, fails with an error the policy will not
// retry, or runs out of attempts. fn must re-resolve any element handle it
// needs on every attempt.
//
// Terminal failures are passed to the capturer and returned as
// *core.ExhaustedRetriesError. If ctx ends before or between attempts, or
// during an attempt, the error is *core.CancelledError and nothing is
// captured.
func Do[T any](ctx context.Context, e *Executor, op Op, fn func(ctx context.Context, attempt int) (T, error)) (T, Result, error) {
	var zero T
	var res Result

	policy := op.Policy.merge(e.policy)
	if err := policy.Validate(); err != nil {
		return zero, res, err
	}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if d := policy.Backoff.Delay(attempt); d > 0 {
				e.log.Debug("backing off", "target", op.Target, "attempt", attempt, "delay", d)
				if err := e.sleep(ctx, d); err != nil {
					return zero, res, e.cancelled(op, res, err)
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, res, e.cancelled(op, res, err)
		}

		start := e.now()
		v, err := fn(ctx, attempt)
		elapsed := e.now().Sub(start)

		res.Attempts = append(res.Attempts, core.AttemptOutcome{
			Attempt:   attempt,
			Succeeded: err == nil,
			Err:       err,
			Elapsed:   elapsed,
		})
		e.metrics.Attempt(err == nil, elapsed)

		if err == nil {
			if attempt > 1 {
				e.log.Info("succeeded after retry", "target", op.Target, "attempt", attempt)
			}
			return v, res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, res, e.cancelled(op, res, ctxErr)
		}

		switch {
		case !policy.Retryable(err):
			e.log.Warn("attempt failed, not retryable", "target", op.Target, "attempt", attempt, "error", err)
			return zero, res, e.terminal(ctx, op, &res, core.TerminalNonRetryable)
		case attempt >= policy.MaxAttempts:
			e.log.Warn("attempt failed, no attempts left", "target", op.Target, "attempt", attempt, "error", err)
			return zero, res, e.terminal(ctx, op, &res, core.TerminalExhausted)
		default:
			e.log.Warn("attempt failed, retrying", "target", op.Target, "attempt", attempt, "max", policy.MaxAttempts, "error", err)
		}
	}
}

func (e *Executor) terminal(ctx context.Context, op Op, res *Result, reason core.TerminalReason) error {
	fc := core.FailureContext{
		Target:   op.Target,
		Attempts: res.Attempts,
		Terminal: reason,
		Screen:   op.Screen,
	}

	var report core.FailureReport
	if e.capturer != nil {
		// Diagnostics are still written when the caller's deadline is about to fire.
		report = e.capturer.Capture(context.WithoutCancel(ctx), fc)
	} else {
		report = core.NewFailureReport(fc, e.now().UTC())
	}

	res.Report = &report
	e.metrics.Terminal(reason.String())
	return &core.ExhaustedRetriesError{Report: report}
}

func (e *Executor) cancelled(op Op, res Result, cause error) error {
	e.log.Warn("operation cancelled", "target", op.Target, "attempts", len(res.Attempts), "error", cause)
	return &core.CancelledError{Target: op.Target, Attempt: len(res.Attempts), Cause: cause}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
