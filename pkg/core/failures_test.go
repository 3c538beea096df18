package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestResolutionError_RetainsEveryStrategy(t *testing.T) {
	err := &ResolutionError{
		Target: "login button",
		Waited: 2 * time.Second,
		Tried: []StrategyError{
			{Strategy: `role=button[name="Login"]`, Err: ErrElementNotFound},
			{Strategy: "css=#login-button", Err: ErrElementNotFound.WithMessage("selector matched nothing")},
		},
	}

	msg := err.Error()
	for _, want := range []string{"login button", "2s", `[1] role=button[name="Login"]`, "[2] css=#login-button", "selector matched nothing"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, should contain %q", msg, want)
		}
	}
	if !errors.Is(err, ErrElementNotFound) {
		t.Error("errors.Is() should reach the strategy errors")
	}
	if got := len(err.Unwrap()); got != 2 {
		t.Errorf("len(Unwrap()) = %d, want 2", got)
	}
}

func TestAmbiguousMatchError(t *testing.T) {
	err := &AmbiguousMatchError{
		Target:   "row",
		Strategy: "css=.row",
		Count:    3,
		Tried:    []StrategyError{{Strategy: "css=.row", Candidates: 3, Err: ErrAmbiguousMatch}},
	}

	if !strings.Contains(err.Error(), "css=.row matched 3 elements") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Error("errors.Is(err, ErrAmbiguousMatch) = false")
	}
	if errors.Is(err, ErrElementNotFound) {
		t.Error("errors.Is(err, ErrElementNotFound) = true")
	}
}

func TestStrategyErrorsSkipsNil(t *testing.T) {
	errs := strategyErrors([]StrategyError{{Strategy: "a"}, {Strategy: "b", Err: ErrElementNotFound}})
	if len(errs) != 1 {
		t.Errorf("len = %d, want 1", len(errs))
	}
}

func TestExhaustedRetriesError(t *testing.T) {
	last := ErrElementDetached.WithCause(errors.New("node gone"))
	err := &ExhaustedRetriesError{Report: FailureReport{
		Target:   "click submit",
		Terminal: TerminalExhausted,
		Attempts: []AttemptOutcome{
			{Attempt: 1, Err: ErrActionTimeout, Elapsed: 10 * time.Millisecond},
			{Attempt: 2, Err: last, Elapsed: 12 * time.Millisecond},
		},
		ArtifactPath: "screenshots/x.png",
	}}

	if !errors.Is(err, ErrElementDetached) {
		t.Error("errors.Is() should reach the final attempt error")
	}
	if errors.Is(err, ErrActionTimeout) {
		t.Error("only the final attempt error should be unwrapped")
	}

	msg := err.Error()
	for _, want := range []string{"click submit failed after 2 attempt(s)", "attempt 1", "attempt 2", "node gone", "screenshot: screenshots/x.png"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, should contain %q", msg, want)
		}
	}
}

func TestFailureReport_SummaryNonRetryable(t *testing.T) {
	r := FailureReport{
		Target:   "fill username",
		Terminal: TerminalNonRetryable,
		Attempts: []AttemptOutcome{{Attempt: 1, Err: ErrTargetClosed}},
		LogPath:  "logs/test_run.log",
	}

	msg := r.Summary()
	if !strings.Contains(msg, "non-retryable error after 1 attempt(s)") {
		t.Errorf("Summary() = %q", msg)
	}
	if !strings.Contains(msg, "log: logs/test_run.log") {
		t.Errorf("Summary() = %q, missing log path", msg)
	}
}

func TestFailureReport_SummaryIndentsMultilineErrors(t *testing.T) {
	r := FailureReport{
		Target:   "t",
		Attempts: []AttemptOutcome{{Attempt: 1, Err: errors.New("first\nsecond")}},
	}
	if !strings.Contains(r.Summary(), "first\n    second") {
		t.Errorf("Summary() = %q, want indented continuation", r.Summary())
	}
}

func TestNewFailureReport_CopiesAttempts(t *testing.T) {
	attempts := []AttemptOutcome{{Attempt: 1, Err: ErrActionFailed}}
	fc := FailureContext{Target: "t", Attempts: attempts, Terminal: TerminalExhausted}
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	r := NewFailureReport(fc, ts)
	attempts[0].Attempt = 99

	if r.Attempts[0].Attempt != 1 {
		t.Error("NewFailureReport() shares the attempts slice with the caller")
	}
	if !r.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, ts)
	}
	if r.LastError() != ErrActionFailed {
		t.Errorf("LastError() = %v", r.LastError())
	}
	if fc.LastError() != ErrActionFailed {
		t.Errorf("FailureContext.LastError() = %v", fc.LastError())
	}
	if (FailureContext{}).LastError() != nil {
		t.Error("empty context should have no last error")
	}
}

func TestCancelledError(t *testing.T) {
	err := &CancelledError{Target: "click", Attempt: 2, Cause: context.DeadlineExceeded}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is() should reach the context error")
	}
	if !strings.Contains(err.Error(), "click cancelled after 2 attempt(s)") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestValidationFailure_Error(t *testing.T) {
	cause := errors.New("invalid character 'p'")
	f := &ValidationFailure{
		Reason:      ReasonMalformedBody,
		StatusCode:  200,
		URL:         "https://airportgap.com/api/airports",
		BodyPreview: "plain",
		Cause:       cause,
	}

	msg := f.Error()
	for _, want := range []string{"(malformed_body)", "status 200", "from https://airportgap.com/api/airports", "invalid character", `body: "plain"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, should contain %q", msg, want)
		}
	}
	if !errors.Is(f, cause) {
		t.Error("errors.Is() should reach the decode error")
	}

	missing := &ValidationFailure{Reason: ReasonMissingField, StatusCode: 200, Path: "data.0.id"}
	if !strings.Contains(missing.Error(), `field "data.0.id"`) {
		t.Errorf("Error() = %q, missing field path", missing.Error())
	}
}
