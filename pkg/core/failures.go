package core

import (
	"fmt"
	"strings"
	"time"
)

// StrategyError records why one strategy of a locator chain did not resolve.
type StrategyError struct {
	Strategy   string // Description of the reference, e.g. role=button[name="Login"]
	Candidates int    // Number of elements the strategy matched
	Err        error
}

func (s StrategyError) String() string {
	return fmt.Sprintf("%s: %v", s.Strategy, s.Err)
}

// ResolutionError is returned when no strategy of a chain produced an element
// within the wait window. Every strategy's error is retained.
type ResolutionError struct {
	Target string
	Waited time.Duration
	Tried  []StrategyError
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no element resolved for %s after %s", e.Target, e.Waited.Round(time.Millisecond))
	writeStrategies(&b, e.Tried)
	return b.String()
}

// Unwrap exposes each strategy error to errors.Is/As.
func (e *ResolutionError) Unwrap() []error {
	return strategyErrors(e.Tried)
}

// AmbiguousMatchError is returned in strict mode when a strategy matched more
// than one element and no other strategy resolved uniquely.
type AmbiguousMatchError struct {
	Target   string
	Strategy string
	Count    int
	Tried    []StrategyError
}

func (e *AmbiguousMatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous match for %s: %s matched %d elements", e.Target, e.Strategy, e.Count)
	writeStrategies(&b, e.Tried)
	return b.String()
}

// Unwrap exposes each strategy error to errors.Is/As.
func (e *AmbiguousMatchError) Unwrap() []error {
	return strategyErrors(e.Tried)
}

// ExhaustedRetriesError is the terminal error of a retried operation. It is
// raised both when attempts run out and when the retry predicate rejects an
// error; Report.Terminal tells the two apart.
type ExhaustedRetriesError struct {
	Report FailureReport
}

func (e *ExhaustedRetriesError) Error() string {
	return e.Report.Summary()
}

// Unwrap returns the error of the final attempt.
func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Report.LastError()
}

// CancelledError reports that the caller's context ended before the operation
// completed. It is never folded into ExhaustedRetriesError.
type CancelledError struct {
	Target  string
	Attempt int // Attempts started before cancellation was observed
	Cause   error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled after %d attempt(s): %v", e.Target, e.Attempt, e.Cause)
}

// Unwrap returns context.Canceled or context.DeadlineExceeded.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// ValidationFailure describes a response that did not satisfy its contract.
// BodyPreview is always bounded.
type ValidationFailure struct {
	Reason      FailureReason
	StatusCode  int
	URL         string
	Path        string // Field path for missing_field and unexpected_value
	Detail      string
	BodyPreview string
	Cause       error
}

func (f *ValidationFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "response validation failed (%s): status %d", f.Reason, f.StatusCode)
	if f.URL != "" {
		fmt.Fprintf(&b, " from %s", f.URL)
	}
	if f.Path != "" {
		fmt.Fprintf(&b, ", field %q", f.Path)
	}
	if f.Detail != "" {
		fmt.Fprintf(&b, ": %s", f.Detail)
	}
	if f.Cause != nil {
		fmt.Fprintf(&b, ": %v", f.Cause)
	}
	fmt.Fprintf(&b, "; body: %q", f.BodyPreview)
	return b.String()
}

// Unwrap returns the decode error, if any.
func (f *ValidationFailure) Unwrap() error {
	return f.Cause
}

func writeStrategies(b *strings.Builder, tried []StrategyError) {
	for i, s := range tried {
		fmt.Fprintf(b, "\n  [%d] %s", i+1, s)
	}
}

func strategyErrors(tried []StrategyError) []error {
	errs := make([]error, 0, len(tried))
	for _, s := range tried {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}
