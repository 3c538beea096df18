package core

import (
	"fmt"
	"strings"
	"time"
)

// AttemptOutcome captures a single attempt of a retried operation
type AttemptOutcome struct {
	Attempt   int           `json:"attempt"` // 1-based
	Succeeded bool          `json:"succeeded"`
	Err       error         `json:"-"`
	Elapsed   time.Duration `json:"elapsed"`
}

// ErrorMessage returns the attempt error text, or "" on success.
func (a AttemptOutcome) ErrorMessage() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// FailureContext is handed to the diagnostic capturer once an operation has
// failed terminally.
type FailureContext struct {
	Target   string
	Attempts []AttemptOutcome
	Terminal TerminalReason
	Screen   ScreenshotSource // May be nil for API-only operations
}

// LastError returns the error of the final attempt.
func (f FailureContext) LastError() error {
	if len(f.Attempts) == 0 {
		return nil
	}
	return f.Attempts[len(f.Attempts)-1].Err
}

// FailureReport is the immutable record of a terminal failure
type FailureReport struct {
	Target       string           `json:"target"`
	WorkerID     string           `json:"worker,omitempty"`
	Terminal     TerminalReason   `json:"terminal"`
	Attempts     []AttemptOutcome `json:"attempts"`
	ArtifactPath string           `json:"artifact,omitempty"`
	LogPath      string           `json:"log,omitempty"`
	Attachments  []Attachment     `json:"attachments,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// NewFailureReport builds a report from a failure context. Attempts are copied
// so later mutation of the caller's slice cannot leak into the report.
func NewFailureReport(fc FailureContext, ts time.Time) FailureReport {
	return FailureReport{
		Target:    fc.Target,
		Terminal:  fc.Terminal,
		Attempts:  append([]AttemptOutcome(nil), fc.Attempts...),
		Timestamp: ts,
	}
}

// LastError returns the error of the final attempt.
func (r FailureReport) LastError() error {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1].Err
}

// Summary renders the report as a multi-line message suitable for test output.
func (r FailureReport) Summary() string {
	var b strings.Builder
	switch r.Terminal {
	case TerminalNonRetryable:
		fmt.Fprintf(&b, "%s failed with a non-retryable error after %d attempt(s)", r.Target, len(r.Attempts))
	default:
		fmt.Fprintf(&b, "%s failed after %d attempt(s)", r.Target, len(r.Attempts))
	}
	for _, a := range r.Attempts {
		fmt.Fprintf(&b, "\n  attempt %d (%s): ", a.Attempt, a.Elapsed.Round(time.Millisecond))
		if a.Succeeded {
			b.WriteString("ok")
			continue
		}
		b.WriteString(indent(a.ErrorMessage(), "    "))
	}
	if r.ArtifactPath != "" {
		fmt.Fprintf(&b, "\n  screenshot: %s", r.ArtifactPath)
	}
	if r.LogPath != "" {
		fmt.Fprintf(&b, "\n  log: %s", r.LogPath)
	}
	return b.String()
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
