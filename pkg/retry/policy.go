package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/harness/pkg/core"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffStep = 250 * time.Millisecond
)

// Policy governs attempt count, backoff and which errors are worth retrying.
// Zero fields take the executor's defaults.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Retryable   func(error) bool
}

// DefaultPolicy returns 3 attempts with a linear 0, 250ms, 500ms backoff and
// DefaultRetryable.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Linear{Step: DefaultBackoffStep},
		Retryable:   DefaultRetryable,
	}
}

// Validate reports an unusable policy.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.Backoff == nil {
		return core.ErrInvalidConfig.WithMessage("backoff is required")
	}
	if p.Retryable == nil {
		return core.ErrInvalidConfig.WithMessage("retryable predicate is required")
	}
	return nil
}

// merge fills p's zero fields from def.
func (p Policy) merge(def Policy) Policy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	return p
}

// DefaultRetryable retries resolution failures, ambiguous matches and errors
// flagged transient by the provider. It never retries cancellation, response
// validation failures, configuration errors or a closed page.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *core.CancelledError
	if errors.As(err, &ce) {
		return false
	}
	var vf *core.ValidationFailure
	if errors.As(err, &vf) {
		return false
	}
	if errors.Is(err, core.ErrTargetClosed) || core.CategoryOf(err) == core.ErrCategoryConfig {
		return false
	}

	var re *core.ResolutionError
	var ae *core.AmbiguousMatchError
	if errors.As(err, &re) || errors.As(err, &ae) {
		return true
	}
	return core.IsTransient(err)
}

// Never retries nothing.
func Never(error) bool { return false }

// Any retries when any predicate does.
func Any(preds ...func(error) bool) func(error) bool {
	return func(err error) bool {
		for _, p := range preds {
			if p != nil && p(err) {
				return true
			}
		}
		return false
	}
}

// OnStatus retries response validation failures whose status is one of codes,
// e.g. OnStatus(502, 503, 504) for a flaky upstream.
func OnStatus(codes ...int) func(error) bool {
	return func(err error) bool {
		var vf *core.ValidationFailure
		if !errors.As(err, &vf) || vf.Reason != core.ReasonBadStatus {
			return false
		}
		for _, c := range codes {
			if vf.StatusCode == c {
				return true
			}
		}
		return false
	}
}
