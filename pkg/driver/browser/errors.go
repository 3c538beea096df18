package browser

import (
	"errors"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/harness/pkg/core"
)

// classify maps a Playwright error onto the harness taxonomy so the retry
// predicate can tell transient failures from permanent ones.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return core.ErrActionTimeout.WithCause(err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return core.ErrTargetClosed.WithCause(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "strict mode violation"):
		return core.ErrAmbiguousMatch.WithCause(err)
	case strings.Contains(msg, "not attached") || strings.Contains(msg, "detached"):
		return core.ErrElementDetached.WithCause(err)
	case strings.Contains(msg, "timeout") && strings.Contains(msg, "exceeded"):
		return core.ErrActionTimeout.WithCause(err)
	case strings.Contains(msg, "target closed") || strings.Contains(msg, "has been closed"):
		return core.ErrTargetClosed.WithCause(err)
	}
	return core.ErrActionFailed.WithCause(err)
}
