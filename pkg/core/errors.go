package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category  ErrorCategory
	Code      string                 // Machine-readable code: element_not_found, timeout, etc.
	Message   string                 // Human-readable message
	Details   map[string]interface{} // Additional context
	Transient bool                   // The same call may succeed if repeated
	Cause     error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError carrying the same code, so derived copies
// still satisfy errors.Is against the predefined values.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	c := *e
	c.Cause = cause
	return &c
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	c := *e
	c.Message = msg
	return &c
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	c := *e
	c.Details = merged
	return &c
}

// Predefined errors
var (
	// Resolution errors
	ErrElementNotFound = &ExecutionError{
		Category:  ErrCategoryResolution,
		Code:      "element_not_found",
		Message:   "element not found",
		Transient: true,
	}
	ErrAmbiguousMatch = &ExecutionError{
		Category:  ErrCategoryResolution,
		Code:      "ambiguous_match",
		Message:   "more than one element matched",
		Transient: true,
	}

	// Action errors
	ErrElementDetached = &ExecutionError{
		Category:  ErrCategoryAction,
		Code:      "element_detached",
		Message:   "element detached from the page",
		Transient: true,
	}
	ErrActionTimeout = &ExecutionError{
		Category:  ErrCategoryAction,
		Code:      "action_timeout",
		Message:   "action timed out",
		Transient: true,
	}
	ErrActionFailed = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "action_failed",
		Message:  "action failed",
	}
	ErrTargetClosed = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "target_closed",
		Message:  "page or browser has been closed",
	}
	ErrUnsupportedAction = &ExecutionError{
		Category: ErrCategoryAction,
		Code:     "unsupported_action",
		Message:  "action not supported by provider",
	}

	// Assertion errors
	ErrConditionNotMet = &ExecutionError{
		Category:  ErrCategoryAssertion,
		Code:      "condition_not_met",
		Message:   "condition was not met",
		Transient: true,
	}

	// Config errors
	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
	ErrMissingRequired = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "missing_required",
		Message:  "missing required field",
	}
)

// IsTransient reports whether err was marked as worth repeating, either by an
// ExecutionError in its chain or by a Temporary() method.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Transient
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

// CategoryOf returns the category of the first ExecutionError in err's chain.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	var vf *ValidationFailure
	if errors.As(err, &vf) {
		return ErrCategoryValidation
	}
	var ce *CancelledError
	if errors.As(err, &ce) {
		return ErrCategoryCancelled
	}
	return ErrCategoryNone
}
