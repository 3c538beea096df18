package core

import "fmt"

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryResolution                      // Element not found or ambiguous
	ErrCategoryAction                          // Provider rejected or failed an interaction
	ErrCategoryAssertion                       // Observed state did not match expectation
	ErrCategoryValidation                      // HTTP response failed validation
	ErrCategoryCancelled                       // Caller context cancelled or timed out
	ErrCategoryConfig                          // Invalid configuration, missing required field
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryResolution:
		return "resolution"
	case ErrCategoryAction:
		return "action"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryValidation:
		return "validation"
	case ErrCategoryCancelled:
		return "cancelled"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// TerminalReason records why a retried operation stopped.
type TerminalReason int

const (
	TerminalNone         TerminalReason = iota // Operation succeeded
	TerminalExhausted                          // Every attempt failed with a retryable error
	TerminalNonRetryable                       // Predicate rejected the error
)

// String returns the string representation of TerminalReason
func (r TerminalReason) String() string {
	switch r {
	case TerminalNone:
		return "none"
	case TerminalExhausted:
		return "exhausted"
	case TerminalNonRetryable:
		return "non_retryable"
	default:
		return "unknown"
	}
}

// MarshalText lets the reason appear by name in structured logs and JSON.
func (r TerminalReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (r *TerminalReason) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*r = TerminalNone
	case "exhausted":
		*r = TerminalExhausted
	case "non_retryable":
		*r = TerminalNonRetryable
	default:
		return fmt.Errorf("unknown terminal reason %q", text)
	}
	return nil
}

// FailureReason distinguishes the ways a response can fail validation.
type FailureReason string

const (
	ReasonBadStatus       FailureReason = "bad_status"       // Non-2xx status with an otherwise readable body
	ReasonMalformedBody   FailureReason = "malformed_body"   // Body could not be decoded
	ReasonMissingField    FailureReason = "missing_field"    // Decoded body lacks an expected field or shape
	ReasonUnexpectedValue FailureReason = "unexpected_value" // Field present but value differs from expectation
)
