// Package errors provides structured error types for the ranking core.
// Every error carries a category, code and message. Statistical and protocol
// errors are fatal to the run that raised them; nothing is ever retried.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure class.
type ErrorCategory string

const (
	ErrCategoryValidation  ErrorCategory = "VALIDATION"
	ErrCategoryStatistical ErrorCategory = "STATISTICAL"
	ErrCategoryProtocol    ErrorCategory = "PROTOCOL"
	ErrCategoryInternal    ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Statistical precondition codes
	CodeEmptyActiveSet    = "EMPTY_ACTIVE_SET"
	CodeUndefinedRadius   = "UNDEFINED_RADIUS"
	CodeInvalidConfidence = "INVALID_CONFIDENCE"

	// Protocol codes
	CodePairOutOfRange = "PAIR_OUT_OF_RANGE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// RankError is the structured error type used throughout the module.
type RankError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *RankError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RankError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *RankError) Is(target error) bool {
	var t *RankError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new RankError.
func New(category ErrorCategory, code, message string) *RankError {
	return &RankError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new RankError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *RankError {
	return &RankError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *RankError) WithDetails(details map[string]interface{}) *RankError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsFatal reports whether an error (or its chain) must abort the run.
// Statistical and protocol failures are fatal; validation failures happen
// before a run starts.
func IsFatal(err error) bool {
	switch GetCategory(err) {
	case ErrCategoryStatistical, ErrCategoryProtocol, ErrCategoryInternal:
		return true
	default:
		return false
	}
}

// IsPreconditionViolation reports whether err signals that the configured
// (epsilon, delta, M) combination cannot satisfy a statistical guarantee.
func IsPreconditionViolation(err error) bool {
	return GetCategory(err) == ErrCategoryStatistical
}

// IsBoundsViolation reports whether err signals an oracle/core protocol mismatch.
func IsBoundsViolation(err error) bool {
	return GetCategory(err) == ErrCategoryProtocol && GetCode(err) == CodePairOutOfRange
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a RankError.
func GetCategory(err error) ErrorCategory {
	var re *RankError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a RankError.
func GetCode(err error) string {
	var re *RankError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewValidationError(message string) *RankError {
	return New(ErrCategoryValidation, CodeInvalidConfig, message)
}

func NewPreconditionError(code, message string) *RankError {
	return New(ErrCategoryStatistical, code, message)
}

func NewBoundsError(message string) *RankError {
	return New(ErrCategoryProtocol, CodePairOutOfRange, message)
}

func NewInternalError(message string, cause error) *RankError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
