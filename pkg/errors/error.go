// Package errors provides structured error handling with typed error codes
// and an error-kind axis used for retry classification.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown and general errors
//   - Validation errors (100-199): Invalid documents, parameters, frequencies
//   - Indicator errors (200-299): Indicator registry and calculation errors
//   - Market data errors (300-399): History fetching and exchange errors
//   - Runtime errors (400-499): Strategy runtime setup and iteration errors
//   - Order errors (500-599): Order placement errors
//   - Job/queue errors (600-699): Job store, queue, and worker errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Create a classified error
//	err := errors.NewKind(errors.ErrCodeExchangeTimeout, errors.KindTransient, "request timed out")
//
//	// Check classification
//	if errors.KindOf(err) == errors.KindTransient { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code, a kind, and a message.
type Error struct {
	Code    ErrorCode
	Kind    Kind
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Kind:    KindUnclassified,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Kind:    KindUnclassified,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// NewKind creates a new Error with the given code, kind, and message.
func NewKind(code ErrorCode, kind Kind, message string) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Cause:   nil,
	}
}

// NewKindf creates a new Error with the given code, kind, and formatted message.
func NewKindf(code ErrorCode, kind Kind, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
// The wrapped error keeps the cause's kind unless the cause is unclassified.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Kind:    KindOf(cause),
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Kind:    KindOf(cause),
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// WrapKind wraps an existing error, overriding its kind.
func WrapKind(code ErrorCode, kind Kind, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// KindOf extracts the Kind from an error chain.
// Returns KindUnclassified if no *Error with a kind is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnclassified
}
