// Package errors provides unified error handling for relayhub
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Code represents an error code for categorization
type Code string

// RelayError represents a unified error with code, message, and context
type RelayError struct {
	Code      Code                   `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *RelayError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error code
func (e *RelayError) Is(target error) bool {
	if relayErr, ok := target.(*RelayError); ok {
		return e.Code == relayErr.Code
	}
	return false
}

// WithContext adds context information to the error
func (e *RelayError) WithContext(key string, value interface{}) *RelayError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *RelayError) WithDetails(details string) *RelayError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause error
func (e *RelayError) WithCause(cause error) *RelayError {
	e.Cause = cause
	return e
}

// New creates a new RelayError
func New(code Code, message string) *RelayError {
	return &RelayError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with a RelayError
func Wrap(cause error, code Code, message string) *RelayError {
	e := New(code, message)
	e.Cause = cause
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(cause error, code Code, format string, args ...interface{}) *RelayError {
	return Wrap(cause, code, fmt.Sprintf(format, args...))
}

// CodeOf extracts the code of the first RelayError in err's chain.
func CodeOf(err error) (Code, bool) {
	var relayErr *RelayError
	if stderrors.As(err, &relayErr) {
		return relayErr.Code, true
	}
	return "", false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// FormatForAPI formats an error for API responses. Context is omitted because
// it may carry internal values.
func FormatForAPI(err error) map[string]interface{} {
	result := map[string]interface{}{
		"success": false,
		"error":   "An error occurred",
	}

	var relayErr *RelayError
	if stderrors.As(err, &relayErr) {
		result["code"] = string(relayErr.Code)
		result["error"] = relayErr.Message
		// Only client-side errors explain themselves; server errors stay opaque.
		if relayErr.Details != "" && GetErrorInfo(relayErr.Code).Category == InputCategory {
			result["details"] = relayErr.Details
		}
	}

	return result
}
