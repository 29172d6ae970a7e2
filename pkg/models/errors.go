package models

import (
	"errors"
	"fmt"
)

// ErrorCode represents a filescout error code.
type ErrorCode string

// Error codes for filescout operations.
const (
	// Path errors
	ErrInvalidPath      ErrorCode = "E_INVALID_PATH"
	ErrPathNotFound     ErrorCode = "E_PATH_NOT_FOUND"
	ErrNotADirectory    ErrorCode = "E_NOT_A_DIRECTORY"
	ErrPermissionDenied ErrorCode = "E_PERMISSION_DENIED"

	// Content errors
	ErrExtractionFailed ErrorCode = "E_EXTRACTION_FAILED"
	ErrInvalidPattern   ErrorCode = "E_INVALID_PATTERN"

	// Session errors
	ErrSessionNotFound ErrorCode = "E_SESSION_NOT_FOUND"

	// Configuration errors
	ErrConfigInvalid ErrorCode = "E_CONFIG_INVALID"

	// Generic errors
	ErrInvalidRequest ErrorCode = "E_INVALID_REQUEST"
	ErrNotFound       ErrorCode = "E_NOT_FOUND"
	ErrInternal       ErrorCode = "E_INTERNAL"
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Wrap wraps an error with an Error.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
