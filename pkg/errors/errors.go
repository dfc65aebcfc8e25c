// Package errors provides structured error types for domrand.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the collector, CLI and status server
//   - Machine-readable error codes for programmatic handling
//   - A single place that decides which failures abort only one episode
//
// # Error Codes
//
// Error codes fall into three groups:
//   - Episode-local failures (PLACEMENT_EXHAUSTED, TEXTURE_CREATION_FAILED):
//     the collector skips the episode and carries on
//   - Fatal failures (SIMULATION_STATE, TRANSPORT, STORAGE): the collection
//     loop stops and the error reaches the caller
//   - Input and lookup errors (INVALID_*, NOT_FOUND)
//
// # Usage
//
//	err := errors.New(errors.ErrCodePlacementExhausted, "block %d: %d attempts", id, n)
//	if errors.Recoverable(err) {
//	    // skip this episode
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeTransport, origErr, "call %s", fn)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Episode-local errors
	ErrCodePlacementExhausted    Code = "PLACEMENT_EXHAUSTED"
	ErrCodeTextureCreationFailed Code = "TEXTURE_CREATION_FAILED"

	// Fatal errors
	ErrCodeSimulationState Code = "SIMULATION_STATE"
	ErrCodeTransport       Code = "TRANSPORT"
	ErrCodeStorage         Code = "STORAGE"

	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// Only the outermost *Error is consulted.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Recoverable reports whether err only invalidates the current episode.
// Placement and texture exhaustion are recoverable; everything else,
// including uncoded errors, is not.
func Recoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodePlacementExhausted, ErrCodeTextureCreationFailed:
		return true
	}
	return false
}
