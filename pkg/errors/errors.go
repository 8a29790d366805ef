// Package errors provides structured error types for the devpi API client.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across all resource clients
//   - Machine-readable error codes for programmatic handling
//   - HTTP diagnostics (status code, response body) attached to errors
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Each code corresponds to one failure class of the client:
//   - VALIDATION: input rejected before any network call
//   - AUTHENTICATION / PERMISSION / NOT_FOUND / CONFLICT / SERVER: HTTP errors
//   - NETWORK: transport-level failures (connection refused, timeouts)
//   - RESPONSE_PARSING: malformed JSON or unexpected payload structure
//
// # Usage
//
//	err := errors.New(errors.CodeValidation, "parameter %q cannot be empty", name)
//	if errors.Is(err, errors.CodeNotFound) {
//	    // Handle missing resource
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.CodeNetwork, origErr, "GET %s failed", path)
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the client's failure classes.
const (
	// CodeValidation is raised synchronously before any network call.
	CodeValidation Code = "VALIDATION"

	// HTTP status errors.
	CodeAuthentication Code = "AUTHENTICATION"
	CodePermission     Code = "PERMISSION"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeServer         Code = "SERVER"

	// CodeNetwork covers transport failures (connection errors, timeouts).
	CodeNetwork Code = "NETWORK"

	// CodeResponseParsing covers malformed JSON and schema mismatches.
	CodeResponseParsing Code = "RESPONSE_PARSING"
)

// Error is a structured error with a code, optional HTTP diagnostics,
// and an optional cause.
type Error struct {
	Code       Code           // Machine-readable error code
	Message    string         // Human-readable message
	StatusCode int            // HTTP status code, 0 when not HTTP-derived
	Body       map[string]any // Best-effort parsed response body, nil when unavailable
	Cause      error          // Underlying error (optional)
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

// FromStatus builds an Error from an HTTP status code and raw response body.
// The status is classified per the client's taxonomy: 401, 403, 404 and 409
// map to their dedicated codes, anything in [500, 600) maps to CodeServer,
// and every other non-success status also falls through to CodeServer. The
// body is parsed as JSON on a best-effort basis; parse failures are swallowed
// and leave Body nil. FromStatus never fails.
func FromStatus(status int, body []byte, format string, args ...any) *Error {
	var code Code
	switch {
	case status == http.StatusUnauthorized:
		code = CodeAuthentication
	case status == http.StatusForbidden:
		code = CodePermission
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusConflict:
		code = CodeConflict
	default:
		code = CodeServer
	}

	e := &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...) + fmt.Sprintf(": status %d", status),
		StatusCode: status,
	}
	if len(body) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err == nil {
			e.Body = parsed
		}
	}
	return e
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
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

// Status extracts the HTTP status code from an error, if available.
// Returns 0 for non-HTTP errors.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
