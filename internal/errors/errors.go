// Package errors provides standardized error codes for the host.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: the subsystem that generated the error (session, input,
//     server, storage)
//   - error: the specific error type within that domain
//
// The codes are stable identifiers that viewer clients can rely on for
// programmatic handling; human-readable messages travel alongside them.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Session domain - pseudo-terminal process errors
	CodeSessionNotFound       = "session.not_found"       // Session id does not exist
	CodeSessionAlreadyRunning = "session.already_running" // Session already started
	CodeSessionNotRunning     = "session.not_running"     // Session not started or already exited
	CodeSessionSpawnFailed    = "session.spawn_failed"    // Failed to spawn the PTY process
	CodeSessionWriteFailed    = "session.write_failed"    // Failed to write to the PTY
	CodeSessionResizeFailed   = "session.resize_failed"   // Failed to resize the PTY

	// Input domain - viewer input errors
	CodeInputRateLimited = "input.rate_limited" // Too many input messages per second
	CodeInputWriteFailed = "input.write_failed" // Failed to deliver input to the PTY

	// Server domain - WebSocket and network errors
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message
	CodeServerSendFailed     = "server.send_failed"     // Failed to send a message
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed

	// Storage domain - database and persistence errors
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code, carrying both a code
// for programmatic handling and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "session.not_found")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error, falling back to
// CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// ToCodeAndMessage extracts both code and message from an error. This is
// the primary conversion used when building error payloads for clients.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}
	return CodeUnknown, err.Error()
}

// IsCode checks whether an error carries a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common constructors.

// SessionNotFound creates a "session.not_found" error.
func SessionNotFound(id string) *CodedError {
	return New(CodeSessionNotFound, fmt.Sprintf("session %s not found", id))
}

// SessionNotRunning creates a "session.not_running" error.
func SessionNotRunning(id string) *CodedError {
	return New(CodeSessionNotRunning, fmt.Sprintf("session %s is not running", id))
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
