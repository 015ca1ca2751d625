package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations and expected
// failure modes of the sync layer.
var (
	// Bid submission validation
	ErrBidTooLow        = errors.New("bid amount must be greater than the current bid")
	ErrBidAmountMissing = errors.New("bid amount is required")
	ErrNoActiveUser     = errors.New("no authenticated user")

	// Connection
	ErrNotConnected   = errors.New("connection is not open")
	ErrConnectionGone = errors.New("connection has been closed")

	// Snapshot / request lifecycle
	ErrSnapshotTimeout = errors.New("bid snapshot request timed out")
	ErrSnapshotFailed  = errors.New("bid snapshot request failed")

	// Protocol
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrUnknownStatus    = errors.New("unknown auction status")
	ErrMissingAuctionID = errors.New("auction id is required")

	// Generic
	ErrNotFound = errors.New("resource not found")
	ErrInternal = errors.New("internal error")
)

// AppError wraps errors with additional context for user-facing surfaces.
type AppError struct {
	Err     error  // The underlying error
	Message string // User-friendly message
	Code    string // Machine-readable error code
	Retry   bool   // Whether the caller should offer a retry affordance
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError builds a local validation failure. These are rejected
// before any network call and must read as a specific user message, not a
// network error.
func NewValidationError(err error, message string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    "VALIDATION_ERROR",
	}
}

// NewTransientError marks an expected connectivity failure. The UI shows a
// reconnecting indicator for these, never an error dialog.
func NewTransientError(err error) *AppError {
	return &AppError{
		Err:     err,
		Message: "Connection lost. Reconnecting...",
		Code:    "TRANSIENT",
	}
}

// NewTerminalError marks a failure the user must act on, e.g. a snapshot
// request that explicitly errored or timed out.
func NewTerminalError(err error, message string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    "TERMINAL",
		Retry:   true,
	}
}

// NewProtocolError wraps a malformed or unexpected payload. Protocol errors
// are logged and dropped at the component boundary; they never propagate into
// engine state.
func NewProtocolError(err error, detail string) *AppError {
	return &AppError{
		Err:     err,
		Message: fmt.Sprintf("dropped event: %s", detail),
		Code:    "PROTOCOL_ERROR",
	}
}
