package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ---------------------------------------------------------------------------
// Channel Errors
// ---------------------------------------------------------------------------

var (
	// Request errors, never retried
	ErrInvalidFilter = errors.New("channel: invalid filter")
	ErrInvalidInput  = errors.New("channel: invalid input")

	// Lookup errors
	ErrNotFound        = errors.New("channel: record not found")
	ErrAmbiguousResult = errors.New("channel: more than one record matched a singular read")

	// Data integrity errors, terminal for the current record
	ErrMissingDependency = errors.New("channel: referenced entity has no binding")
	ErrAmbiguousMatch    = errors.New("channel: several candidates share the best match score")
	ErrNoMatch           = errors.New("channel: no candidate matches the external record")
	ErrDuplicateBinding  = errors.New("channel: binding already exists")

	// Configuration errors
	ErrBackendNotConfigured = errors.New("channel: backend not configured")
	ErrEntityNotRegistered  = errors.New("channel: entity type not registered for backend")
	ErrInvalidBinding       = errors.New("channel: invalid binding")
	ErrInvalidRule          = errors.New("channel: invalid rule")
)

// ChannelError is returned by adapters when a remote call fails. It keeps the
// remote diagnostic so it can be attached to an operator issue.
type ChannelError struct {
	Message    string
	RawPayload string
	StatusCode int
	// Permanent marks an explicit remote rejection that retrying cannot fix.
	Permanent bool
	Err       error
}

// NewChannelError creates a retryable channel error
func NewChannelError(message, rawPayload string, cause error) *ChannelError {
	return &ChannelError{Message: message, RawPayload: rawPayload, Err: cause}
}

// Error implements the error interface
func (e *ChannelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("channel: remote call failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "channel: remote call failed: " + e.Message
}

// Unwrap returns the underlying cause
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// AsChannelError extracts a ChannelError from an error chain
func AsChannelError(err error) (*ChannelError, bool) {
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// RawMessage returns the remote diagnostic carried by err, if any.
func RawMessage(err error) string {
	if ce, ok := AsChannelError(err); ok {
		return ce.RawPayload
	}
	return ""
}

// IsRetryable reports whether a failed unit of work may be scheduled again.
// Only transient remote failures and timeouts qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTerminal(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if ce, ok := AsChannelError(err); ok {
		return !ce.Permanent
	}
	return false
}

// IsTerminal reports whether err is a validation or data integrity failure
// that requires operator action.
func IsTerminal(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMissingDependency),
		errors.Is(err, ErrAmbiguousMatch),
		errors.Is(err, ErrNoMatch),
		errors.Is(err, ErrDuplicateBinding),
		errors.Is(err, ErrAmbiguousResult):
		return true
	}
	return false
}
