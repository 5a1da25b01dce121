// Package protocol defines the wire model shared by the server and clients:
// request/response envelopes, notifications, phase data, and the error
// taxonomy. Both the JSON dialect and the DAIDE codec map onto these types.
package protocol

import "fmt"

// ErrorCode is the wire error taxonomy. Codes appear verbatim in responses.
type ErrorCode string

const (
	ErrAuth          ErrorCode = "AUTH"           // unknown token, wrong password, insufficient permission
	ErrNotFound      ErrorCode = "NOT_FOUND"      // unknown game, user, or channel
	ErrConflict      ErrorCode = "CONFLICT"       // duplicate game id, seat taken, creation rule violation
	ErrPhaseMismatch ErrorCode = "PHASE_MISMATCH" // phase-dependent request carries a stale phase
	ErrOrderInvalid  ErrorCode = "ORDER_INVALID"  // syntactically or semantically bad order
	ErrGameFinished  ErrorCode = "GAME_FINISHED"  // mutation on a COMPLETED game
	ErrObsolete      ErrorCode = "OBSOLETE"       // reconnection dropped this re-sent request
	ErrInternal      ErrorCode = "INTERNAL"       // invariant violation; game quarantined
)

// Error is a wire-visible error with a taxonomy code.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is allows errors.Is matching on the code only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds a wire error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a wire *Error from err, wrapping unknown errors as
// INTERNAL so the taxonomy is total on the wire.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if we, ok := err.(*Error); ok {
		return we
	}
	return &Error{Code: ErrInternal, Message: err.Error()}
}
