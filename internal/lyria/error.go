package lyria

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when sending on a connection that has been closed.
var ErrClosed = errors.New("lyria: connection closed")

// Error is a failure reported while connecting to or talking with the
// service.
type Error struct {
	// Code is a short machine readable reason, e.g. "connection_failed".
	Code string

	// Message is the human-readable error message.
	Message string

	// HTTPStatus is the handshake status code, if the server answered.
	HTTPStatus int

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("lyria: %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("lyria: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
