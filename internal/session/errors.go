package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActivePrompts is reported when a prompt update leaves nothing
	// to steer generation with.
	ErrNoActivePrompts = errors.New("at least one active prompt required")

	// ErrConnectionLost is reported when the connection fails or closes.
	ErrConnectionLost = errors.New("connection error, please restart audio")

	// ErrPromptUpdate is reported when prompts could not be sent.
	ErrPromptUpdate = errors.New("failed to update prompts")
)

// Kind classifies session errors.
type Kind string

const (
	// KindTransport covers handshake, send and receive failures. They
	// always stop playback.
	KindTransport Kind = "TRANSPORT"
	// KindValidation covers prompt sets that cannot be played.
	KindValidation Kind = "VALIDATION"
	// KindDecode covers undecodable fragments. They are only logged.
	KindDecode Kind = "DECODE"
)

// Error is reported to listeners. Err is one of the sentinel errors above
// and is what users see; Cause carries the underlying failure.
type Error struct {
	Kind  Kind
	Err   error
	Cause error
}

func newError(kind Kind, err, cause error) *Error {
	return &Error{Kind: kind, Err: err, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Detail includes the underlying cause.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Err, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and
// errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// IsFatal returns true if the error ended the session.
func (e *Error) IsFatal() bool {
	return e.Kind == KindTransport
}
