package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means no connection was available and none could be made.
	// Transient: a later Send may succeed.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrClosed means Close was called. Terminal.
	ErrClosed = errors.New("channel: closed")
)

// TransportError wraps a dial or write failure.
type TransportError struct {
	Op  string // "dial" or "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the caller may retry on a later observation.
func (e *TransportError) Temporary() bool {
	return true
}

// IsTemporary reports whether err is a retryable channel failure.
func IsTemporary(err error) bool {
	if err == nil || errors.Is(err, ErrClosed) {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te) && te.Temporary()
}
