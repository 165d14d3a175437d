package engine

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for the send operation.
var (
	// ErrHardLimit signals that the remote enforced its per-session
	// request quota. This is an expected condition, not a failure: it
	// is resolved by a verification checkpoint, after which the
	// session resumes.
	ErrHardLimit = errors.New("session request limit reached")

	// ErrEmptyAudio is returned when the service responds successfully
	// but with no audio payload.
	ErrEmptyAudio = errors.New("service returned no audio data")

	// ErrEmptyText is returned for a send with no text.
	ErrEmptyText = errors.New("no text provided")
)

// TransientError wraps a failure that is worth retrying: network
// trouble, timeouts, or server-side errors on a single request.
type TransientError struct {
	Op  string // operation being performed, e.g. "send"
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": transient failure"
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsHardLimit reports whether err is the remote's hard-limit signal.
func IsHardLimit(err error) bool {
	return errors.Is(err, ErrHardLimit)
}

// IsTransient reports whether err is worth retrying. Hard-limit
// signals and context cancellation are never transient.
func IsTransient(err error) bool {
	if err == nil || IsHardLimit(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}
