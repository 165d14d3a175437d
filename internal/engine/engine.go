// Package engine defines the send operation used to convert one chunk
// of text into audio, and the error taxonomy the rest of the system
// branches on. The core treats the remote service as opaque: a send
// yields audio bytes, a transient error worth retrying, or a hard-limit
// signal that must be resolved by a verification checkpoint.
package engine

import "context"

// Sender converts text to audio through a remote text-to-speech
// service. Implementations must be safe for use from a single
// goroutine; each worker session owns its own Sender so that sessions
// remain isolated (separate cookies/identity per session).
type Sender interface {
	// Send converts text to audio using the given voice. It returns
	// the audio bytes, or an error classifiable via IsHardLimit /
	// IsTransient.
	Send(ctx context.Context, text, voiceID string) ([]byte, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, text, voiceID string) ([]byte, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, text, voiceID string) ([]byte, error) {
	return f(ctx, text, voiceID)
}
