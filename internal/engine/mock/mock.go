// Package mock provides an in-memory Sender for tests and dry runs.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/bookvox/internal/engine"
)

// Sender implements engine.Sender without any network access. It can
// simulate processing delay, transient failures, and the remote's
// hard-limit behavior.
type Sender struct {
	// Delay is the simulated per-request processing time.
	Delay time.Duration

	// FailFirst makes the first n sends of each text fail with a
	// transient error before succeeding.
	FailFirst int

	// AlwaysFailTexts contains texts whose sends always fail with a
	// transient error, regardless of FailFirst.
	AlwaysFailTexts map[string]bool

	// HardLimitEvery makes every nth send (counting from the last
	// limit) return engine.ErrHardLimit, simulating the quota wall.
	// Zero disables it. Call ClearLimit to simulate the operator
	// completing a verification.
	HardLimitEvery int

	mu         sync.Mutex
	calls      int
	sinceLimit int
	attempts   map[string]int
	sent       []string
}

// New returns a mock sender with a negligible delay.
func New() *Sender {
	return &Sender{
		Delay:    time.Millisecond,
		attempts: make(map[string]int),
	}
}

// Send implements engine.Sender.
func (s *Sender) Send(ctx context.Context, text, voiceID string) ([]byte, error) {
	if text == "" {
		return nil, engine.ErrEmptyText
	}

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.HardLimitEvery > 0 {
		s.sinceLimit++
		if s.sinceLimit >= s.HardLimitEvery {
			return nil, engine.ErrHardLimit
		}
	}

	if s.AlwaysFailTexts[text] {
		return nil, engine.Transient("send", errors.New("simulated permanent flake"))
	}

	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.attempts[text]++
	if s.attempts[text] <= s.FailFirst {
		return nil, engine.Transient("send", errors.New("simulated transient failure"))
	}

	s.sent = append(s.sent, text)

	// A recognizable fake payload; real audio never matters in tests.
	data := []byte("ID3\x03\x00mock-audio:" + voiceID + ":" + text)
	return data, nil
}

// ClearLimit resets the hard-limit counter, as if the operator had
// completed the verification checkpoint.
func (s *Sender) ClearLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinceLimit = 0
}

// Calls returns the total number of Send invocations.
func (s *Sender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Sent returns the texts that were successfully converted, in order.
func (s *Sender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}
