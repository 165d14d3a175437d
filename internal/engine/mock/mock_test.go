package mock

import (
	"context"
	"testing"

	"github.com/dgnsrekt/bookvox/internal/engine"
)

// TestSendReturnsAudio tests the happy path.
func TestSendReturnsAudio(t *testing.T) {
	s := New()
	s.Delay = 0

	data, err := s.Send(context.Background(), "hello world", "en-US-AndrewNeural")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("Send() returned empty audio")
	}
	if got := s.Calls(); got != 1 {
		t.Errorf("Calls() = %d, want 1", got)
	}
}

// TestSendEmptyText tests that empty text is rejected.
func TestSendEmptyText(t *testing.T) {
	s := New()
	if _, err := s.Send(context.Background(), "", "v"); err != engine.ErrEmptyText {
		t.Errorf("Send() error = %v, want ErrEmptyText", err)
	}
}

// TestFailFirst tests transient failures before eventual success.
func TestFailFirst(t *testing.T) {
	s := New()
	s.Delay = 0
	s.FailFirst = 2

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := s.Send(context.Background(), "flaky", "v")
		if !engine.IsTransient(err) {
			t.Fatalf("attempt %d: error = %v, want transient", attempt, err)
		}
	}

	if _, err := s.Send(context.Background(), "flaky", "v"); err != nil {
		t.Errorf("third attempt error = %v, want nil", err)
	}
}

// TestHardLimitEvery tests the simulated quota wall and its reset.
func TestHardLimitEvery(t *testing.T) {
	s := New()
	s.Delay = 0
	s.HardLimitEvery = 3

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := s.Send(ctx, "ok", "v"); err != nil {
			t.Fatalf("send %d: error = %v", i, err)
		}
	}

	if _, err := s.Send(ctx, "ok", "v"); !engine.IsHardLimit(err) {
		t.Fatalf("third send error = %v, want hard limit", err)
	}

	// The wall persists until the checkpoint is cleared.
	if _, err := s.Send(ctx, "ok", "v"); !engine.IsHardLimit(err) {
		t.Fatalf("fourth send error = %v, want hard limit", err)
	}

	s.ClearLimit()
	if _, err := s.Send(ctx, "ok", "v"); err != nil {
		t.Errorf("post-clear send error = %v, want nil", err)
	}
}
