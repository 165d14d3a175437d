package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestIsHardLimit tests hard-limit classification, including wrapped
// errors.
func TestIsHardLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"hard limit", ErrHardLimit, true},
		{"wrapped hard limit", fmt.Errorf("send: %w", ErrHardLimit), true},
		{"transient", Transient("send", errors.New("timeout")), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHardLimit(tt.err); got != tt.want {
				t.Errorf("IsHardLimit() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestIsTransient tests retryable classification.
func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", Transient("send", errors.New("connection reset")), true},
		{"wrapped transient", fmt.Errorf("worker 3: %w", Transient("send", errors.New("x"))), true},
		{"hard limit", ErrHardLimit, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestTransientErrorUnwrap tests that the underlying error stays
// reachable through errors.Is.
func TestTransientErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: i/o timeout")
	err := Transient("send", inner)

	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, want true")
	}
	if err.Error() != "send: dial tcp: i/o timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}
