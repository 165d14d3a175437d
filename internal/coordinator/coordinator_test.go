package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/engine/mock"
	"github.com/dgnsrekt/bookvox/internal/manifest"
	"github.com/dgnsrekt/bookvox/internal/store"
	"github.com/dgnsrekt/bookvox/internal/worker"
)

// autoCheckpointer confirms checkpoints immediately.
type autoCheckpointer struct{}

func (autoCheckpointer) Wait(ctx context.Context, workerID int, stats worker.Stats) error {
	return ctx.Err()
}

func testChunks(n int) []book.Chunk {
	chunks := make([]book.Chunk, n)
	for i := range chunks {
		chunks[i] = book.Chunk{
			Index:   i,
			Chapter: "chapter-01",
			Text:    fmt.Sprintf("paragraph %d", i),
		}
	}
	return chunks
}

type runFixture struct {
	sender   *mock.Sender
	manifest *manifest.Manifest
	store    *store.Dir
}

func newRunFixture(t *testing.T, total int) *runFixture {
	t.Helper()

	dir := t.TempDir()
	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	m, err := manifest.Create(dir, total)
	if err != nil {
		t.Fatalf("manifest.Create: %v", err)
	}
	return &runFixture{sender: mock.New(), manifest: m, store: dst}
}

func (f *runFixture) config(workers int) Config {
	return Config{
		Voice:        "test-voice",
		Sender:       f.sender,
		Manifest:     f.manifest,
		Store:        f.store,
		Workers:      workers,
		RequestDelay: time.Millisecond,
		RetryDelay:   time.Millisecond,
		Checkpoints:  autoCheckpointer{},
	}
}

func TestOptimalWorkers(t *testing.T) {
	tests := []struct {
		name            string
		total, per, max int
		expected        int
	}{
		{"small book single worker", 40, 55, 15, 1},
		{"one window per worker", 110, 55, 15, 2},
		{"rounds up", 111, 55, 15, 3},
		{"caps at max", 10000, 55, 15, 15},
		{"zero total", 0, 55, 15, 1},
		{"defaults fill in", 120, 0, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OptimalWorkers(tt.total, tt.per, tt.max); got != tt.expected {
				t.Errorf("OptimalWorkers(%d, %d, %d) = %d, want %d",
					tt.total, tt.per, tt.max, got, tt.expected)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"simultaneous", "staggered", "batched"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q) = %v, want nil", valid, err)
		}
	}
	if _, err := ParseMode("yolo"); err == nil {
		t.Error("ParseMode(\"yolo\") should fail")
	}
}

func TestRunConvertsEverything(t *testing.T) {
	chunks := testChunks(30)
	f := newRunFixture(t, 30)

	c := New(f.config(3))
	summary, err := c.Run(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.Success() {
		t.Errorf("Success() = false: failed=%v missing=%v",
			summary.FailedIndices, summary.MissingIndices)
	}
	if summary.Completed != 30 {
		t.Errorf("Completed = %d, want 30", summary.Completed)
	}
	if summary.WorkersSucceeded != 3 {
		t.Errorf("WorkersSucceeded = %d, want 3", summary.WorkersSucceeded)
	}

	snap := c.Snapshot()
	if !snap.Finished {
		t.Error("Snapshot().Finished = false after Run returned")
	}
	if snap.Completed != 30 {
		t.Errorf("Snapshot().Completed = %d, want 30", snap.Completed)
	}
}

func TestRunModesAllComplete(t *testing.T) {
	for _, mode := range []Mode{ModeSimultaneous, ModeStaggered, ModeBatched} {
		t.Run(string(mode), func(t *testing.T) {
			chunks := testChunks(12)
			f := newRunFixture(t, 12)

			cfg := f.config(4)
			cfg.Mode = mode
			cfg.StaggerDelay = time.Millisecond
			cfg.BatchSize = 2

			summary, err := New(cfg).Run(context.Background(), chunks)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if summary.Completed != 12 {
				t.Errorf("Completed = %d, want 12", summary.Completed)
			}
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	chunks := testChunks(9)
	f := newRunFixture(t, 9)
	// Unit 4 can never convert; its worker must carry on and the
	// other workers must be untouched.
	f.sender.AlwaysFailTexts = map[string]bool{chunks[4].Text: true}

	cfg := f.config(3)
	cfg.RetryAttempts = 2

	summary, err := New(cfg).Run(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Completed != 8 {
		t.Errorf("Completed = %d, want 8", summary.Completed)
	}
	if len(summary.FailedIndices) != 1 || summary.FailedIndices[0] != 4 {
		t.Errorf("FailedIndices = %v, want [4]", summary.FailedIndices)
	}
	if len(summary.MissingIndices) != 0 {
		t.Errorf("MissingIndices = %v, want empty", summary.MissingIndices)
	}
	if summary.Success() {
		t.Error("Success() = true with a failed unit")
	}
}

func TestRunWithInteractiveGate(t *testing.T) {
	chunks := testChunks(6)
	f := newRunFixture(t, 6)

	cfg := f.config(1)
	cfg.Threshold = 2
	cfg.Checkpoints = nil // use the coordinator's own gate

	c := New(cfg)

	done := make(chan Summary, 1)
	go func() {
		summary, _ := c.Run(context.Background(), chunks)
		done <- summary
	}()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case summary := <-done:
			if summary.Completed != 6 {
				t.Errorf("Completed = %d, want 6", summary.Completed)
			}
			return
		case <-deadline:
			t.Fatal("run did not finish; checkpoints never cleared?")
		case <-time.After(5 * time.Millisecond):
			c.ConfirmAllCheckpoints()
		}
	}
}

func TestRunEmptyAssignment(t *testing.T) {
	f := newRunFixture(t, 4)

	summary, err := New(f.config(2)).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 0 || summary.WorkersSucceeded != 0 {
		t.Errorf("empty run produced work: %+v", summary)
	}
}

func TestGateConfirm(t *testing.T) {
	g := NewCheckpointGate()

	released := make(chan error, 1)
	go func() {
		released <- g.Wait(context.Background(), 3, worker.Stats{SinceCheckpoint: 55})
	}()

	// Wait for the worker to park.
	for i := 0; len(g.Pending()) == 0; i++ {
		if i > 1000 {
			t.Fatal("worker never parked at the gate")
		}
		time.Sleep(time.Millisecond)
	}

	if g.Confirm(99) {
		t.Error("Confirm(99) = true for a worker that is not waiting")
	}
	if !g.Confirm(3) {
		t.Error("Confirm(3) = false for a parked worker")
	}
	if err := <-released; err != nil {
		t.Errorf("Wait returned %v after confirm, want nil", err)
	}
	if len(g.Pending()) != 0 {
		t.Errorf("Pending() = %v after confirm, want empty", g.Pending())
	}
}

func TestGateWaitHonorsContext(t *testing.T) {
	g := NewCheckpointGate()

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() {
		released <- g.Wait(ctx, 1, worker.Stats{})
	}()

	for i := 0; len(g.Pending()) == 0; i++ {
		if i > 1000 {
			t.Fatal("worker never parked at the gate")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-released; !errors.Is(err, context.Canceled) {
		t.Errorf("Wait returned %v, want context.Canceled", err)
	}
	if len(g.Pending()) != 0 {
		t.Error("canceled wait left a pending entry behind")
	}
}
