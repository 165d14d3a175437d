package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/bookvox/internal/worker"
)

// PendingCheckpoint describes one worker parked at a checkpoint.
type PendingCheckpoint struct {
	WorkerID int
	Since    time.Time
	Stats    worker.Stats
}

// CheckpointGate parks sessions at checkpoint boundaries and releases
// them one at a time as the operator confirms. It implements
// worker.Checkpointer.
type CheckpointGate struct {
	mu      sync.Mutex
	pending map[int]*gateEntry
}

type gateEntry struct {
	release chan struct{}
	since   time.Time
	stats   worker.Stats
}

// NewCheckpointGate returns an empty gate.
func NewCheckpointGate() *CheckpointGate {
	return &CheckpointGate{pending: make(map[int]*gateEntry)}
}

// Wait parks the calling session until Confirm releases it or the
// context is canceled.
func (g *CheckpointGate) Wait(ctx context.Context, workerID int, stats worker.Stats) error {
	entry := &gateEntry{
		release: make(chan struct{}),
		since:   time.Now(),
		stats:   stats,
	}

	g.mu.Lock()
	g.pending[workerID] = entry
	g.mu.Unlock()

	select {
	case <-entry.release:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		delete(g.pending, workerID)
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Confirm releases the named worker. It reports whether that worker
// was actually waiting.
func (g *CheckpointGate) Confirm(workerID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.pending[workerID]
	if !ok {
		return false
	}
	delete(g.pending, workerID)
	close(entry.release)
	return true
}

// ConfirmAll releases every waiting worker and returns how many were
// released.
func (g *CheckpointGate) ConfirmAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.pending)
	for id, entry := range g.pending {
		delete(g.pending, id)
		close(entry.release)
	}
	return n
}

// Pending returns the parked workers ordered by worker ID.
func (g *CheckpointGate) Pending() []PendingCheckpoint {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]PendingCheckpoint, 0, len(g.pending))
	for id, entry := range g.pending {
		out = append(out, PendingCheckpoint{
			WorkerID: id,
			Since:    entry.since,
			Stats:    entry.stats,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}
