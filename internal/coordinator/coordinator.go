// Package coordinator fans a book's remaining chunks out across worker
// sessions, tracks their progress through events, and gates checkpoint
// confirmations. Workers never share mutable progress state; every
// update arrives on the coordinator's event channel.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/budget"
	"github.com/dgnsrekt/bookvox/internal/engine"
	"github.com/dgnsrekt/bookvox/internal/manifest"
	"github.com/dgnsrekt/bookvox/internal/store"
	"github.com/dgnsrekt/bookvox/internal/worker"
)

// MaxWorkers caps the worker count regardless of book size.
const MaxWorkers = 15

// Mode selects how worker starts are scheduled. Staggering start times
// spreads the moment each worker hits its checkpoint threshold, so the
// operator is not confirming every worker at once.
type Mode string

const (
	// ModeSimultaneous starts every worker at once.
	ModeSimultaneous Mode = "simultaneous"
	// ModeStaggered delays each worker's start by a fixed interval.
	ModeStaggered Mode = "staggered"
	// ModeBatched runs workers in sequential groups.
	ModeBatched Mode = "batched"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSimultaneous, ModeStaggered, ModeBatched:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown coordination mode %q (try simultaneous, staggered, or batched)", s)
	}
}

// OptimalWorkers sizes the pool so each worker lands near one
// checkpoint window of work, capped at max.
func OptimalWorkers(total, perWorker, max int) int {
	if perWorker <= 0 {
		perWorker = budget.DefaultThreshold
	}
	if max <= 0 {
		max = MaxWorkers
	}
	if total <= 0 {
		return 1
	}

	n := (total + perWorker - 1) / perWorker
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}

// Config assembles a coordinated run.
type Config struct {
	Voice    string
	Sender   engine.Sender
	Manifest *manifest.Manifest
	Store    *store.Dir

	Workers   int
	Threshold int

	Mode         Mode
	StaggerDelay time.Duration
	BatchSize    int

	RequestDelay  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration

	// Checkpoints overrides the interactive gate. Leave nil to use
	// the coordinator's own CheckpointGate (released via
	// ConfirmCheckpoint). A dry run can pass an auto-confirming stub.
	Checkpoints worker.Checkpointer
}

// Progress is one worker's row in the progress table.
type Progress struct {
	WorkerID int
	State    worker.StateType
	Stats    worker.Stats
	LastErr  error
}

// Snapshot is a point-in-time view of the whole run, safe to hand to a
// render loop.
type Snapshot struct {
	TotalUnits int
	Completed  int
	Failed     int
	Elapsed    time.Duration
	Rate       float64 // completed units per second
	ETA        time.Duration
	Workers    []Progress
	Pending    []PendingCheckpoint
	Finished   bool
}

// Summary is the final report of a run.
type Summary struct {
	TotalUnits       int
	Completed        int
	Failed           int
	FailedIndices    []int
	MissingIndices   []int
	Duration         time.Duration
	WorkersSucceeded int
	WorkersFailed    int
}

// Success reports whether every unit in the manifest is accounted for
// as completed.
func (s Summary) Success() bool {
	return len(s.MissingIndices) == 0 && len(s.FailedIndices) == 0
}

// Coordinator runs one conversion pass. Create with New, start with
// Run, and observe with Snapshot and ConfirmCheckpoint from other
// goroutines.
type Coordinator struct {
	cfg  Config
	gate *CheckpointGate

	mu       sync.Mutex
	started  time.Time
	assigned int
	progress map[int]*Progress
	finished bool
}

// New creates a coordinator. Zero-valued settings fall back to
// defaults matching a cautious single-machine run.
func New(cfg Config) *Coordinator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > MaxWorkers {
		cfg.Workers = MaxWorkers
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = budget.DefaultThreshold
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSimultaneous
	}
	if cfg.StaggerDelay <= 0 {
		cfg.StaggerDelay = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}

	c := &Coordinator{
		cfg:      cfg,
		gate:     NewCheckpointGate(),
		progress: make(map[int]*Progress),
	}
	if c.cfg.Checkpoints == nil {
		c.cfg.Checkpoints = c.gate
	}
	return c
}

// ConfirmCheckpoint releases the named worker from its checkpoint.
func (c *Coordinator) ConfirmCheckpoint(workerID int) bool {
	return c.gate.Confirm(workerID)
}

// ConfirmAllCheckpoints releases every parked worker.
func (c *Coordinator) ConfirmAllCheckpoints() int {
	return c.gate.ConfirmAll()
}

// Run converts the given chunks and blocks until every worker has
// reached a terminal state. It returns the run summary; worker-level
// failures are reported there rather than as an error.
func (c *Coordinator) Run(ctx context.Context, chunks []book.Chunk) (Summary, error) {
	if len(chunks) == 0 {
		return c.summarize(0), nil
	}

	assignments := book.Distribute(chunks, c.cfg.Workers)

	c.mu.Lock()
	c.started = time.Now()
	c.assigned = len(chunks)
	c.finished = false
	c.progress = make(map[int]*Progress, len(assignments))
	for i, a := range assignments {
		id := i + 1
		c.progress[id] = &Progress{
			WorkerID: id,
			State:    worker.StateIdle,
			Stats:    worker.Stats{Assigned: len(a)},
		}
	}
	c.mu.Unlock()

	log.Info("starting conversion",
		"units", len(chunks), "workers", len(assignments),
		"mode", c.cfg.Mode, "threshold", c.cfg.Threshold)

	events := make(chan worker.Event, 64)
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for ev := range events {
			c.observe(ev)
		}
	}()

	sessions := make([]*worker.Session, len(assignments))
	for i, a := range assignments {
		sessions[i] = worker.New(worker.Config{
			ID:            i + 1,
			Voice:         c.cfg.Voice,
			Assignment:    a,
			Sender:        c.cfg.Sender,
			Budget:        budget.New(c.cfg.Threshold),
			Manifest:      c.cfg.Manifest,
			Store:         c.cfg.Store,
			Checkpoints:   c.cfg.Checkpoints,
			Events:        events,
			RequestDelay:  c.cfg.RequestDelay,
			RetryAttempts: c.cfg.RetryAttempts,
			RetryDelay:    c.cfg.RetryDelay,
		})
	}

	c.launch(ctx, sessions)

	close(events)
	<-collectorDone

	c.mu.Lock()
	c.finished = true
	duration := time.Since(c.started)
	c.mu.Unlock()

	summary := c.summarize(duration)
	log.Info("conversion finished",
		"completed", summary.Completed, "failed", summary.Failed,
		"missing", len(summary.MissingIndices), "duration", duration.Round(time.Second))
	return summary, ctx.Err()
}

// launch starts sessions per the configured mode and waits for all of
// them. Session errors surface as EventFatal through the collector.
func (c *Coordinator) launch(ctx context.Context, sessions []*worker.Session) {
	switch c.cfg.Mode {
	case ModeBatched:
		for start := 0; start < len(sessions); start += c.cfg.BatchSize {
			end := start + c.cfg.BatchSize
			if end > len(sessions) {
				end = len(sessions)
			}
			c.runGroup(ctx, sessions[start:end], 0)
			if ctx.Err() != nil {
				return
			}
		}

	case ModeStaggered:
		c.runGroup(ctx, sessions, c.cfg.StaggerDelay)

	default:
		c.runGroup(ctx, sessions, 0)
	}
}

func (c *Coordinator) runGroup(ctx context.Context, sessions []*worker.Session, stagger time.Duration) {
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(slot int, s *worker.Session) {
			defer wg.Done()

			if stagger > 0 && slot > 0 {
				select {
				case <-time.After(time.Duration(slot) * stagger):
				case <-ctx.Done():
					return
				}
			}

			// The session reports its own outcome through events.
			_ = s.Run(ctx)
		}(i, s)
	}
	wg.Wait()
}

// observe folds one worker event into the progress table.
func (c *Coordinator) observe(ev worker.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.progress[ev.WorkerID]
	if !ok {
		p = &Progress{WorkerID: ev.WorkerID}
		c.progress[ev.WorkerID] = p
	}

	p.Stats = ev.Stats

	switch ev.Kind {
	case worker.EventStarted, worker.EventCheckpointCleared,
		worker.EventUnitCompleted, worker.EventUnitFailed:
		p.State = worker.StateWorking
	case worker.EventAwaitingCheckpoint:
		p.State = worker.StateAwaitingCheckpoint
	case worker.EventDone:
		p.State = worker.StateDone
	case worker.EventFatal:
		p.State = worker.StateFailed
		p.LastErr = ev.Err
	}

	if ev.Kind == worker.EventUnitFailed {
		p.LastErr = ev.Err
	}
}

// Snapshot returns the current progress view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		TotalUnits: c.assigned,
		Finished:   c.finished,
		Workers:    make([]Progress, 0, len(c.progress)),
	}
	if !c.started.IsZero() {
		snap.Elapsed = time.Since(c.started)
	}

	for _, p := range c.progress {
		snap.Completed += p.Stats.Completed
		snap.Failed += p.Stats.Failed
		snap.Workers = append(snap.Workers, *p)
	}
	sort.Slice(snap.Workers, func(i, j int) bool {
		return snap.Workers[i].WorkerID < snap.Workers[j].WorkerID
	})

	if snap.Elapsed > 0 && snap.Completed > 0 {
		snap.Rate = float64(snap.Completed) / snap.Elapsed.Seconds()
		remaining := snap.TotalUnits - snap.Completed - snap.Failed
		if remaining > 0 {
			snap.ETA = time.Duration(float64(remaining) / snap.Rate * float64(time.Second))
		}
	}

	snap.Pending = c.gate.Pending()
	return snap
}

func (c *Coordinator) summarize(duration time.Duration) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		TotalUnits:     c.cfg.Manifest.Total(),
		Completed:      len(c.cfg.Manifest.Completed()),
		FailedIndices:  c.cfg.Manifest.Failed(),
		MissingIndices: c.cfg.Manifest.Missing(),
		Duration:       duration,
	}
	s.Failed = len(s.FailedIndices)

	for _, p := range c.progress {
		switch p.State {
		case worker.StateDone:
			s.WorkersSucceeded++
		case worker.StateFailed:
			s.WorkersFailed++
		}
	}
	return s
}
