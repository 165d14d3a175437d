// Package worker runs one conversion session: a goroutine that works
// through an assigned slice of chunks, paces its requests, pauses at
// checkpoint boundaries, and reports progress to the coordinator over
// an event channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/budget"
	"github.com/dgnsrekt/bookvox/internal/engine"
	"github.com/dgnsrekt/bookvox/internal/manifest"
	"github.com/dgnsrekt/bookvox/internal/store"
)

const (
	// DefaultRetryAttempts bounds retries per chunk before it is
	// marked permanently failed.
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the pause between retries of one chunk.
	DefaultRetryDelay = 2 * time.Second
	// DefaultRequestDelay paces successive requests within a session.
	DefaultRequestDelay = 500 * time.Millisecond
)

// Checkpointer blocks a session at a checkpoint boundary until the
// operator has confirmed that the session may continue.
type Checkpointer interface {
	Wait(ctx context.Context, workerID int, stats Stats) error
}

// Config assembles a session's collaborators. Budget is owned
// exclusively by the session; Manifest and Store are shared and
// internally synchronized.
type Config struct {
	ID         int
	Voice      string
	Assignment []book.Chunk

	Sender      engine.Sender
	Budget      *budget.Budget
	Manifest    *manifest.Manifest
	Store       *store.Dir
	Checkpoints Checkpointer
	Events      chan<- Event

	RequestDelay  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Session converts one assignment of chunks. Create with New and drive
// with Run from a single goroutine.
type Session struct {
	cfg Config
	sm  *StateMachine

	completed int
	failed    int
}

// New creates a session, filling zero-valued pacing and retry settings
// with defaults.
func New(cfg Config) *Session {
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = DefaultRequestDelay
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	return &Session{cfg: cfg, sm: NewStateMachine()}
}

// State returns the session's current state. Only meaningful from the
// goroutine driving Run.
func (s *Session) State() StateType {
	return s.sm.Current()
}

// Run works through the assignment until it is exhausted, the context
// is canceled, or a fatal error occurs. It always drives the state
// machine to a terminal state before returning.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d panicked: %v", s.cfg.ID, r)
		}
		if err != nil && !s.sm.Current().Terminal() {
			s.sm.Transition(StateFailed)
			s.emit(Event{Kind: EventFatal, Index: -1, Err: err})
		}
	}()

	s.sm.Transition(StateWorking)
	s.emit(Event{Kind: EventStarted, Index: -1})
	log.Debug("worker started", "worker", s.cfg.ID, "assigned", len(s.cfg.Assignment))

	limiter := rate.NewLimiter(rate.Every(s.cfg.RequestDelay), 1)

	for _, chunk := range s.cfg.Assignment {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		if err := s.convert(ctx, chunk); err != nil {
			return err
		}

		if s.cfg.Budget.ShouldCheckpoint() {
			if err := s.awaitCheckpoint(ctx); err != nil {
				return err
			}
		}
	}

	s.sm.Transition(StateDone)
	s.emit(Event{Kind: EventDone, Index: -1})
	log.Debug("worker finished", "worker", s.cfg.ID, "completed", s.completed, "failed", s.failed)
	return nil
}

// convert sends one chunk with retries and records the outcome. A
// chunk that exhausts its retries is marked failed and the session
// moves on; only manifest or store write errors are fatal.
func (s *Session) convert(ctx context.Context, chunk book.Chunk) error {
	data, err := s.sendWithRetry(ctx, chunk)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Error("unit failed permanently",
			"worker", s.cfg.ID, "index", chunk.Index,
			"text", chunk.Preview(32), "err", err)
		if merr := s.cfg.Manifest.MarkFailed(chunk.Index); merr != nil {
			return fmt.Errorf("recording failure of unit %d: %w", chunk.Index, merr)
		}
		s.failed++
		s.emit(Event{Kind: EventUnitFailed, Index: chunk.Index, Err: err})
		return nil
	}

	if err := s.cfg.Store.WriteChunk(chunk, data); err != nil {
		return fmt.Errorf("writing unit %d: %w", chunk.Index, err)
	}
	if err := s.cfg.Manifest.MarkCompleted(chunk.Index); err != nil {
		return fmt.Errorf("recording unit %d: %w", chunk.Index, err)
	}

	s.cfg.Budget.RecordSuccess()
	s.completed++
	s.emit(Event{Kind: EventUnitCompleted, Index: chunk.Index})
	return nil
}

// sendWithRetry attempts one chunk up to the retry bound. A hard limit
// reply routes through a checkpoint without consuming an attempt,
// because the wall says nothing about this particular chunk.
func (s *Session) sendWithRetry(ctx context.Context, chunk book.Chunk) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		data, err := s.cfg.Sender.Send(ctx, chunk.Text, s.cfg.Voice)
		if err == nil {
			return data, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		if engine.IsHardLimit(err) {
			log.Warn("hard limit hit mid-assignment",
				"worker", s.cfg.ID, "index", chunk.Index,
				"since_checkpoint", s.cfg.Budget.SinceCheckpoint())
			if cerr := s.awaitCheckpoint(ctx); cerr != nil {
				return nil, cerr
			}
			attempt--
			continue
		}

		lastErr = err
		log.Debug("send failed, retrying",
			"worker", s.cfg.ID, "index", chunk.Index,
			"attempt", attempt, "err", err)

		if attempt < s.cfg.RetryAttempts {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", s.cfg.RetryAttempts, lastErr)
}

// awaitCheckpoint parks the session until the operator confirms the
// checkpoint, then resets the budget window and resumes.
func (s *Session) awaitCheckpoint(ctx context.Context) error {
	s.sm.Transition(StateAwaitingCheckpoint)
	s.emit(Event{Kind: EventAwaitingCheckpoint, Index: -1})
	log.Warn("worker awaiting checkpoint",
		"worker", s.cfg.ID, "since_checkpoint", s.cfg.Budget.SinceCheckpoint())

	if err := s.cfg.Checkpoints.Wait(ctx, s.cfg.ID, s.stats()); err != nil {
		return err
	}

	s.cfg.Budget.RecordCheckpointCompleted()
	s.sm.Transition(StateWorking)
	s.emit(Event{Kind: EventCheckpointCleared, Index: -1})
	return nil
}

func (s *Session) stats() Stats {
	return Stats{
		Assigned:        len(s.cfg.Assignment),
		Completed:       s.completed,
		Failed:          s.failed,
		TotalRequests:   s.cfg.Budget.Total(),
		SinceCheckpoint: s.cfg.Budget.SinceCheckpoint(),
	}
}

func (s *Session) emit(ev Event) {
	ev.WorkerID = s.cfg.ID
	ev.Stats = s.stats()
	if s.cfg.Events != nil {
		s.cfg.Events <- ev
	}
}
