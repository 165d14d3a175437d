package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/budget"
	"github.com/dgnsrekt/bookvox/internal/engine"
)

const (
	// ProbeWorkers is the parallelism the safety probe exercises.
	ProbeWorkers = 2
	// ProbeUnits caps how many chunks the probe converts.
	ProbeUnits = 100
	// probeMinUnits is the smallest sample that can say anything.
	probeMinUnits = 10
	// probeMargin separates a per-session limit from a shared one: a
	// wall this far below the session's own threshold means the
	// remote is counting both workers against one quota.
	probeMargin = 50
)

// ErrSharedLimit reports that the probe saw a hard limit well before
// either worker reached its own checkpoint threshold, meaning the
// remote pools the quota across connections and parallel workers buy
// nothing. Callers should fall back to a single worker.
var ErrSharedLimit = errors.New("remote rate limit is shared across workers")

// ErrProbeTooSmall reports that too few chunks remain for the probe to
// be meaningful.
var ErrProbeTooSmall = errors.New("not enough units for a meaningful safety probe")

// ProbeReport sums up what the safety probe converted.
type ProbeReport struct {
	Units     int
	Completed int
	Duration  time.Duration
}

// Probe runs a pre-flight safety test: two workers convert up to
// ProbeUnits real chunks with no retries. Everything converted counts
// toward the run; probe work is never thrown away. Probe returns
// ErrSharedLimit when parallel sessions trip one pooled quota.
func (c *Coordinator) Probe(ctx context.Context, chunks []book.Chunk) (*ProbeReport, error) {
	if len(chunks) < probeMinUnits {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrProbeTooSmall, len(chunks), probeMinUnits)
	}

	sample := chunks
	if len(sample) > ProbeUnits {
		sample = sample[:ProbeUnits]
	}
	assignments := book.Distribute(sample, ProbeWorkers)

	log.Info("running safety probe", "units", len(sample), "workers", ProbeWorkers)
	started := time.Now()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		completed  int
		sharedSeen bool
		fatal      error
	)

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, a := range assignments {
		wg.Add(1)
		go func(id int, assignment []book.Chunk) {
			defer wg.Done()

			b := budget.New(c.cfg.Threshold)
			limiter := rate.NewLimiter(rate.Every(c.probeDelay()), 1)

			for _, chunk := range assignment {
				if err := limiter.Wait(probeCtx); err != nil {
					return
				}

				data, err := c.cfg.Sender.Send(probeCtx, chunk.Text, c.cfg.Voice)
				if err != nil {
					if engine.IsHardLimit(err) {
						if b.SinceCheckpoint() < probeMargin {
							mu.Lock()
							sharedSeen = true
							mu.Unlock()
							cancel()
							return
						}
						// The worker earned its own wall; the probe has
						// learned what it needed about this session.
						return
					}
					if probeCtx.Err() != nil {
						return
					}
					// No retries during the probe. A flaky unit stays
					// missing for the main run.
					log.Debug("probe send failed", "probe_worker", id, "index", chunk.Index, "err", err)
					continue
				}

				if err := c.cfg.Store.WriteChunk(chunk, data); err != nil {
					mu.Lock()
					fatal = err
					mu.Unlock()
					cancel()
					return
				}
				if err := c.cfg.Manifest.MarkCompleted(chunk.Index); err != nil {
					mu.Lock()
					fatal = err
					mu.Unlock()
					cancel()
					return
				}

				b.RecordSuccess()
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}(i+1, a)
	}

	wg.Wait()

	report := &ProbeReport{
		Units:     len(sample),
		Completed: completed,
		Duration:  time.Since(started),
	}

	switch {
	case fatal != nil:
		return report, fatal
	case sharedSeen:
		log.Warn("safety probe detected a shared rate limit; falling back is advised",
			"completed", completed)
		return report, ErrSharedLimit
	case ctx.Err() != nil:
		return report, ctx.Err()
	}

	log.Info("safety probe passed", "completed", completed, "duration", report.Duration.Round(time.Second))
	return report, nil
}

func (c *Coordinator) probeDelay() time.Duration {
	if c.cfg.RequestDelay > 0 {
		return c.cfg.RequestDelay
	}
	return 500 * time.Millisecond
}
