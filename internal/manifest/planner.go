package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/store"
)

// Plan is the result of resume analysis: the manifest for the run plus
// the chunks still needing conversion, in index order.
type Plan struct {
	Manifest *Manifest
	Missing  []book.Chunk

	// Resumed is true when prior progress was found, either in a
	// manifest or by scanning artifacts.
	Resumed bool

	// RetryFailed holds the indices that were marked failed in a prior
	// run and are being re-attempted now.
	RetryFailed []int
}

// Resume builds a Plan for converting chunks into dir. The manifest is
// authoritative when present and healthy; when it is absent the run
// directory is scanned for existing artifacts and a fresh manifest is
// seeded from what is found. A corrupt manifest aborts resume so the
// operator can decide between repairing it and starting fresh.
//
// With retryFailed set, indices the prior run marked permanently failed
// are cleared and included in the missing set.
func Resume(dir string, chunks []book.Chunk, dst *store.Dir, retryFailed bool) (*Plan, error) {
	m, err := Load(dir)
	switch {
	case err == nil:
		if m.Total() != len(chunks) {
			return nil, fmt.Errorf("%w: manifest covers %d units but input has %d", ErrCorrupt, m.Total(), len(chunks))
		}

	case os.IsNotExist(err):
		return planFromScan(dir, chunks, dst)

	case errors.Is(err, ErrCorrupt):
		return nil, err

	default:
		return nil, err
	}

	p := &Plan{Manifest: m}
	if len(m.Completed()) > 0 || len(m.Failed()) > 0 {
		p.Resumed = true
	}

	if retryFailed {
		p.RetryFailed = m.Failed()
		if len(p.RetryFailed) > 0 {
			if err := m.ForgetFailed(p.RetryFailed); err != nil {
				return nil, err
			}
			log.Info("re-attempting previously failed units", "count", len(p.RetryFailed))
		}
	}

	p.Missing = pick(chunks, m.Missing())
	return p, nil
}

// Fresh builds a Plan that ignores any prior progress: a new manifest
// covering every chunk.
func Fresh(dir string, chunks []book.Chunk) (*Plan, error) {
	m, err := Create(dir, len(chunks))
	if err != nil {
		return nil, err
	}
	return &Plan{Manifest: m, Missing: chunks}, nil
}

// planFromScan reconstructs completion state from artifacts on disk
// when no manifest exists, then seeds a new manifest from the scan.
func planFromScan(dir string, chunks []book.Chunk, dst *store.Dir) (*Plan, error) {
	m, err := Create(dir, len(chunks))
	if err != nil {
		return nil, err
	}

	found := dst.ScanCompleted(chunks)
	if len(found) > 0 {
		log.Info("recovered prior progress from artifact scan", "found", len(found))
		if err := m.SeedCompleted(found); err != nil {
			return nil, err
		}
	}

	return &Plan{
		Manifest: m,
		Missing:  pick(chunks, m.Missing()),
		Resumed:  len(found) > 0,
	}, nil
}

// pick maps sorted indices back onto chunk values. Load guarantees
// chunks are sorted with dense indices, so position equals index.
func pick(chunks []book.Chunk, indices []int) []book.Chunk {
	out := make([]book.Chunk, 0, len(indices))
	for _, i := range indices {
		out = append(out, chunks[i])
	}
	return out
}
