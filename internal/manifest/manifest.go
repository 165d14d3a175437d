// Package manifest keeps the durable record of which chunk indices
// have completed, which permanently failed, and by subtraction which
// are still missing. The manifest is the only state that
// survives a process restart and is the sole basis for resuming an
// interrupted run.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileName is the manifest's name inside a run directory.
const FileName = "manifest.json"

// ErrCorrupt marks a manifest that cannot be trusted: unreadable,
// unparsable, or internally inconsistent. Corruption is fatal for
// resume purposes only; a fresh run can always proceed by treating
// every chunk as missing.
var ErrCorrupt = errors.New("manifest is corrupt")

// Manifest records per-index completion state for one run directory.
// One Manifest value is shared by every worker in a run; all mutation
// is serialized through its internal mutex and every mark is persisted
// before the method returns, so a concurrent update can never be lost
// to a blind whole-file overwrite.
type Manifest struct {
	mu        sync.Mutex
	path      string
	total     int
	completed map[int]struct{}
	failed    map[int]struct{}
}

type manifestFile struct {
	TotalUnits int   `json:"total_units"`
	Completed  []int `json:"completed"`
	Failed     []int `json:"failed"`
}

// Create makes a fresh manifest for a run over total chunks and writes
// it to dir immediately.
func Create(dir string, total int) (*Manifest, error) {
	m := &Manifest{
		path:      filepath.Join(dir, FileName),
		total:     total,
		completed: make(map[int]struct{}),
		failed:    make(map[int]struct{}),
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads an existing manifest from dir. It returns an error
// wrapping ErrCorrupt when the file exists but cannot be trusted, and
// os.ErrNotExist when there is no manifest at all.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var f manifestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if f.TotalUnits <= 0 {
		return nil, fmt.Errorf("%w: total_units = %d", ErrCorrupt, f.TotalUnits)
	}

	m := &Manifest{
		path:      path,
		total:     f.TotalUnits,
		completed: make(map[int]struct{}, len(f.Completed)),
		failed:    make(map[int]struct{}, len(f.Failed)),
	}

	for _, i := range f.Completed {
		if i < 0 || i >= f.TotalUnits {
			return nil, fmt.Errorf("%w: completed index %d out of range", ErrCorrupt, i)
		}
		m.completed[i] = struct{}{}
	}
	for _, i := range f.Failed {
		if i < 0 || i >= f.TotalUnits {
			return nil, fmt.Errorf("%w: failed index %d out of range", ErrCorrupt, i)
		}
		if _, ok := m.completed[i]; ok {
			return nil, fmt.Errorf("%w: index %d is both completed and failed", ErrCorrupt, i)
		}
		m.failed[i] = struct{}{}
	}

	return m, nil
}

// MarkCompleted records index as completed and persists the manifest.
// A previously failed index that later completes (on a resumed run) is
// promoted out of the failed set.
func (m *Manifest) MarkCompleted(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= m.total {
		return fmt.Errorf("index %d out of range 0..%d", index, m.total-1)
	}

	m.completed[index] = struct{}{}
	delete(m.failed, index)
	return m.save()
}

// MarkFailed records index as permanently failed and persists the
// manifest. Completed indices are never demoted.
func (m *Manifest) MarkFailed(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= m.total {
		return fmt.Errorf("index %d out of range 0..%d", index, m.total-1)
	}
	if _, ok := m.completed[index]; ok {
		return nil
	}

	m.failed[index] = struct{}{}
	return m.save()
}

// ForgetFailed clears the failed marks for the given indices so a
// resumed run can re-attempt them.
func (m *Manifest) ForgetFailed(indices []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, i := range indices {
		delete(m.failed, i)
	}
	return m.save()
}

// SeedCompleted records a set of already-completed indices discovered
// outside the manifest (an artifact scan) in one persisted write.
func (m *Manifest) SeedCompleted(indices map[int]bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ok := range indices {
		if ok && i >= 0 && i < m.total {
			m.completed[i] = struct{}{}
			delete(m.failed, i)
		}
	}
	return m.save()
}

// Total returns the total number of chunks in the run.
func (m *Manifest) Total() int { return m.total }

// IsCompleted reports whether index has completed.
func (m *Manifest) IsCompleted(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.completed[index]
	return ok
}

// Completed returns the sorted completed indices.
func (m *Manifest) Completed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.completed)
}

// Failed returns the sorted permanently-failed indices.
func (m *Manifest) Failed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.failed)
}

// Missing returns the sorted indices that are neither completed nor
// failed. The completed, failed, and missing sets are pairwise
// disjoint and together cover 0..total-1.
func (m *Manifest) Missing() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	missing := make([]int, 0, m.total-len(m.completed)-len(m.failed))
	for i := 0; i < m.total; i++ {
		if _, ok := m.completed[i]; ok {
			continue
		}
		if _, ok := m.failed[i]; ok {
			continue
		}
		missing = append(missing, i)
	}
	return missing
}

// save persists the manifest via temp file + rename. Callers must hold
// the mutex.
func (m *Manifest) save() error {
	f := manifestFile{
		TotalUnits: m.total,
		Completed:  sortedKeys(m.completed),
		Failed:     sortedKeys(m.failed),
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode manifest: %w", err)
	}

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("unable to create manifest: %w", err)
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("unable to write manifest: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("unable to close manifest: %w", closeErr)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("unable to finalize manifest: %w", err)
	}

	return nil
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
