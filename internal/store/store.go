// Package store persists converted audio artifacts in a run directory.
// Artifact names are deterministic functions of the chunk, so a later
// scan of the directory can reconstruct which chunks already completed.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgnsrekt/bookvox/internal/book"
)

// Dir is an audio artifact store rooted at one run directory. Writes
// are atomic (temp file + rename) so a crash mid-write never leaves a
// truncated artifact that a resume scan would mistake for a completed
// chunk.
type Dir struct {
	path string
}

// Open creates the run directory if needed and returns a store for it.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create output directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the run directory.
func (d *Dir) Path() string { return d.path }

// WriteChunk saves the audio for one chunk atomically.
func (d *Dir) WriteChunk(c book.Chunk, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("refusing to write empty artifact for chunk %d", c.Index)
	}

	target := filepath.Join(d.path, c.OutputName())
	tempPath := target + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("unable to create artifact: %w", err)
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("unable to write artifact: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("unable to close artifact: %w", closeErr)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("unable to finalize artifact: %w", err)
	}

	return nil
}

// HasChunk reports whether a non-empty artifact already exists for the
// chunk.
func (d *Dir) HasChunk(c book.Chunk) bool {
	info, err := os.Stat(filepath.Join(d.path, c.OutputName()))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// ScanCompleted returns the indices of chunks whose artifacts already
// exist in the run directory. It is the fallback source of completion
// state when no manifest survives.
func (d *Dir) ScanCompleted(chunks []book.Chunk) map[int]bool {
	completed := make(map[int]bool)
	for _, c := range chunks {
		if d.HasChunk(c) {
			completed[c.Index] = true
		}
	}
	return completed
}
