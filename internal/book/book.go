// Package book defines the unit of conversion work: one bounded chunk
// of text with a stable ordinal that determines its place in the final
// audiobook. Chunks arrive pre-split from an external chunking stage;
// this package only loads, validates, and partitions them.
package book

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Common errors for chunk loading.
var (
	ErrNoChunks       = errors.New("no chunks found in input")
	ErrSparseIndices  = errors.New("chunk indices are not dense over 0..N-1")
	ErrDuplicateIndex = errors.New("duplicate chunk index")
	ErrEmptyChunkText = errors.New("chunk has empty text")
	ErrMissingChapter = errors.New("chunk has no chapter identifier")
)

// Chunk is one atomic piece of input text and its target output slot.
// The Index is globally unique, dense over 0..N-1, and defines the
// final ordering regardless of which worker converts the chunk or in
// which order conversions complete. A Chunk is never mutated after
// loading.
type Chunk struct {
	Index   int    `json:"index"`
	Chapter string `json:"chapter"`
	Text    string `json:"text"`
}

// OutputName returns the deterministic artifact filename for the chunk.
// The name is a pure function of (Chapter, Index) so that resume scans
// can reconstruct completion state from the output directory alone.
func (c Chunk) OutputName() string {
	return fmt.Sprintf("%s-chunk-%d.mp3", c.Chapter, c.Index)
}

// Preview returns the first n runes of the chunk text for display.
func (c Chunk) Preview(n int) string {
	runes := []rune(c.Text)
	if len(runes) <= n {
		return c.Text
	}
	return string(runes[:n]) + "..."
}

// Load reads an ordered JSON array of chunks from path and validates
// the input contract: indices unique and dense over 0..N-1, non-empty
// text, and a chapter identifier on every chunk. The returned slice is
// sorted by index.
func Load(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read chunk file: %w", err)
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("unable to parse chunk file: %w", err)
	}

	if err := Validate(chunks); err != nil {
		return nil, err
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})

	return chunks, nil
}

// Validate checks the input contract on a chunk list.
func Validate(chunks []Chunk) error {
	if len(chunks) == 0 {
		return ErrNoChunks
	}

	seen := make(map[int]bool, len(chunks))
	for _, c := range chunks {
		if c.Index < 0 || c.Index >= len(chunks) {
			return fmt.Errorf("%w: index %d out of range for %d chunks", ErrSparseIndices, c.Index, len(chunks))
		}
		if seen[c.Index] {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, c.Index)
		}
		seen[c.Index] = true

		if c.Text == "" {
			return fmt.Errorf("%w: index %d", ErrEmptyChunkText, c.Index)
		}
		if c.Chapter == "" {
			return fmt.Errorf("%w: index %d", ErrMissingChapter, c.Index)
		}
	}

	return nil
}
