package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/bookvox/internal/book"
	"github.com/dgnsrekt/bookvox/internal/store"
)

func makeChunks(n int) []book.Chunk {
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

func TestResumeFromManifest(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(8)

	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	m, err := Create(dir, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, i := range []int{0, 1, 2} {
		if err := m.MarkCompleted(i); err != nil {
			t.Fatalf("MarkCompleted(%d): %v", i, err)
		}
	}
	if err := m.MarkFailed(5); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	plan, err := Resume(dir, chunks, dst, false)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !plan.Resumed {
		t.Error("Resumed = false, want true")
	}

	want := []int{3, 4, 6, 7}
	if len(plan.Missing) != len(want) {
		t.Fatalf("len(Missing) = %d, want %d", len(plan.Missing), len(want))
	}
	for i, c := range plan.Missing {
		if c.Index != want[i] {
			t.Errorf("Missing[%d].Index = %d, want %d", i, c.Index, want[i])
		}
	}
}

func TestResumeRetryFailed(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(6)

	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	m, err := Create(dir, 6)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.MarkCompleted(0); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := m.MarkFailed(2); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := m.MarkFailed(4); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	plan, err := Resume(dir, chunks, dst, true)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if len(plan.RetryFailed) != 2 {
		t.Fatalf("RetryFailed = %v, want [2 4]", plan.RetryFailed)
	}
	// Failed indices rejoin the missing set.
	want := []int{1, 2, 3, 4, 5}
	if len(plan.Missing) != len(want) {
		t.Fatalf("len(Missing) = %d, want %d", len(plan.Missing), len(want))
	}
	for i, c := range plan.Missing {
		if c.Index != want[i] {
			t.Errorf("Missing[%d].Index = %d, want %d", i, c.Index, want[i])
		}
	}
	if got := plan.Manifest.Failed(); len(got) != 0 {
		t.Errorf("Manifest.Failed() = %v after retry reset, want empty", got)
	}
}

func TestResumeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(10)

	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if _, err := Create(dir, 10); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := Resume(dir, chunks, dst, false)
	if err != nil {
		t.Fatalf("first Resume: %v", err)
	}
	second, err := Resume(dir, chunks, dst, false)
	if err != nil {
		t.Fatalf("second Resume: %v", err)
	}

	if len(first.Missing) != len(second.Missing) {
		t.Errorf("plans differ: %d vs %d missing", len(first.Missing), len(second.Missing))
	}
}

func TestResumeFallsBackToArtifactScan(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(5)

	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	// Artifacts exist but there is no manifest.
	for _, i := range []int{0, 2} {
		if err := dst.WriteChunk(chunks[i], []byte("audio")); err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
	}

	plan, err := Resume(dir, chunks, dst, false)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !plan.Resumed {
		t.Error("Resumed = false, want true after artifact scan")
	}

	want := []int{1, 3, 4}
	if len(plan.Missing) != len(want) {
		t.Fatalf("len(Missing) = %d, want %d", len(plan.Missing), len(want))
	}
	for i, c := range plan.Missing {
		if c.Index != want[i] {
			t.Errorf("Missing[%d].Index = %d, want %d", i, c.Index, want[i])
		}
	}

	// The scan seeds a manifest so the next resume is manifest-first.
	if _, err := Load(dir); err != nil {
		t.Errorf("Load after scan-seeded resume: %v", err)
	}
}

func TestResumeRejectsCorruptManifest(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(3)

	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err = Resume(dir, chunks, dst, false)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Resume() error = %v, want ErrCorrupt", err)
	}
}

func TestResumeRejectsTotalMismatch(t *testing.T) {
	dir := t.TempDir()

	dst, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if _, err := Create(dir, 4); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = Resume(dir, makeChunks(7), dst, false)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Resume() with mismatched totals = %v, want ErrCorrupt", err)
	}
}

func TestFreshIgnoresPriorProgress(t *testing.T) {
	dir := t.TempDir()
	chunks := makeChunks(4)

	m, err := Create(dir, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.MarkCompleted(0); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	plan, err := Fresh(dir, chunks)
	if err != nil {
		t.Fatalf("Fresh: %v", err)
	}
	if plan.Resumed {
		t.Error("Resumed = true, want false for fresh plan")
	}
	if len(plan.Missing) != 4 {
		t.Errorf("len(Missing) = %d, want 4", len(plan.Missing))
	}
}
