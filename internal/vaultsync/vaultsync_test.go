package vaultsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/geistfabrik/geistfabrik/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestSync_UpsertsRegularNotes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# Note A\n\nLinks to [[Note B]].\n")
	writeFile(t, dir, "b.md", "# Note B\n\nSome content.\n")

	s := newTestStore(t)
	sy := New(dir, s)
	ctx := context.Background()

	n, err := sy.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 files processed, got %d", n)
	}

	notes, err := s.AllNotes(ctx)
	if err != nil {
		t.Fatalf("AllNotes failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
}

func TestSync_SkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "content one")

	s := newTestStore(t)
	sy := New(dir, s)
	ctx := context.Background()

	if _, err := sy.Sync(ctx); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	n, err := sy.Sync(ctx)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 files reprocessed on unchanged sync, got %d", n)
	}
}

func TestSync_SplitsDateCollectionFiles(t *testing.T) {
	dir := t.TempDir()
	journal := "## 2025-01-01\nFirst entry.\n\n## 2025-01-02\nSecond entry.\n"
	writeFile(t, dir, "journal.md", journal)

	s := newTestStore(t)
	sy := New(dir, s)
	ctx := context.Background()

	if _, err := sy.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	notes, err := s.AllNotes(ctx)
	if err != nil {
		t.Fatalf("AllNotes failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 virtual notes from journal split, got %d", len(notes))
	}
	for _, n := range notes {
		if !n.IsVirtual {
			t.Errorf("expected virtual note, got %+v", n)
		}
	}
}

func TestSync_PrunesDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "keep me")
	writeFile(t, dir, "b.md", "drop me")

	s := newTestStore(t)
	sy := New(dir, s)
	ctx := context.Background()

	if _, err := sy.Sync(ctx); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "b.md")); err != nil {
		t.Fatalf("removing file: %v", err)
	}

	if _, err := sy.Sync(ctx); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	notes, err := s.AllNotes(ctx)
	if err != nil {
		t.Fatalf("AllNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Path != "a.md" {
		t.Errorf("expected only a.md to remain, got %+v", notes)
	}
}

func TestSync_NonDateCollectionStaysRegular(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Regular note\n\nJust prose, no date headings.\n")

	s := newTestStore(t)
	sy := New(dir, s)
	ctx := context.Background()

	if _, err := sy.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	notes, err := s.AllNotes(ctx)
	if err != nil {
		t.Fatalf("AllNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].IsVirtual {
		t.Fatalf("expected one regular note, got %+v", notes)
	}
}
