package store

import (
	"context"
	"testing"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStoreCreatesTables(t *testing.T) {
	s := newTestStore(t)

	tables := []string{"notes", "links", "tags", "embeddings", "sessions",
		"session_embeddings", "session_suggestions", "ann_path_mapping"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestSchemaVersion(t *testing.T) {
	s := newTestStore(t)

	v, err := s.SchemaVersionOf()
	if err != nil {
		t.Fatalf("SchemaVersionOf failed: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, v)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := model.Note{
		Path:     "journal.md",
		Title:    "journal",
		Content:  "Some content with a [[Target Note]] link.",
		Created:  created,
		Modified: created,
		Links:    []model.Link{{Target: "Target Note", DisplayText: "target"}},
		Tags:     []string{"daily", "log"},
	}

	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	got, err := s.GetNote(ctx, "journal.md")
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if got.Title != "journal" {
		t.Errorf("expected title %q, got %q", "journal", got.Title)
	}
	if len(got.Links) != 1 || got.Links[0].Target != "Target Note" {
		t.Errorf("expected one link to Target Note, got %+v", got.Links)
	}
	if len(got.Tags) != 2 {
		t.Errorf("expected 2 tags, got %+v", got.Tags)
	}
}

func TestUpsertNoteReplacesLinksAndTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := model.Note{Path: "a.md", Title: "a", Created: time.Now(), Modified: time.Now(),
		Links: []model.Link{{Target: "b"}}, Tags: []string{"old"}}
	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	n.Links = nil
	n.Tags = []string{"new"}
	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := s.GetNote(ctx, "a.md")
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if len(got.Links) != 0 {
		t.Errorf("expected links cleared, got %+v", got.Links)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "new" {
		t.Errorf("expected tags [new], got %+v", got.Tags)
	}
}

func TestGetNoteNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetNote(context.Background(), "missing.md")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVirtualNoteFieldsPopulated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := model.Note{Path: "journal/2026-01-15", Title: "2026-01-15", Created: time.Now(), Modified: time.Now()}
	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	got, err := s.GetNote(ctx, "journal/2026-01-15")
	if err != nil {
		t.Fatalf("GetNote failed: %v", err)
	}
	if !got.IsVirtual {
		t.Error("expected IsVirtual true")
	}
	if got.SourceFile != "journal" {
		t.Errorf("expected source file %q, got %q", "journal", got.SourceFile)
	}
	if got.EntryDate.Format("2006-01-02") != "2026-01-15" {
		t.Errorf("expected entry date 2026-01-15, got %v", got.EntryDate)
	}
}

func TestAllNotesBatchLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"a.md", "b.md", "c.md"} {
		n := model.Note{Path: path, Title: path, Created: time.Now(), Modified: time.Now(),
			Links: []model.Link{{Target: "a.md"}}, Tags: []string{"x"}}
		if err := s.UpsertNote(ctx, n); err != nil {
			t.Fatalf("UpsertNote(%s) failed: %v", path, err)
		}
	}

	notes, err := s.AllNotes(ctx)
	if err != nil {
		t.Fatalf("AllNotes failed: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(notes))
	}
	for _, n := range notes {
		if len(n.Links) != 1 {
			t.Errorf("note %q: expected 1 link, got %d", n.Path, len(n.Links))
		}
		if len(n.Tags) != 1 {
			t.Errorf("note %q: expected 1 tag, got %d", n.Path, len(n.Tags))
		}
	}
}

func TestDeleteNotesNotIn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, path := range []string{"keep.md", "drop.md"} {
		n := model.Note{Path: path, Title: path, Created: time.Now(), Modified: time.Now()}
		if err := s.UpsertNote(ctx, n); err != nil {
			t.Fatalf("UpsertNote(%s) failed: %v", path, err)
		}
	}

	n, err := s.DeleteNotesNotIn(ctx, []string{"keep.md"})
	if err != nil {
		t.Fatalf("DeleteNotesNotIn failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row deleted, got %d", n)
	}

	if _, err := s.GetNote(ctx, "drop.md"); err != ErrNotFound {
		t.Errorf("expected drop.md removed, got err=%v", err)
	}
	if _, err := s.GetNote(ctx, "keep.md"); err != nil {
		t.Errorf("expected keep.md to remain, got err=%v", err)
	}
}

func TestCachedEmbeddingRoundTripAndStaleness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := model.Note{Path: "a.md", Title: "a", Created: time.Now(), Modified: time.Now()}
	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	vec := []float32{0.1, 0.2, 0.3}
	if err := s.UpsertCachedEmbedding(ctx, "a.md", vec, "model-v1:hash1"); err != nil {
		t.Fatalf("UpsertCachedEmbedding failed: %v", err)
	}

	got, err := s.GetCachedEmbedding(ctx, "a.md", "model-v1:hash1")
	if err != nil {
		t.Fatalf("GetCachedEmbedding failed: %v", err)
	}
	if len(got) != 3 || got[1] != 0.2 {
		t.Errorf("expected %v, got %v", vec, got)
	}

	_, err = s.GetCachedEmbedding(ctx, "a.md", "model-v1:hash2")
	if err != ErrStale {
		t.Errorf("expected ErrStale for changed hash, got %v", err)
	}

	_, err = s.GetCachedEmbedding(ctx, "missing.md", "model-v1:hash1")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound for missing path, got %v", err)
	}
}

func TestSessionEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := model.Note{Path: "a.md", Title: "a", Created: time.Now(), Modified: time.Now()}
	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	sessionID, err := s.GetOrCreateSession(ctx, "2026-07-30")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	sessionID2, err := s.GetOrCreateSession(ctx, "2026-07-30")
	if err != nil {
		t.Fatalf("GetOrCreateSession second call failed: %v", err)
	}
	if sessionID != sessionID2 {
		t.Errorf("expected idempotent session id, got %d and %d", sessionID, sessionID2)
	}

	vec := make([]float32, 387)
	vec[0] = 1.0
	if err := s.UpsertSessionEmbedding(ctx, sessionID, "a.md", vec); err != nil {
		t.Fatalf("UpsertSessionEmbedding failed: %v", err)
	}

	all, err := s.AllSessionEmbeddings(ctx, sessionID)
	if err != nil {
		t.Fatalf("AllSessionEmbeddings failed: %v", err)
	}
	if len(all["a.md"]) != 387 {
		t.Errorf("expected 387-dim vector, got %d", len(all["a.md"]))
	}

	if err := s.DeleteSessionEmbeddings(ctx, sessionID); err != nil {
		t.Fatalf("DeleteSessionEmbeddings failed: %v", err)
	}
	all, err = s.AllSessionEmbeddings(ctx, sessionID)
	if err != nil {
		t.Fatalf("AllSessionEmbeddings after delete failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no session embeddings after delete, got %d", len(all))
	}
}

func TestVaultStateHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sessionID, err := s.GetOrCreateSession(ctx, "2026-07-30")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	hash, err := s.VaultStateHash(ctx, sessionID)
	if err != nil {
		t.Fatalf("VaultStateHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash initially, got %q", hash)
	}

	if err := s.SetVaultStateHash(ctx, sessionID, "abc123"); err != nil {
		t.Fatalf("SetVaultStateHash failed: %v", err)
	}
	hash, err = s.VaultStateHash(ctx, sessionID)
	if err != nil {
		t.Fatalf("VaultStateHash failed: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected hash abc123, got %q", hash)
	}
}

func TestRecordAndFetchRecentSuggestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	asOf := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	old := SuggestionRecord{SessionDate: "2026-07-01", GeistID: "geist-a", SuggestionText: "old one", BlockID: "b1", CreatedAt: asOf}
	recent := SuggestionRecord{SessionDate: "2026-07-29", GeistID: "geist-a", SuggestionText: "recent one", BlockID: "b2", CreatedAt: asOf}
	other := SuggestionRecord{SessionDate: "2026-07-29", GeistID: "geist-b", SuggestionText: "other geist", BlockID: "b3", CreatedAt: asOf}

	for _, r := range []SuggestionRecord{old, recent, other} {
		if err := s.RecordSuggestion(ctx, r); err != nil {
			t.Fatalf("RecordSuggestion failed: %v", err)
		}
	}

	texts, err := s.RecentSuggestionTexts(ctx, asOf, 7)
	if err != nil {
		t.Fatalf("RecentSuggestionTexts failed: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("expected both in-window suggestions across geists, got %+v", texts)
	}
	want := map[string]bool{"recent one": true, "other geist": true}
	for _, txt := range texts {
		if !want[txt] {
			t.Errorf("unexpected suggestion text %q", txt)
		}
	}
}

func TestVecIDMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n := model.Note{Path: "a.md", Title: "a", Created: time.Now(), Modified: time.Now()}
	if err := s.UpsertNote(ctx, n); err != nil {
		t.Fatalf("UpsertNote failed: %v", err)
	}

	id1, err := s.GetOrCreateVecID(ctx, "a.md")
	if err != nil {
		t.Fatalf("GetOrCreateVecID failed: %v", err)
	}
	id2, err := s.GetOrCreateVecID(ctx, "a.md")
	if err != nil {
		t.Fatalf("GetOrCreateVecID second call failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected idempotent vec id, got %d and %d", id1, id2)
	}

	path, err := s.PathForVecID(ctx, id1)
	if err != nil {
		t.Fatalf("PathForVecID failed: %v", err)
	}
	if path != "a.md" {
		t.Errorf("expected a.md, got %q", path)
	}

	mappings, err := s.AllVecIDMappings(ctx)
	if err != nil {
		t.Fatalf("AllVecIDMappings failed: %v", err)
	}
	if mappings["a.md"] != id1 {
		t.Errorf("expected mapping a.md -> %d, got %d", id1, mappings["a.md"])
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	if got := CosineSimilarity(a, b); got < 0.999 {
		t.Errorf("expected ~1.0 for identical vectors, got %v", got)
	}

	c := []float32{0, 1, 0}
	if got := CosineSimilarity(a, c); got > 0.001 || got < -0.001 {
		t.Errorf("expected ~0.0 for orthogonal vectors, got %v", got)
	}

	zero := []float32{0, 0, 0}
	if got := CosineSimilarity(a, zero); got != 0 {
		t.Errorf("expected 0 for zero-magnitude vector, got %v", got)
	}
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	got := BytesToFloat32(Float32ToBytes(v))
	if len(got) != len(v) {
		t.Fatalf("expected length %d, got %d", len(v), len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: expected %v, got %v", i, v[i], got[i])
		}
	}
}
