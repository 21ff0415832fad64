package embedtext

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// fakeEmbedder returns a deterministic vector per text (sum of byte values
// spread across dims) so tests can assert on cache hits vs. misses without
// a real model.
type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) ModelName() string { return "fake-v1" }
func (f *fakeEmbedder) Dimensions() int   { return SemanticDims }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string{}, texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, SemanticDims)
		var sum float32
		for _, b := range []byte(t) {
			sum += float32(b)
		}
		vec[0] = sum
		out[i] = vec
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCombineSessionVector_Dimensions(t *testing.T) {
	semantic := make([]float32, SemanticDims)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	vec := CombineSessionVector(semantic, created, session)
	if len(vec) != SessionDims {
		t.Fatalf("expected %d dims, got %d", SessionDims, len(vec))
	}
}

func TestCombineSessionVector_WeightsApplied(t *testing.T) {
	semantic := make([]float32, SemanticDims)
	semantic[0] = 1.0
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	session := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	vec := CombineSessionVector(semantic, created, session)
	if math.Abs(float64(vec[0])-0.9) > 1e-6 {
		t.Errorf("expected semantic[0]*0.9 = 0.9, got %v", vec[0])
	}
	// age_years should be ~0 for same-day session, scaled by 0.1.
	if math.Abs(float64(vec[SemanticDims])) > 0.01 {
		t.Errorf("expected age_years feature near 0, got %v", vec[SemanticDims])
	}
}

func TestComputer_CacheHitsAndMisses(t *testing.T) {
	s := newTestStore(t)
	embedder := &fakeEmbedder{}
	c := New(embedder, s)
	ctx := context.Background()

	notes := []model.Note{
		{Path: "a.md", Content: "hello", Created: time.Now()},
		{Path: "b.md", Content: "world", Created: time.Now()},
	}
	sessionID, err := s.GetOrCreateSession(ctx, "2026-01-01")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	sessionDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	stats, err := c.ComputeSessionEmbeddings(ctx, notes, sessionID, sessionDate)
	if err != nil {
		t.Fatalf("ComputeSessionEmbeddings: %v", err)
	}
	if stats.Hits != 0 || stats.Misses != 2 {
		t.Errorf("expected 2 misses on first compute, got %+v", stats)
	}

	// Second pass over the same notes should be all cache hits.
	stats, err = c.ComputeSessionEmbeddings(ctx, notes, sessionID, sessionDate)
	if err != nil {
		t.Fatalf("ComputeSessionEmbeddings (2nd): %v", err)
	}
	if stats.Hits != 2 || stats.Misses != 0 {
		t.Errorf("expected 2 hits on second compute, got %+v", stats)
	}

	all, err := s.AllSessionEmbeddings(ctx, sessionID)
	if err != nil {
		t.Fatalf("AllSessionEmbeddings: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 session vectors, got %d", len(all))
	}
	for path, vec := range all {
		if len(vec) != SessionDims {
			t.Errorf("note %q: expected %d dims, got %d", path, SessionDims, len(vec))
		}
	}
}

func TestComputer_ContentChangeInvalidatesCache(t *testing.T) {
	s := newTestStore(t)
	embedder := &fakeEmbedder{}
	c := New(embedder, s)
	ctx := context.Background()

	sessionID, _ := s.GetOrCreateSession(ctx, "2026-01-01")
	sessionDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	n := model.Note{Path: "a.md", Content: "version one", Created: time.Now()}
	if _, err := c.ComputeSessionEmbeddings(ctx, []model.Note{n}, sessionID, sessionDate); err != nil {
		t.Fatalf("first compute: %v", err)
	}
	if len(embedder.calls) != 1 {
		t.Fatalf("expected 1 embed call, got %d", len(embedder.calls))
	}

	n.Content = "version two"
	stats, err := c.ComputeSessionEmbeddings(ctx, []model.Note{n}, sessionID, sessionDate)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if stats.Misses != 1 {
		t.Errorf("expected content change to force a cache miss, got %+v", stats)
	}
}

func TestParseEmbedFlag_ProviderDefaults(t *testing.T) {
	cfg, err := ParseEmbedFlag("ollama/nomic-embed-text")
	if err != nil {
		t.Fatalf("ParseEmbedFlag: %v", err)
	}
	if cfg.Endpoint != "http://localhost:11434/v1/embeddings" {
		t.Errorf("unexpected ollama endpoint: %q", cfg.Endpoint)
	}
	if cfg.Model != "nomic-embed-text" {
		t.Errorf("unexpected model: %q", cfg.Model)
	}
}

func TestParseEmbedFlag_RejectsMalformed(t *testing.T) {
	if _, err := ParseEmbedFlag("no-slash-here"); err == nil {
		t.Error("expected error for missing slash")
	}
	if _, err := ParseEmbedFlag(""); err == nil {
		t.Error("expected error for empty flag")
	}
}

func TestHTTPConfig_ValidateRequiresAPIKeyExceptOllama(t *testing.T) {
	cfg := &HTTPConfig{Provider: "openai", Model: "text-embedding-3-small", Endpoint: "https://api.openai.com/v1/embeddings", MaxRetries: 3, TimeoutSecs: 60}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing API key")
	}

	ollamaCfg := &HTTPConfig{Provider: "ollama", Model: "nomic-embed-text", Endpoint: "http://localhost:11434/v1/embeddings", MaxRetries: 3, TimeoutSecs: 60}
	if err := ollamaCfg.Validate(); err != nil {
		t.Errorf("ollama should not require an API key: %v", err)
	}
}
