package filter

import (
	"context"
	"testing"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
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

type fakeResolver struct{ known map[string]bool }

func (f fakeResolver) Resolves(target string) bool { return f.known[target] }

// hashEmbedder is a deterministic stand-in embedder: identical text yields
// identical vectors, and a couple of hand-picked strings are made to look
// "similar" via a shared prefix component, for exercising the threshold.
type hashEmbedder struct{ vectors map[string][]float32 }

func (h hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := h.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func suggestion(geistID, text string, notes ...string) model.Suggestion {
	return model.Suggestion{GeistID: geistID, Text: text, Notes: notes}
}

func TestFilterAll_BoundaryDropsUnknownReferences(t *testing.T) {
	p := NewPipeline(Config{Stages: []string{"boundary"}}, nil, nil, fakeResolver{known: map[string]bool{"Alpha": true}})
	in := []model.Suggestion{
		suggestion("g1", "links to Alpha", "Alpha"),
		suggestion("g1", "links to Ghost", "Ghost"),
	}
	out, err := p.FilterAll(context.Background(), in, time.Now())
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(out) != 1 || out[0].Text != "links to Alpha" {
		t.Errorf("unexpected survivors: %#v", out)
	}
}

func TestFilterAll_QualityRejectsTooShortAndDuplicates(t *testing.T) {
	p := NewPipeline(Config{Stages: []string{"quality"}, MinLength: 10, MaxLength: 2000}, nil, nil, nil)
	in := []model.Suggestion{
		suggestion("g1", "short", "a"),
		suggestion("g1", "a perfectly reasonable suggestion", "a"),
		suggestion("g1", "a perfectly reasonable suggestion", "a"),
		suggestion("", "has no geist id but long enough text", "a"),
	}
	out, err := p.FilterAll(context.Background(), in, time.Now())
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %#v", out)
	}
}

func TestFilterAll_NoveltyRejectsExactRepeatWithoutEmbedder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RecordSuggestion(ctx, store.SuggestionRecord{
		SessionDate: "2026-07-01", GeistID: "g1", SuggestionText: "an old idea", BlockID: "b1", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(Config{Stages: []string{"novelty"}, NoveltyWindowDays: 60}, s, nil, nil)
	in := []model.Suggestion{
		suggestion("g1", "an old idea"),
		suggestion("g1", "a fresh idea"),
	}
	out, err := p.FilterAll(ctx, in, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(out) != 1 || out[0].Text != "a fresh idea" {
		t.Errorf("unexpected survivors: %#v", out)
	}
}

func TestFilterAll_NoveltyScopesAcrossGeists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RecordSuggestion(ctx, store.SuggestionRecord{
		SessionDate: "2026-07-01", GeistID: "g1", SuggestionText: "shared idea", BlockID: "b1", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(Config{Stages: []string{"novelty"}, NoveltyWindowDays: 60}, s, nil, nil)
	in := []model.Suggestion{
		suggestion("g2", "shared idea"),
	}
	out, err := p.FilterAll(ctx, in, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected a different geist's repeat of another geist's text to be rejected, got %#v", out)
	}
}

func TestFilterAll_DiversityKeepsFirstOfSimilarPair(t *testing.T) {
	s := newTestStore(t)
	embedder := hashEmbedder{vectors: map[string][]float32{
		"first phrasing":  {1, 0, 0},
		"second phrasing": {1, 0, 0},
		"unrelated":       {0, 1, 0},
	}}
	p := NewPipeline(Config{Stages: []string{"diversity"}, SimilarityThreshold: 0.85}, s, embedder, nil)
	in := []model.Suggestion{
		suggestion("g1", "first phrasing"),
		suggestion("g1", "second phrasing"),
		suggestion("g1", "unrelated"),
	}
	out, err := p.FilterAll(context.Background(), in, time.Now())
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(out) != 2 || out[0].Text != "first phrasing" || out[1].Text != "unrelated" {
		t.Errorf("unexpected survivors: %#v", out)
	}
}

func TestFilterAll_FullPipelineOrder(t *testing.T) {
	s := newTestStore(t)
	resolver := fakeResolver{known: map[string]bool{"Alpha": true}}
	p := NewPipeline(DefaultConfig(), s, nil, resolver)
	in := []model.Suggestion{
		suggestion("g1", "this references Alpha and is long enough", "Alpha"),
		suggestion("g1", "this references an unknown note", "Ghost"),
	}
	out, err := p.FilterAll(context.Background(), in, time.Now())
	if err != nil {
		t.Fatalf("FilterAll: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected boundary to drop the unknown-reference suggestion, got %#v", out)
	}
}

func TestSelect_FullModeReturnsEverything(t *testing.T) {
	in := []model.Suggestion{suggestion("g1", "a"), suggestion("g1", "b")}
	out := Select("full", in, 1, func(s []model.Suggestion, k int) []model.Suggestion { return s[:k] })
	if len(out) != 2 {
		t.Errorf("expected full mode to return all suggestions, got %d", len(out))
	}
}

func TestSelect_DefaultModeSamplesWhenOverCount(t *testing.T) {
	in := []model.Suggestion{suggestion("g1", "a"), suggestion("g1", "b"), suggestion("g1", "c")}
	called := false
	out := Select("default", in, 2, func(s []model.Suggestion, k int) []model.Suggestion {
		called = true
		return s[:k]
	})
	if !called || len(out) != 2 {
		t.Errorf("expected sample to be invoked and return 2, got called=%v len=%d", called, len(out))
	}
}

func TestSelect_DefaultModeReturnsAllWhenUnderCount(t *testing.T) {
	in := []model.Suggestion{suggestion("g1", "a")}
	out := Select("default", in, 5, func(s []model.Suggestion, k int) []model.Suggestion {
		t.Fatal("sample should not be called when under count")
		return nil
	})
	if len(out) != 1 {
		t.Errorf("expected all suggestions returned, got %d", len(out))
	}
}
