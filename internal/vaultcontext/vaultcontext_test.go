package vaultcontext

import (
	"context"
	"testing"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/session"
	"github.com/geistfabrik/geistfabrik/internal/store"
	"github.com/geistfabrik/geistfabrik/internal/vector"
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

// newTestContext builds a Context over a small vault: A links to B, B links
// to nothing, C is a virtual note (date-collection entry in journal.md)
// that nothing links to and that links nowhere, making it an orphan.
func newTestContext(t *testing.T, seed int64) *Context {
	t.Helper()
	ctx := context.Background()
	s := newTestStore(t)

	notes := []model.Note{
		{
			Path: "a.md", Title: "A", Content: "alpha", Links: []model.Link{{Target: "b.md"}},
			Created: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Modified: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			Path: "b.md", Title: "B", Content: "beta",
			Created: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Modified: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			Path: "journal.md/2026-07-30", Title: "2026-07-30", Content: "virtual entry",
			IsVirtual: true, SourceFile: "journal.md",
			Created: time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), Modified: time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, n := range notes {
		if err := s.UpsertNote(ctx, n); err != nil {
			t.Fatalf("UpsertNote(%s): %v", n.Path, err)
		}
	}

	backend := vector.NewInMemory(s)
	sess, err := session.Open(ctx, s, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), nil, backend)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	for path, vec := range map[string][]float32{
		"a.md":                  {1, 0, 0},
		"b.md":                  {0.9, 0.1, 0},
		"journal.md/2026-07-30": {0, 1, 0},
	} {
		if err := s.UpsertSessionEmbedding(ctx, sess.ID, path, vec); err != nil {
			t.Fatalf("UpsertSessionEmbedding(%s): %v", path, err)
		}
	}
	if err := backend.LoadEmbeddings(ctx, sess.ID); err != nil {
		t.Fatalf("LoadEmbeddings: %v", err)
	}

	return New(ctx, s, sess, hostfunc.NewRegistry(), nil, &seed)
}

func TestResolves_PathTitleAndVirtualObsidianLink(t *testing.T) {
	c := newTestContext(t, 1)

	cases := []struct {
		target string
		want   bool
	}{
		{"a.md", true},
		{"a", true}, // path+".md"
		{"A", true}, // title
		{"journal#2026-07-30", true}, // ObsidianLink() of the virtual note
		{"journal.md/2026-07-30", true},
		{"nonexistent", false},
	}
	for _, tc := range cases {
		if got := c.Resolves(tc.target); got != tc.want {
			t.Errorf("Resolves(%q) = %v, want %v", tc.target, got, tc.want)
		}
	}
}

func TestGraphNeighbors_DirectedBothWays(t *testing.T) {
	c := newTestContext(t, 1)
	a, _ := c.GetNote("a.md")
	b, _ := c.GetNote("b.md")

	out := c.OutgoingLinks(a)
	if len(out) != 1 || out[0].Path != "b.md" {
		t.Fatalf("expected a -> b outgoing link, got %#v", out)
	}

	back := c.Backlinks(b)
	if len(back) != 1 || back[0].Path != "a.md" {
		t.Fatalf("expected b's backlink to be a, got %#v", back)
	}

	neighborsA := c.GraphNeighbors(a)
	if len(neighborsA) != 1 || neighborsA[0].Path != "b.md" {
		t.Fatalf("expected a's graph neighbor to be b, got %#v", neighborsA)
	}
	neighborsB := c.GraphNeighbors(b)
	if len(neighborsB) != 1 || neighborsB[0].Path != "a.md" {
		t.Fatalf("expected b's graph neighbor to be a, got %#v", neighborsB)
	}
}

func TestOrphans_VirtualNoteWithNoLinksIsOrphan(t *testing.T) {
	c := newTestContext(t, 1)
	orphans := c.Orphans(-1)
	if len(orphans) != 1 || orphans[0].Path != "journal.md/2026-07-30" {
		t.Fatalf("expected only the unlinked virtual note as orphan, got %#v", orphans)
	}
}

func TestHubs_OrdersByIncomingLinkCount(t *testing.T) {
	c := newTestContext(t, 1)
	hubs := c.Hubs(-1)
	if len(hubs) == 0 || hubs[0].Path != "b.md" {
		t.Fatalf("expected b (1 incoming link) to rank first, got %#v", hubs)
	}
}

func TestSample_DeterministicForFixedSeed(t *testing.T) {
	c1 := newTestContext(t, 42)
	c2 := newTestContext(t, 42)

	s1 := c1.Sample(c1.Notes(), 2)
	s2 := c2.Sample(c2.Notes(), 2)
	if len(s1) != 2 || len(s2) != 2 {
		t.Fatalf("expected 2 sampled notes, got %d and %d", len(s1), len(s2))
	}
	for i := range s1 {
		if s1[i].Path != s2[i].Path {
			t.Errorf("same seed produced different samples at index %d: %q vs %q", i, s1[i].Path, s2[i].Path)
		}
	}
}

func TestSample_ReturnsAllWhenKExceedsNoteCount(t *testing.T) {
	c := newTestContext(t, 1)
	out := c.Sample(c.Notes(), 100)
	if len(out) != len(c.Notes()) {
		t.Errorf("expected all %d notes, got %d", len(c.Notes()), len(out))
	}
}

func TestNeighbours_VirtualNoteParticipatesInSimilarity(t *testing.T) {
	c := newTestContext(t, 1)
	virtual, ok := c.GetNote("journal.md/2026-07-30")
	if !ok {
		t.Fatal("expected virtual note to resolve by path")
	}
	neighbours := c.Neighbours(virtual, 2)
	if len(neighbours) != 2 {
		t.Fatalf("expected 2 neighbours, got %d", len(neighbours))
	}
	for _, n := range neighbours {
		if n.Path == virtual.Path {
			t.Errorf("Neighbours must exclude the query note itself, got %#v", neighbours)
		}
	}
}
