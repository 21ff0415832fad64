// Package vector defines the polymorphic vector-backend contract shared by
// the in-memory and ANN-indexed implementations: load a session's vectors,
// find nearest neighbours, compute similarity, and retrieve a single
// embedding. Cosine similarity is the canonical metric; scores lie in
// [-1, 1].
package vector

import (
	"context"
	"errors"
	"sort"

	"github.com/geistfabrik/geistfabrik/internal/store"
)

// ErrNotFound is returned when a lookup path has no loaded vector.
var ErrNotFound = errors.New("vector: not found")

// Match is one result of a similarity search, sorted descending by score.
type Match struct {
	Path  string
	Score float64
}

// Backend is the capability set both implementations satisfy. Any
// additional backend (disk, remote) can be added without touching callers.
type Backend interface {
	// LoadEmbeddings loads every session vector for sessionID into the
	// backend's working set, replacing any previously loaded session.
	LoadEmbeddings(ctx context.Context, sessionID int64) error
	// FindSimilar returns the k nearest neighbours to query, sorted by
	// descending cosine similarity.
	FindSimilar(query []float32, k int) []Match
	// GetSimilarity returns the cosine similarity between two loaded paths.
	GetSimilarity(a, b string) (float64, error)
	// GetEmbedding returns the loaded vector for path.
	GetEmbedding(path string) ([]float32, error)
}

// InMemory eagerly loads all session vectors into a map and performs a
// linear scan for FindSimilar. Simple, and fast enough for small vaults.
type InMemory struct {
	store   *store.Store
	vectors map[string][]float32
}

// NewInMemory constructs an InMemory backend backed by s.
func NewInMemory(s *store.Store) *InMemory {
	return &InMemory{store: s, vectors: make(map[string][]float32)}
}

func (b *InMemory) LoadEmbeddings(ctx context.Context, sessionID int64) error {
	vecs, err := b.store.AllSessionEmbeddings(ctx, sessionID)
	if err != nil {
		return err
	}
	b.vectors = vecs
	return nil
}

func (b *InMemory) FindSimilar(query []float32, k int) []Match {
	paths := make([]string, 0, len(b.vectors))
	for path := range b.vectors {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	matches := make([]Match, 0, len(paths))
	for _, path := range paths {
		matches = append(matches, Match{Path: path, Score: store.CosineSimilarity(query, b.vectors[path])})
	}
	// SliceStable over a path-sorted input gives ties a deterministic
	// tiebreak (ascending path) instead of map-iteration-order noise.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k >= 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

func (b *InMemory) GetSimilarity(a, bPath string) (float64, error) {
	va, ok := b.vectors[a]
	if !ok {
		return 0, ErrNotFound
	}
	vb, ok := b.vectors[bPath]
	if !ok {
		return 0, ErrNotFound
	}
	return store.CosineSimilarity(va, vb), nil
}

func (b *InMemory) GetEmbedding(path string) ([]float32, error) {
	v, ok := b.vectors[path]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}
