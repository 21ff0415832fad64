package vector

import (
	"context"
	"sort"

	"github.com/geistfabrik/geistfabrik/internal/ann"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// Indexed stores vectors in a pure-Go HNSW index (internal/ann), addressed
// by an internal integer id with a persistent path<->id table in the
// store. FindSimilar queries the index with cosine distance and translates
// results back to paths. Must be bit-equivalent to InMemory within a small
// numerical epsilon on identical inputs.
type Indexed struct {
	store   *store.Store
	index   *ann.Index
	vectors map[string][]float32
	pathOf  map[int64]string
}

// NewIndexed constructs an Indexed backend over dims-dimensional vectors.
func NewIndexed(s *store.Store, dims int) *Indexed {
	return &Indexed{store: s, index: ann.New(dims)}
}

func (b *Indexed) LoadEmbeddings(ctx context.Context, sessionID int64) error {
	vecs, err := b.store.AllSessionEmbeddings(ctx, sessionID)
	if err != nil {
		return err
	}

	dims := 0
	for _, v := range vecs {
		dims = len(v)
		break
	}
	b.index = ann.New(dims)
	b.vectors = vecs
	b.pathOf = make(map[int64]string, len(vecs))

	paths := make([]string, 0, len(vecs))
	for path := range vecs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	// Insertion order into the HNSW graph affects its topology and hence
	// approximate search results; iterate paths in sorted order so repeated
	// runs over an unchanged session produce identical output.
	for _, path := range paths {
		id, err := b.store.GetOrCreateVecID(ctx, path)
		if err != nil {
			return err
		}
		b.pathOf[id] = path
		b.index.Insert(id, vecs[path])
	}
	return nil
}

func (b *Indexed) FindSimilar(query []float32, k int) []Match {
	if k < 0 {
		k = b.index.Len()
	}
	results := b.index.Search(query, k)
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		path, ok := b.pathOf[r.ID]
		if !ok {
			continue
		}
		// ann.Result.Distance is 1 - cosine_similarity; invert back.
		matches = append(matches, Match{Path: path, Score: 1 - float64(r.Distance)})
	}
	return matches
}

func (b *Indexed) GetSimilarity(a, bPath string) (float64, error) {
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

func (b *Indexed) GetEmbedding(path string) ([]float32, error) {
	v, ok := b.vectors[path]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}
