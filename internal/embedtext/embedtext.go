// Package embedtext computes semantic and session embedding vectors for
// notes: an opaque text->vector model behind the Embedder interface, a
// content-hash-keyed cache on top of it, and the fixed 387-dim session
// vector combination (384-dim semantic, weighted 0.9, concatenated with a
// 3-dim temporal feature, weighted 0.1).
package embedtext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// SemanticDims is the dimensionality of the host model's raw output.
const SemanticDims = 384

// TemporalDims is the dimensionality of the fixed temporal feature vector.
const TemporalDims = 3

// SessionDims is SemanticDims + TemporalDims, the dimensionality every row
// in session_embeddings must decode to.
const SessionDims = SemanticDims + TemporalDims

// semanticWeight and temporalWeight are fixed core constants; the source
// offers no configuration path for them.
const (
	semanticWeight = 0.9
	temporalWeight = 0.1
)

// Embedder is the opaque text->vector model contract. Both the local ONNX
// embedder and the HTTP-based embedder satisfy it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelName identifies the model for cache-key purposes, e.g.
	// "bge-small-en-v1.5" or "ollama/nomic-embed-text".
	ModelName() string
}

// Computer computes and caches semantic embeddings, and fuses them with
// temporal features into per-session vectors.
type Computer struct {
	Embedder Embedder
	Store    *store.Store
}

// New constructs a Computer over the given embedder and store.
func New(embedder Embedder, s *store.Store) *Computer {
	return &Computer{Embedder: embedder, Store: s}
}

// contentHashKey returns the cache key's model_version component:
// "<model_name>:<sha256(content)>".
func contentHashKey(modelName, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:%s", modelName, hex.EncodeToString(sum[:]))
}

// Stats reports cache hit/miss counts for a single ComputeSessionEmbeddings call.
type Stats struct {
	Hits   int
	Misses int
}

// ComputeSessionEmbeddings computes the 387-dim session vector for every
// note and stores it under sessionID, deleting any prior rows for that
// session first. Semantic vectors are served from the content-hash cache
// where possible; misses are batch-encoded and the cache is refreshed.
func (c *Computer) ComputeSessionEmbeddings(ctx context.Context, notes []model.Note, sessionID int64, sessionDate time.Time) (Stats, error) {
	var stats Stats
	modelName := c.Embedder.ModelName()

	semantic := make(map[string][]float32, len(notes))
	var missNotes []model.Note
	var missKeys []string

	for _, n := range notes {
		key := contentHashKey(modelName, n.Content)
		vec, err := c.Store.GetCachedEmbedding(ctx, n.Path, key)
		if err == nil {
			semantic[n.Path] = vec
			stats.Hits++
			continue
		}
		missNotes = append(missNotes, n)
		missKeys = append(missKeys, key)
	}

	if len(missNotes) > 0 {
		texts := make([]string, len(missNotes))
		for i, n := range missNotes {
			texts[i] = n.Content
		}
		vecs, err := c.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embedding %d miss notes: %w", len(missNotes), err)
		}
		if len(vecs) != len(missNotes) {
			return stats, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missNotes))
		}
		for i, n := range missNotes {
			semantic[n.Path] = vecs[i]
			if err := c.Store.UpsertCachedEmbedding(ctx, n.Path, vecs[i], missKeys[i]); err != nil {
				return stats, fmt.Errorf("caching embedding for %q: %w", n.Path, err)
			}
			stats.Misses++
		}
	}

	if err := c.Store.DeleteSessionEmbeddings(ctx, sessionID); err != nil {
		return stats, fmt.Errorf("clearing prior session embeddings: %w", err)
	}

	for _, n := range notes {
		sem := semantic[n.Path]
		sessionVec := CombineSessionVector(sem, n.Created, sessionDate)
		if err := c.Store.UpsertSessionEmbedding(ctx, sessionID, n.Path, sessionVec); err != nil {
			return stats, fmt.Errorf("storing session vector for %q: %w", n.Path, err)
		}
	}

	return stats, nil
}

// CombineSessionVector fuses a 384-dim semantic vector with the fixed
// 3-dim temporal feature derived from created/sessionDate into a 387-dim
// session vector: concat(semantic * 0.9, temporal * 0.1).
func CombineSessionVector(semantic []float32, created, sessionDate time.Time) []float32 {
	out := make([]float32, 0, SessionDims)
	for _, v := range semantic {
		out = append(out, v*semanticWeight)
	}
	for _, v := range temporalFeatures(created, sessionDate) {
		out = append(out, float32(v)*temporalWeight)
	}
	return out
}

// temporalFeatures computes [age_years, sin(2π*created.day_of_year/365),
// sin(2π*sessionDate.day_of_year/365)].
func temporalFeatures(created, sessionDate time.Time) [3]float64 {
	ageYears := sessionDate.Sub(created).Hours() / 24 / 365
	createdPhase := math.Sin(2 * math.Pi * float64(created.YearDay()) / 365)
	sessionPhase := math.Sin(2 * math.Pi * float64(sessionDate.YearDay()) / 365)
	return [3]float64{ageYears, createdPhase, sessionPhase}
}
