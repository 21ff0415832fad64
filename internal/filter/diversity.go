package filter

import (
	"context"

	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// diversity drops a suggestion whose text is too similar (>= threshold) to
// an earlier-kept suggestion in the same batch, keeping the first of any
// near-duplicate pair. A nil Embedder makes this stage a no-op.
func (p *Pipeline) diversity(ctx context.Context, suggestions []model.Suggestion) ([]model.Suggestion, error) {
	if p.Embedder == nil || len(suggestions) <= 1 {
		return suggestions, nil
	}

	kept := make([]model.Suggestion, 0, len(suggestions))
	keptVecs := make([][]float32, 0, len(suggestions))

	for _, s := range suggestions {
		vec, err := p.Embedder.Embed(ctx, s.Text)
		if err != nil {
			return nil, err
		}
		duplicate := false
		for _, kv := range keptVecs {
			if store.CosineSimilarity(vec, kv) >= p.Config.SimilarityThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, s)
			keptVecs = append(keptVecs, vec)
		}
	}
	return kept, nil
}
