package filter

import (
	"context"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// novelty drops a suggestion if it is too similar to any suggestion emitted
// by any geist over the last NoveltyWindowDays, not just its own geist's
// history. With no Embedder configured, similarity degrades to an exact
// text match.
func (p *Pipeline) novelty(ctx context.Context, suggestions []model.Suggestion, sessionDate time.Time) ([]model.Suggestion, error) {
	recent, err := p.Store.RecentSuggestionTexts(ctx, sessionDate, p.Config.NoveltyWindowDays)
	if err != nil {
		return nil, err
	}

	var out []model.Suggestion
	for _, s := range suggestions {
		novel, err := p.isNovel(ctx, s.Text, recent)
		if err != nil {
			return nil, err
		}
		if novel {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *Pipeline) isNovel(ctx context.Context, text string, recent []string) (bool, error) {
	if p.Embedder == nil {
		for _, r := range recent {
			if r == text {
				return false, nil
			}
		}
		return true, nil
	}

	vec, err := p.Embedder.Embed(ctx, text)
	if err != nil {
		return false, err
	}
	for _, r := range recent {
		rvec, err := p.Embedder.Embed(ctx, r)
		if err != nil {
			return false, err
		}
		if store.CosineSimilarity(vec, rvec) >= p.Config.SimilarityThreshold {
			return false, nil
		}
	}
	return true, nil
}
