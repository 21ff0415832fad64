// Package filter runs a suggestion batch through an ordered, individually
// togglable pipeline (boundary, novelty, diversity, quality) and then
// selects a final subset to present.
package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// Resolver reports whether a suggestion's note reference names a known
// note. vaultcontext.Context satisfies this via its Resolves method.
type Resolver interface {
	Resolves(target string) bool
}

// Embedder is the minimal surface filter needs to score suggestion-text
// similarity; embedtext.Computer's Embedder satisfies this directly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config controls which stages run and their thresholds.
type Config struct {
	Stages              []string // subset/order of "boundary","novelty","diversity","quality"
	NoveltyWindowDays   int
	SimilarityThreshold float64
	MinLength           int
	MaxLength           int
}

// DefaultConfig matches spec defaults.
func DefaultConfig() Config {
	return Config{
		Stages:              []string{"boundary", "novelty", "diversity", "quality"},
		NoveltyWindowDays:   60,
		SimilarityThreshold: 0.85,
		MinLength:           10,
		MaxLength:           2000,
	}
}

// Pipeline runs the configured filter stages over a suggestion batch.
type Pipeline struct {
	Config   Config
	Store    *store.Store
	Embedder Embedder
	Resolver Resolver
}

// NewPipeline constructs a Pipeline with cfg, s, embedder and resolver all
// required except embedder, which may be nil: diversity then becomes a
// no-op and novelty falls back to exact text matching against history.
func NewPipeline(cfg Config, s *store.Store, embedder Embedder, resolver Resolver) *Pipeline {
	return &Pipeline{Config: cfg, Store: s, Embedder: embedder, Resolver: resolver}
}

// FilterAll runs suggestions through every enabled stage in Config.Stages
// order, returning the survivors.
func (p *Pipeline) FilterAll(ctx context.Context, suggestions []model.Suggestion, sessionDate time.Time) ([]model.Suggestion, error) {
	current := suggestions
	for _, stage := range p.Config.Stages {
		var err error
		switch stage {
		case "boundary":
			current = p.boundary(current)
		case "novelty":
			current, err = p.novelty(ctx, current, sessionDate)
		case "diversity":
			current, err = p.diversity(ctx, current)
		case "quality":
			current = p.quality(current)
		default:
			return nil, fmt.Errorf("filter: unknown stage %q", stage)
		}
		if err != nil {
			return nil, fmt.Errorf("filter: stage %q: %w", stage, err)
		}
	}
	return current, nil
}

// boundary drops suggestions referencing a note path/title the vault
// doesn't recognise. A suggestion with no Notes references always passes.
func (p *Pipeline) boundary(suggestions []model.Suggestion) []model.Suggestion {
	if p.Resolver == nil {
		return suggestions
	}
	var out []model.Suggestion
	for _, s := range suggestions {
		if allResolve(p.Resolver, s.Notes) {
			out = append(out, s)
		}
	}
	return out
}

func allResolve(r Resolver, refs []string) bool {
	for _, ref := range refs {
		if !r.Resolves(ref) {
			return false
		}
	}
	return true
}

// quality rejects suggestions whose text is too short, too long, or that
// exactly repeat another suggestion already in this same batch.
func (p *Pipeline) quality(suggestions []model.Suggestion) []model.Suggestion {
	minLen, maxLen := p.Config.MinLength, p.Config.MaxLength
	seen := make(map[string]bool, len(suggestions))
	var out []model.Suggestion
	for _, s := range suggestions {
		if len(s.Text) < minLen || len(s.Text) > maxLen {
			continue
		}
		if s.GeistID == "" || len(s.Notes) == 0 {
			continue
		}
		if seen[s.Text] {
			continue
		}
		seen[s.Text] = true
		out = append(out, s)
	}
	return out
}
