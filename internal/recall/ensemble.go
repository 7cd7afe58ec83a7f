package recall

import (
	"context"
	"time"

	"github.com/kuzu-memory/kuzu-memory/internal/storage"
)

// Weights controls how the Auto strategy combines Keyword, Entity, and
// Temporal scores. It is a field of Config rather than hardcoded; no
// config.yaml key or environment variable sets it, so callers that do not
// set Config.Weights get DefaultWeights.
type Weights struct {
	Keyword  float64
	Entity   float64
	Temporal float64
}

// DefaultWeights returns the spec's documented ensemble defaults.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Entity: 0.35, Temporal: 0.15}
}

// Ensemble runs Keyword, Entity, and Temporal and combines their scores
// by weighted sum over the union of everything any strategy surfaced.
type Ensemble struct {
	Keyword  KeywordStrategy
	Entity   EntityStrategy
	Temporal TemporalStrategy
	Weights  Weights
}

func (Ensemble) Name() string { return "auto" }

func (e Ensemble) Recall(ctx context.Context, store storage.MemoryStore, query string, filter storage.ListFilter, now time.Time) ([]ScoredMemory, error) {
	keywordHits, err := e.Keyword.Recall(ctx, store, query, filter, now)
	if err != nil {
		return nil, err
	}
	entityHits, err := e.Entity.Recall(ctx, store, query, filter, now)
	if err != nil {
		return nil, err
	}
	temporalHits, err := e.Temporal.Recall(ctx, store, query, filter, now)
	if err != nil {
		return nil, err
	}

	combined := map[string]*ScoredMemory{}
	apply := func(hits []ScoredMemory, weight float64) {
		for _, h := range hits {
			entry, ok := combined[h.Memory.ID]
			if !ok {
				entry = &ScoredMemory{Memory: h.Memory, Score: 0}
				combined[h.Memory.ID] = entry
			}
			entry.Score += h.Score * weight
		}
	}
	apply(keywordHits, e.Weights.Keyword)
	apply(entityHits, e.Weights.Entity)
	apply(temporalHits, e.Weights.Temporal)

	out := make([]ScoredMemory, 0, len(combined))
	for _, v := range combined {
		out = append(out, *v)
	}
	return out, nil
}
