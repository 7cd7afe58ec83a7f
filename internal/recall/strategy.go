package recall

import (
	"context"
	"math"
	"time"

	"github.com/kuzu-memory/kuzu-memory/internal/extract"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Strategy is one of the recall approaches the Auto ensemble combines:
// Keyword, Entity, or Temporal.
type Strategy interface {
	Name() string
	Recall(ctx context.Context, store storage.MemoryStore, query string, filter storage.ListFilter, now time.Time) ([]ScoredMemory, error)
}

// KeywordStrategy scores memories by token overlap between the query and
// each memory's content, tagged entities, and tagged keywords.
type KeywordStrategy struct{}

func (KeywordStrategy) Name() string { return "keyword" }

func (KeywordStrategy) Recall(ctx context.Context, store storage.MemoryStore, query string, filter storage.ListFilter, now time.Time) ([]ScoredMemory, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	queryset := toSet(queryTokens)

	searchFilter := filter
	searchFilter.Limit = 500
	candidates, err := store.GetRecentMemories(ctx, searchFilter)
	if err != nil {
		return nil, err
	}

	var out []ScoredMemory
	for _, m := range candidates {
		tokens := tokenize(m.Content)
		tokens = append(tokens, m.Keywords...)
		tokens = append(tokens, lowerAll(m.Entities)...)
		overlap := overlapRatio(queryset, toSet(tokens))
		if overlap > 0 {
			out = append(out, ScoredMemory{Memory: m, Score: overlap})
		}
	}
	return out, nil
}

// EntityStrategy tags entities in the query, resolves them against the
// Entity table, and walks the MENTIONS/RELATES_TO graph outward up to
// GraphBounds.MaxHops, scoring matches by 1/(1+hop) confidence decay.
type EntityStrategy struct {
	Bounds storage.GraphBounds
}

func (EntityStrategy) Name() string { return "entity" }

func (s EntityStrategy) Recall(ctx context.Context, store storage.MemoryStore, query string, filter storage.ListFilter, now time.Time) ([]ScoredMemory, error) {
	bounds := s.Bounds
	bounds.Normalize()

	queryEntities := extract.ExtractEntities(query)
	if len(queryEntities) == 0 {
		return nil, nil
	}

	visited := map[string]float64{}
	var frontier []string

	for _, text := range queryEntities {
		entities, err := store.FindEntitiesByText(ctx, text)
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			mentioning, err := store.GetMemoriesMentioningEntity(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			for _, m := range mentioning {
				if _, seen := visited[m.ID]; !seen {
					visited[m.ID] = 1.0
					frontier = append(frontier, m.ID)
				}
			}
		}
	}

	for hop := 2; hop <= bounds.MaxHops && len(visited) < bounds.MaxNodes; hop++ {
		var next []string
		score := 1.0 / float64(hop)
		for _, id := range frontier {
			related, err := store.GetEdges(ctx, id, types.RelationRelatesTo)
			if err != nil {
				return nil, err
			}
			for _, targetID := range related {
				if _, seen := visited[targetID]; seen {
					continue
				}
				visited[targetID] = score
				next = append(next, targetID)
				if len(visited) >= bounds.MaxNodes {
					break
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	var out []ScoredMemory
	for id, score := range visited {
		m, err := store.GetMemoryByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, ScoredMemory{Memory: m, Score: score})
	}
	return out, nil
}

// TemporalStrategy scores memories by recency, biasing WORKING and
// EPISODIC types since those are the short-lived types most likely to
// be "what was I just doing".
type TemporalStrategy struct {
	HalfLife time.Duration
}

func (TemporalStrategy) Name() string { return "temporal" }

func (s TemporalStrategy) Recall(ctx context.Context, store storage.MemoryStore, query string, filter storage.ListFilter, now time.Time) ([]ScoredMemory, error) {
	halfLife := s.HalfLife
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}

	searchFilter := filter
	searchFilter.Limit = 200
	candidates, err := store.GetRecentMemories(ctx, searchFilter)
	if err != nil {
		return nil, err
	}

	var out []ScoredMemory
	for _, m := range candidates {
		age := now.Sub(m.CreatedAt)
		if age < 0 {
			age = 0
		}
		decay := recencyDecay(age, halfLife)
		if m.MemoryType == types.MemoryTypeWorking || m.MemoryType == types.MemoryTypeEpisodic {
			decay *= 1.2
			if decay > 1.0 {
				decay = 1.0
			}
		}
		out = append(out, ScoredMemory{Memory: m, Score: decay})
	}
	return out, nil
}

func recencyDecay(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlapRatio(query, target map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := target[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = types.NormalizeContent(s)
	}
	return out
}
