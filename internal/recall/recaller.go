package recall

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/storage"
)

// Config controls recall behavior: which strategy to use by default, how
// many memories to return, and cache sizing.
type Config struct {
	MaxMemories     int
	EnableCaching   bool
	CacheSize       int
	CacheTTL        time.Duration
	DefaultStrategy string
	Weights         Weights
	EntityBounds    storage.GraphBounds
	MaxRecallTimeMs int64
}

// DefaultConfig returns the spec's documented recall defaults.
func DefaultConfig() Config {
	return Config{
		MaxMemories:     10,
		EnableCaching:   true,
		CacheSize:       1000,
		CacheTTL:        300 * time.Second,
		DefaultStrategy: "auto",
		Weights:         DefaultWeights(),
		EntityBounds:    storage.GraphBounds{MaxHops: 2, MaxNodes: 100},
		MaxRecallTimeMs: 100,
	}
}

// Recaller is the L2 Recall Strategies entry point: it picks a strategy,
// runs it, ranks the results deterministically, caps at MaxMemories, and
// records one access per returned memory.
type Recaller struct {
	store      storage.MemoryStore
	cfg        Config
	cache      *Cache
	strategies map[string]Strategy
	log        *zap.Logger
}

// New builds a Recaller over store with cfg, wiring up a recall cache
// when cfg.EnableCaching is set.
func New(store storage.MemoryStore, cfg Config, log *zap.Logger) (*Recaller, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var cache *Cache
	if cfg.EnableCaching {
		c, err := NewCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		cache = c
	}

	entity := EntityStrategy{Bounds: cfg.EntityBounds}
	keyword := KeywordStrategy{}
	temporal := TemporalStrategy{}

	return &Recaller{
		store: store,
		cfg:   cfg,
		cache: cache,
		strategies: map[string]Strategy{
			"keyword":  keyword,
			"entity":   entity,
			"temporal": temporal,
			"auto":     Ensemble{Keyword: keyword, Entity: entity, Temporal: temporal, Weights: cfg.Weights},
		},
		log: log,
	}, nil
}

// Recall runs strategyName (or the configured default when empty)
// against query, returning a ranked, capped MemoryContext. Selected
// memories have their access bookkeeping updated exactly once, after
// ranking, never once per strategy that happened to surface them.
func (r *Recaller) Recall(ctx context.Context, query string, filter storage.ListFilter, strategyName string) (*MemoryContext, error) {
	start := time.Now()
	if strategyName == "" {
		strategyName = r.cfg.DefaultStrategy
	}
	strategy, ok := r.strategies[strategyName]
	if !ok {
		return nil, fmt.Errorf("recall: unknown strategy %q", strategyName)
	}

	now := time.Now().UTC()
	key := CacheKey{
		Query:      normalizeQuery(query),
		AgentID:    filter.AgentID,
		UserID:     filter.UserID,
		SessionID:  filter.SessionID,
		MemoryType: string(filter.MemoryType),
		Strategy:   strategyName,
	}

	if r.cache != nil {
		if cached, ok := r.cache.Get(key, now); ok {
			cached.RecallTimeMs = time.Since(start).Milliseconds()
			return cached, nil
		}
	}

	if r.cfg.MaxMemories == 0 {
		mc := &MemoryContext{OriginalPrompt: query, EnhancedPrompt: query, StrategyUsed: strategyName}
		return mc, nil
	}

	hits, err := strategy.Recall(ctx, r.store, query, filter, now)
	if err != nil {
		return nil, err
	}
	ranked := rankCandidates(hits)

	limit := r.cfg.MaxMemories
	if limit > len(ranked) {
		limit = len(ranked)
	}
	top := ranked[:limit]

	out := &MemoryContext{
		OriginalPrompt: query,
		StrategyUsed:   strategyName,
	}
	for _, sm := range top {
		out.Memories = append(out.Memories, sm.Memory)
		if err := r.store.UpdateAccess(ctx, sm.Memory.ID); err != nil {
			r.log.Warn("update access failed", zap.String("memory_id", sm.Memory.ID), zap.Error(err))
		}
	}
	out.Confidence = confidenceOf(top)
	out.RecallTimeMs = time.Since(start).Milliseconds()
	if r.cfg.MaxRecallTimeMs > 0 && out.RecallTimeMs > r.cfg.MaxRecallTimeMs {
		r.log.Warn("recall exceeded soft time budget",
			zap.Int64("recall_time_ms", out.RecallTimeMs),
			zap.Int64("budget_ms", r.cfg.MaxRecallTimeMs),
			zap.String("strategy", strategyName))
	}

	if r.cache != nil {
		r.cache.Put(key, out, now)
	}
	return out, nil
}

func confidenceOf(top []ScoredMemory) float64 {
	if len(top) == 0 {
		return 0
	}
	sum := 0.0
	for _, sm := range top {
		sum += sm.Score
	}
	avg := sum / float64(len(top))
	if avg > 1.0 {
		avg = 1.0
	}
	return avg
}

func normalizeQuery(q string) string {
	return fmt.Sprintf("%v", tokenize(q))
}
