// Package recall implements the L2 Recall Strategies, their ranking and
// ensemble combination, and the L3 Recall Cache.
package recall

import (
	"sort"
	"strings"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// ScoredMemory pairs a Memory with the score a strategy assigned it.
type ScoredMemory struct {
	Memory *types.Memory
	Score  float64
}

// MemoryContext is the recall result handed back to callers: the
// original prompt, the structurally enhanced prompt, the ranked
// memories behind it, and diagnostics.
type MemoryContext struct {
	OriginalPrompt string
	EnhancedPrompt string
	Memories       []*types.Memory
	Confidence     float64
	RecallTimeMs   int64
	StrategyUsed   string
}

// Clone deep-copies the parts of a MemoryContext the cache mutates
// independently of the copy it hands back to callers, so a caller
// mutating a returned context can never corrupt the cached entry.
func (c *MemoryContext) Clone() *MemoryContext {
	clone := *c
	clone.Memories = make([]*types.Memory, len(c.Memories))
	for i, m := range c.Memories {
		mc := *m
		clone.Memories[i] = &mc
	}
	return &clone
}

// rankCandidates sorts merged scored memories by the spec's tie-break
// chain: combined score desc, importance desc, access count desc,
// created_at desc, id asc — entirely deterministic regardless of map
// iteration order upstream.
func rankCandidates(scored []ScoredMemory) []ScoredMemory {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Importance != b.Memory.Importance {
			return a.Memory.Importance > b.Memory.Importance
		}
		if a.Memory.AccessCount != b.Memory.AccessCount {
			return a.Memory.AccessCount > b.Memory.AccessCount
		}
		if !a.Memory.CreatedAt.Equal(b.Memory.CreatedAt) {
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})
	return scored
}

func tokenize(text string) []string {
	return strings.Fields(types.NormalizeContent(text))
}
