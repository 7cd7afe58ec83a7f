package maintenance

import (
	"fmt"
	"strings"
	"time"

	"context"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/dedup"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// ConsolidationResult mirrors the spec's consolidation report fields.
type ConsolidationResult struct {
	ClustersFound        int
	MemoriesAnalyzed     int
	MemoriesConsolidated int
	NewMemoriesCreated   int
	MemoriesArchived     int
	ExecutionTimeMs      int64
	DryRun               bool
	Error                string
}

// Consolidate folds clusters of similar, low-value, old memories into a
// single summary memory per cluster, archiving the originals.
func (m *Maintainer) Consolidate(ctx context.Context, now time.Time, dryRun bool) (*ConsolidationResult, error) {
	start := time.Now()
	result := &ConsolidationResult{DryRun: dryRun}

	all, err := m.store.ListAllLive(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []*types.Memory
	for _, mem := range all {
		if !m.cfg.ConsolidatableTypes[string(mem.MemoryType)] {
			continue
		}
		if now.Sub(mem.CreatedAt).Hours()/24 < m.cfg.ConsolidateMinAgeDays {
			continue
		}
		if mem.AccessCount > m.cfg.ConsolidateMaxAccessCount {
			continue
		}
		candidates = append(candidates, mem)
	}
	result.MemoriesAnalyzed = len(candidates)

	clusters := clusterBySimilarity(candidates, m.cfg.ConsolidateSimilarityThresh)
	result.ClustersFound = len(clusters)

	if dryRun {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result, nil
	}

	m.maybeBackup(ctx, m.cfg.BackupBeforeConsolidate)

	for _, cluster := range clusters {
		centroid := pickCentroid(cluster)
		summary := buildSummary(centroid, cluster)

		if err := m.store.StoreMemory(ctx, summary); err != nil {
			m.log.Warn("consolidate: store summary failed", zap.Error(err))
			continue
		}
		result.NewMemoriesCreated++

		for _, member := range cluster {
			if err := m.store.CreateEdge(ctx, member.ID, summary.ID, types.RelationConsolidatedInto); err != nil {
				m.log.Warn("consolidate: edge create failed", zap.String("member_id", member.ID), zap.Error(err))
			}
			am := &types.ArchivedMemory{
				OriginalID: member.ID,
				Content:    member.Content,
				MemoryType: member.MemoryType,
				SourceType: member.SourceType,
				Importance: member.Importance,
				CreatedAt:  member.CreatedAt,
				ExpiresAt:  now.Add(time.Duration(m.cfg.ArchiveTTLDays * float64(24*time.Hour))),
				PruneScore: 0,
			}
			if err := m.store.ArchiveMemory(ctx, am); err != nil {
				m.log.Warn("consolidate: archive failed", zap.String("member_id", member.ID), zap.Error(err))
				continue
			}
			result.MemoriesArchived++
			result.MemoriesConsolidated++
		}
	}

	bumpRecallGeneration()
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// clusterBySimilarity groups candidates by pairwise similarity at or
// above threshold, discarding singletons.
func clusterBySimilarity(candidates []*types.Memory, threshold float64) [][]*types.Memory {
	visited := make(map[string]bool, len(candidates))
	var clusters [][]*types.Memory

	for i, a := range candidates {
		if visited[a.ID] {
			continue
		}
		cluster := []*types.Memory{a}
		for j := i + 1; j < len(candidates); j++ {
			b := candidates[j]
			if visited[b.ID] {
				continue
			}
			if dedup.Similarity(a.Content, b.Content) >= threshold {
				cluster = append(cluster, b)
			}
		}
		if len(cluster) < 2 {
			continue
		}
		for _, c := range cluster {
			visited[c.ID] = true
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// pickCentroid returns the cluster member with the highest access
// count, tie-broken by earliest position in the slice.
func pickCentroid(cluster []*types.Memory) *types.Memory {
	centroid := cluster[0]
	for _, mem := range cluster[1:] {
		if mem.AccessCount > centroid.AccessCount {
			centroid = mem
		}
	}
	return centroid
}

// buildSummary composes the consolidated summary memory: centroid
// content first, then a "Related: ..." tail per non-centroid member
// carrying tokens absent from the centroid. Members whose UpdateMarker
// is set are skipped in the tail since they are corrections, not
// additive facts.
func buildSummary(centroid *types.Memory, cluster []*types.Memory) *types.Memory {
	centroidTokens := toTokenSet(centroid.Content)

	var b strings.Builder
	b.WriteString(centroid.Content)

	maxImportance := centroid.Importance
	for _, mem := range cluster {
		if mem.ID == centroid.ID {
			continue
		}
		if mem.Importance > maxImportance {
			maxImportance = mem.Importance
		}
		if mem.UpdateMarker {
			continue
		}
		extra := novelTokens(mem.Content, centroidTokens)
		if extra == "" {
			continue
		}
		fmt.Fprintf(&b, " Related: %s", extra)
	}

	return &types.Memory{
		Content:    b.String(),
		MemoryType: centroid.MemoryType,
		SourceType: "consolidation",
		Importance: maxImportance,
		Confidence: centroid.Confidence,
	}
}

func toTokenSet(content string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(types.NormalizeContent(content)) {
		set[tok] = struct{}{}
	}
	return set
}

func novelTokens(content string, exclude map[string]struct{}) string {
	var novel []string
	for _, tok := range strings.Fields(types.NormalizeContent(content)) {
		if _, seen := exclude[tok]; !seen {
			novel = append(novel, tok)
		}
	}
	return strings.Join(novel, " ")
}
