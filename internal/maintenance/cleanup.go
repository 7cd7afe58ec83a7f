package maintenance

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/dedup"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// CleanupResult reports the counts each of the three cleanup passes
// would remove (DryRun) or did remove.
type CleanupResult struct {
	StaleRemoved       int
	DuplicatesRemoved  int
	OrphanEdgesRemoved int
	DryRun             bool
}

// Cleanup runs the Stale, Duplicates, and Orphans passes in sequence.
// In dry-run mode nothing is mutated; the result still reports what
// would have been removed, except orphan edges, whose count can only be
// produced by actually running the deletion query — dry-run reports 0
// for that figure rather than duplicating detection logic the store
// already owns. A pass that fails does not stop the later passes: the
// result always carries the counts that were produced, and the returned
// error joins every pass's failure.
func (m *Maintainer) Cleanup(ctx context.Context, now time.Time, dryRun bool) (*CleanupResult, error) {
	result := &CleanupResult{DryRun: dryRun}
	var passErrs []error

	stale, err := m.findStale(ctx, now)
	if err != nil {
		passErrs = append(passErrs, err)
	}
	result.StaleRemoved = len(stale)

	duplicates, err := m.findDuplicateLosers(ctx)
	if err != nil {
		passErrs = append(passErrs, err)
	}
	result.DuplicatesRemoved = len(duplicates)

	if dryRun {
		return result, errors.Join(passErrs...)
	}

	for _, id := range append(stale, duplicates...) {
		if err := m.store.DeleteMemory(ctx, id); err != nil {
			m.log.Warn("cleanup: delete failed", zap.String("memory_id", id), zap.Error(err))
		}
	}
	orphans, err := m.store.DeleteOrphanEdges(ctx)
	if err != nil {
		passErrs = append(passErrs, err)
	}
	result.OrphanEdgesRemoved = orphans
	bumpRecallGeneration()
	return result, errors.Join(passErrs...)
}

func (m *Maintainer) findStale(ctx context.Context, now time.Time) ([]string, error) {
	all, err := m.store.ListAllLive(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := isoDaysAgo(now, m.cfg.StaleAfterDays)

	var ids []string
	for _, mem := range all {
		if mem.AccessCount != 0 {
			continue
		}
		if mem.CreatedAt.After(cutoff) {
			continue
		}
		if mem.AccessedAt != nil && mem.AccessedAt.After(cutoff) {
			continue
		}
		ids = append(ids, mem.ID)
	}
	return ids, nil
}

// findDuplicateLosers clusters live memories by pairwise similarity at
// or above DuplicateSimilarityThreshold and returns every id except each
// cluster's winner (max access_count, tie-break max created_at).
func (m *Maintainer) findDuplicateLosers(ctx context.Context) ([]string, error) {
	all, err := m.store.ListAllLive(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool, len(all))
	var losers []string

	for i, a := range all {
		if visited[a.ID] {
			continue
		}
		cluster := []*types.Memory{a}
		for j := i + 1; j < len(all); j++ {
			b := all[j]
			if visited[b.ID] {
				continue
			}
			if dedup.Similarity(a.Content, b.Content) >= m.cfg.DuplicateSimilarityThreshold {
				cluster = append(cluster, b)
			}
		}
		if len(cluster) < 2 {
			continue
		}
		for _, c := range cluster {
			visited[c.ID] = true
		}
		sort.SliceStable(cluster, func(x, y int) bool {
			if cluster[x].AccessCount != cluster[y].AccessCount {
				return cluster[x].AccessCount > cluster[y].AccessCount
			}
			return cluster[x].CreatedAt.After(cluster[y].CreatedAt)
		})
		for _, loser := range cluster[1:] {
			losers = append(losers, loser.ID)
		}
	}
	return losers, nil
}
