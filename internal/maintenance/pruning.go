package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// PruneScore breaks down one candidate's retention score for reporting
// in dry-run mode.
type PruneScore struct {
	MemoryID        string
	AgeScore        float64
	SizeScore       float64
	AccessScore     float64
	ImportanceScore float64
	TotalScore      float64
	Protected       bool
}

// PruneResult reports what Prune did (or, in dry-run, would do).
type PruneResult struct {
	Candidates []PruneScore
	Pruned     int
	DryRun     bool
}

// Prune runs the Smart Pruning pass: scores every live memory, discards
// protected ones and those scoring at or above the threshold, and — when
// not a dry run — archives and deletes the rest.
func (m *Maintainer) Prune(ctx context.Context, now time.Time, dryRun bool) (*PruneResult, error) {
	all, err := m.store.ListAllLive(ctx)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{DryRun: dryRun}
	var toArchive []*types.Memory

	for _, mem := range all {
		score := m.scoreForPrune(mem, now)
		protected := m.isProtected(mem, now)
		score.Protected = protected

		if !protected && score.TotalScore < m.cfg.PruneThreshold {
			result.Candidates = append(result.Candidates, score)
			toArchive = append(toArchive, mem)
		}
	}

	if dryRun {
		return result, nil
	}

	m.maybeBackup(ctx, m.cfg.BackupBeforePrune)

	for _, mem := range toArchive {
		am := &types.ArchivedMemory{
			OriginalID: mem.ID,
			Content:    mem.Content,
			MemoryType: mem.MemoryType,
			SourceType: mem.SourceType,
			Importance: mem.Importance,
			CreatedAt:  mem.CreatedAt,
			ExpiresAt:  now.Add(time.Duration(m.cfg.ArchiveTTLDays * float64(24*time.Hour))),
			PruneScore: m.scoreForPrune(mem, now).TotalScore,
		}
		if err := m.store.ArchiveMemory(ctx, am); err != nil {
			m.log.Warn("prune: archive failed", zap.String("memory_id", mem.ID), zap.Error(err))
			continue
		}
		result.Pruned++
	}

	bumpRecallGeneration()
	return result, nil
}

func (m *Maintainer) scoreForPrune(mem *types.Memory, now time.Time) PruneScore {
	age := now.Sub(mem.CreatedAt)
	ageScore := clamp01(1.0 - age.Hours()/24/m.cfg.PruneMaxAgeDays)

	size := float64(len(mem.Content))
	sizeScore := clamp01(1.0 - size/m.cfg.PruneMaxSizeBytes)

	accessScore := accessScoreFor(mem, now, m.cfg.PruneAccessFreqK, m.cfg.PruneAccessMaxDays)

	importanceScore := clamp01(mem.Importance)

	w := m.cfg.PruneWeights
	total := w.Age*ageScore + w.Size*sizeScore + w.Access*accessScore + w.Importance*importanceScore

	return PruneScore{
		MemoryID:        mem.ID,
		AgeScore:        ageScore,
		SizeScore:       sizeScore,
		AccessScore:     accessScore,
		ImportanceScore: importanceScore,
		TotalScore:      clamp01(total),
	}
}

func accessScoreFor(mem *types.Memory, now time.Time, freqK, maxDays float64) float64 {
	if mem.AccessedAt == nil {
		return 0
	}
	frequency := clamp01(float64(mem.AccessCount) / freqK)
	recencyDays := now.Sub(*mem.AccessedAt).Hours() / 24
	recency := clamp01(1.0 - recencyDays/maxDays)
	return clamp01((frequency + recency) / 2)
}

// isProtected applies the spec's protection rules: any one satisfied
// rule exempts mem from pruning regardless of its score.
func (m *Maintainer) isProtected(mem *types.Memory, now time.Time) bool {
	if mem.Importance >= 0.8 {
		return true
	}
	if mem.AccessCount >= 10 {
		return true
	}
	if now.Sub(mem.CreatedAt).Hours()/24 < 30 {
		return true
	}
	if m.cfg.PruneProtectSources[mem.SourceType] {
		return true
	}
	if mem.MemoryType == types.MemoryTypePreference {
		return true
	}
	return false
}
