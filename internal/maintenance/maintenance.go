// Package maintenance implements the L3 Maintenance passes: Cleanup,
// Smart Pruning, Consolidation, and the Archive Manager. Every pass
// supports a dry-run mode that reports counts without mutating, and
// every pass that deletes or archives memories bumps the recall cache
// generation on completion so stale results never survive a maintenance
// sweep.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/backup"
	"github.com/kuzu-memory/kuzu-memory/internal/recall"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Maintainer bundles the Cleanup, Pruning, Consolidation, and Archive
// operations over a single store, sharing config and an optional
// Backuper dependency invoked before the first destructive write of a
// pruning or consolidation pass.
type Maintainer struct {
	store    storage.MemoryStore
	cfg      Config
	backuper backup.Backuper
	log      *zap.Logger
}

// Config controls thresholds across all maintenance passes. DefaultConfig
// returns the documented defaults; New uses the Config it is given as
// is, so a zero field stays zero.
type Config struct {
	// Cleanup — Stale
	StaleAfterDays float64

	// Cleanup — Duplicates
	DuplicateSimilarityThreshold float64

	// Smart Pruning
	PruneMaxAgeDays     float64
	PruneMaxSizeBytes   float64
	PruneAccessFreqK    float64
	PruneAccessMaxDays  float64
	PruneWeights        PruneWeights
	PruneThreshold      float64
	PruneProtectSources map[string]bool
	ArchiveTTLDays      float64
	BackupBeforePrune   bool

	// Consolidation
	ConsolidateMinAgeDays       float64
	ConsolidateMaxAccessCount   int
	ConsolidateSimilarityThresh float64
	ConsolidatableTypes         map[string]bool
	BackupBeforeConsolidate     bool
}

// PruneWeights weights the four smart-pruning sub-scores; must sum to
// 1.0 for total_score to stay in [0,1].
type PruneWeights struct {
	Age        float64
	Size       float64
	Access     float64
	Importance float64
}

// DefaultConfig returns the spec's documented maintenance defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfterDays:               90,
		DuplicateSimilarityThreshold: 0.95,

		PruneMaxAgeDays:    365,
		PruneMaxSizeBytes:  15000,
		PruneAccessFreqK:   20,
		PruneAccessMaxDays: 120,
		PruneWeights:       PruneWeights{Age: 0.25, Size: 0.25, Access: 0.25, Importance: 0.25},
		PruneThreshold:     0.3,
		PruneProtectSources: map[string]bool{
			"hook":   true,
			"manual": true,
		},
		ArchiveTTLDays:    30,
		BackupBeforePrune: false,

		ConsolidateMinAgeDays:       90,
		ConsolidateMaxAccessCount:   3,
		ConsolidateSimilarityThresh: 0.70,
		ConsolidatableTypes:         map[string]bool{"EPISODIC": true},
		BackupBeforeConsolidate:     false,
	}
}

// New builds a Maintainer over store. backuper may be nil when no
// pre-destructive-write snapshot is configured; log may be nil to
// discard output.
func New(store storage.MemoryStore, cfg Config, backuper backup.Backuper, log *zap.Logger) *Maintainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintainer{store: store, cfg: cfg, backuper: backuper, log: log}
}

func (m *Maintainer) maybeBackup(ctx context.Context, enabled bool) {
	if !enabled || m.backuper == nil {
		return
	}
	if _, err := m.backuper.BackupNow(ctx); err != nil {
		m.log.Warn("pre-maintenance backup failed, continuing without it", zap.Error(err))
	}
}

// RestoreArchive recreates the Memory an archive node holds and deletes
// the archive node, bumping the recall generation since the restored
// memory is now live again.
func (m *Maintainer) RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error) {
	mem, err := m.store.RestoreArchive(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	bumpRecallGeneration()
	return mem, nil
}

// PurgeExpiredArchives deletes archive nodes past their expires_at.
func (m *Maintainer) PurgeExpiredArchives(ctx context.Context) (int, error) {
	return m.store.PurgeExpiredArchives(ctx)
}

// ListArchives returns up to limit archive nodes.
func (m *Maintainer) ListArchives(ctx context.Context, limit int) ([]*types.ArchivedMemory, error) {
	return m.store.ListArchives(ctx, limit)
}

func isoDaysAgo(now time.Time, days float64) time.Time {
	return now.Add(-time.Duration(days * float64(24*time.Hour)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func bumpRecallGeneration() {
	recall.BumpGeneration()
}
