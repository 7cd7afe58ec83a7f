package maintenance_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory/internal/backup"
	"github.com/kuzu-memory/kuzu-memory/internal/graph"
	"github.com/kuzu-memory/kuzu-memory/internal/maintenance"
	"github.com/kuzu-memory/kuzu-memory/internal/storage/sqlite"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memories.db")
	adapter, err := graph.Open(path, graph.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return sqlite.New(adapter, nil)
}

func seedAt(t *testing.T, store *sqlite.Store, content string, createdAt time.Time, accessCount int) *types.Memory {
	t.Helper()
	ctx := context.Background()
	m := &types.Memory{
		Content:    content,
		MemoryType: types.MemoryTypeSemantic,
		SourceType: "conversation",
		CreatedAt:  createdAt,
		ValidFrom:  createdAt,
	}
	require.NoError(t, store.StoreMemory(ctx, m))
	for i := 0; i < accessCount; i++ {
		require.NoError(t, store.UpdateAccess(ctx, m.ID))
	}
	return m
}

type fakeBackuper struct {
	calls int
	err   error
}

func (f *fakeBackuper) BackupNow(ctx context.Context) (*backup.BackupResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &backup.BackupResult{}, nil
}

func TestCleanupRemovesStaleMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := seedAt(t, store, "a fact nobody ever looked at again", now.Add(-100*24*time.Hour), 0)
	fresh := seedAt(t, store, "a fact that is brand new today", now.Add(-1*time.Hour), 0)

	m := maintenance.New(store, maintenance.DefaultConfig(), nil, nil)
	result, err := m.Cleanup(ctx, now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StaleRemoved)

	_, err = store.GetMemoryByID(ctx, stale.ID)
	assert.Error(t, err)
	_, err = store.GetMemoryByID(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestCleanupDryRunDoesNotMutate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := seedAt(t, store, "an old unused memory about nothing important", now.Add(-200*24*time.Hour), 0)

	m := maintenance.New(store, maintenance.DefaultConfig(), nil, nil)
	result, err := m.Cleanup(ctx, now, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StaleRemoved)
	assert.True(t, result.DryRun)

	_, err = store.GetMemoryByID(ctx, stale.ID)
	assert.NoError(t, err)
}

func TestCleanupDeduplicatesKeepingWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	winner := seedAt(t, store, "our primary database is postgres for everything", now.Add(-10*24*time.Hour), 5)
	loser := seedAt(t, store, "our primary database is postgres for almost everything", now.Add(-9*24*time.Hour), 1)

	// The pair shares 7 of 8 distinct tokens (Jaccard 0.875), below the
	// 0.95 default, so the threshold is lowered to cluster them.
	cfg := maintenance.DefaultConfig()
	cfg.DuplicateSimilarityThreshold = 0.85
	m := maintenance.New(store, cfg, nil, nil)
	result, err := m.Cleanup(ctx, now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DuplicatesRemoved)

	_, err = store.GetMemoryByID(ctx, winner.ID)
	assert.NoError(t, err)
	_, err = store.GetMemoryByID(ctx, loser.ID)
	assert.Error(t, err)
}

func TestPruneRespectsProtectionRules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	protectedByImportance := &types.Memory{
		Content: "a critical fact that must never be pruned away",
		MemoryType: types.MemoryTypeSemantic, SourceType: "conversation",
		Importance: 0.9, CreatedAt: now.Add(-400 * 24 * time.Hour), ValidFrom: now.Add(-400 * 24 * time.Hour),
	}
	require.NoError(t, store.StoreMemory(ctx, protectedByImportance))

	prunable := &types.Memory{
		Content: "a stale low value memory nobody cares about at all",
		MemoryType: types.MemoryTypeSemantic, SourceType: "conversation",
		Importance: 0.1, CreatedAt: now.Add(-400 * 24 * time.Hour), ValidFrom: now.Add(-400 * 24 * time.Hour),
	}
	require.NoError(t, store.StoreMemory(ctx, prunable))

	m := maintenance.New(store, maintenance.DefaultConfig(), nil, nil)
	result, err := m.Prune(ctx, now, true)
	require.NoError(t, err)

	var sawProtected, sawPrunable bool
	for _, c := range result.Candidates {
		if c.MemoryID == protectedByImportance.ID {
			sawProtected = true
		}
		if c.MemoryID == prunable.ID {
			sawPrunable = true
			assert.False(t, c.Protected)
		}
	}
	assert.False(t, sawProtected, "protected memory must not appear among prune candidates")
	assert.True(t, sawPrunable)
}

func TestPruneDryRunDoesNotMutate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	prunable := &types.Memory{
		Content: "an old forgotten memory with no access history at all",
		MemoryType: types.MemoryTypeSemantic, SourceType: "conversation",
		Importance: 0.05, CreatedAt: now.Add(-400 * 24 * time.Hour), ValidFrom: now.Add(-400 * 24 * time.Hour),
	}
	require.NoError(t, store.StoreMemory(ctx, prunable))

	m := maintenance.New(store, maintenance.DefaultConfig(), nil, nil)
	result, err := m.Prune(ctx, now, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pruned)
	assert.NotEmpty(t, result.Candidates)

	_, err = store.GetMemoryByID(ctx, prunable.ID)
	assert.NoError(t, err)
}

func TestPruneArchivesCandidatesBelowThreshold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	prunable := &types.Memory{
		Content: "an old forgotten memory with no access history whatsoever",
		MemoryType: types.MemoryTypeSemantic, SourceType: "conversation",
		Importance: 0.05, CreatedAt: now.Add(-400 * 24 * time.Hour), ValidFrom: now.Add(-400 * 24 * time.Hour),
	}
	require.NoError(t, store.StoreMemory(ctx, prunable))

	fb := &fakeBackuper{}
	cfg := maintenance.DefaultConfig()
	cfg.BackupBeforePrune = true
	m := maintenance.New(store, cfg, fb, nil)

	result, err := m.Prune(ctx, now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, 1, fb.calls)

	_, err = store.GetMemoryByID(ctx, prunable.ID)
	assert.Error(t, err)
}

func TestConsolidateClustersSimilarEpisodicMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	base := now.Add(-120 * 24 * time.Hour)
	a := &types.Memory{Content: "the user asked about deploying the service to staging", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: base, ValidFrom: base}
	b := &types.Memory{Content: "the user asked about deploying the service to production", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: base.Add(time.Hour), ValidFrom: base.Add(time.Hour)}
	c := &types.Memory{Content: "the user asked about deploying the service somewhere else too", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: base.Add(2 * time.Hour), ValidFrom: base.Add(2 * time.Hour)}
	require.NoError(t, store.StoreMemory(ctx, a))
	require.NoError(t, store.StoreMemory(ctx, b))
	require.NoError(t, store.StoreMemory(ctx, c))

	cfg := maintenance.DefaultConfig()
	cfg.ConsolidateSimilarityThresh = 0.5
	m := maintenance.New(store, cfg, nil, nil)

	result, err := m.Consolidate(ctx, now, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClustersFound)
	assert.Equal(t, 3, result.MemoriesAnalyzed)
	assert.Equal(t, 1, result.NewMemoriesCreated)
	assert.Equal(t, 3, result.MemoriesConsolidated)
	assert.Equal(t, 3, result.MemoriesArchived)

	for _, mem := range []*types.Memory{a, b, c} {
		_, err := store.GetMemoryByID(ctx, mem.ID)
		assert.Error(t, err)
	}
}

func TestConsolidateDryRunDoesNotMutate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	base := now.Add(-120 * 24 * time.Hour)
	a := &types.Memory{Content: "the build pipeline failed on the staging branch today", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: base, ValidFrom: base}
	b := &types.Memory{Content: "the build pipeline failed on the staging branch again", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: base.Add(time.Hour), ValidFrom: base.Add(time.Hour)}
	require.NoError(t, store.StoreMemory(ctx, a))
	require.NoError(t, store.StoreMemory(ctx, b))

	cfg := maintenance.DefaultConfig()
	cfg.ConsolidateSimilarityThresh = 0.5
	m := maintenance.New(store, cfg, nil, nil)

	result, err := m.Consolidate(ctx, now, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ClustersFound)
	assert.Equal(t, 0, result.NewMemoriesCreated)

	_, err = store.GetMemoryByID(ctx, a.ID)
	assert.NoError(t, err)
	_, err = store.GetMemoryByID(ctx, b.ID)
	assert.NoError(t, err)
}

func TestConsolidateSkipsRecentOrFrequentlyAccessedMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recent := &types.Memory{Content: "a very recent episodic memory about today's meeting", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: now.Add(-1 * time.Hour), ValidFrom: now.Add(-1 * time.Hour)}
	require.NoError(t, store.StoreMemory(ctx, recent))

	frequentlyUsed := &types.Memory{Content: "an old episodic memory that gets checked constantly by someone", MemoryType: types.MemoryTypeEpisodic, SourceType: "conversation", CreatedAt: now.Add(-120 * 24 * time.Hour), ValidFrom: now.Add(-120 * 24 * time.Hour)}
	require.NoError(t, store.StoreMemory(ctx, frequentlyUsed))
	for i := 0; i < 10; i++ {
		require.NoError(t, store.UpdateAccess(ctx, frequentlyUsed.ID))
	}

	m := maintenance.New(store, maintenance.DefaultConfig(), nil, nil)
	result, err := m.Consolidate(ctx, now, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.MemoriesAnalyzed)

	_, err = store.GetMemoryByID(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = store.GetMemoryByID(ctx, frequentlyUsed.ID)
	assert.NoError(t, err)
}
