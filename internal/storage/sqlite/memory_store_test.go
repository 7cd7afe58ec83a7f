package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory/internal/graph"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
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

func TestStoreMemoryAndGetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{Content: "I prefer FastAPI over Flask", MemoryType: types.MemoryTypePreference}
	require.NoError(t, store.StoreMemory(ctx, m))
	assert.NotEmpty(t, m.ID)
	assert.NotEmpty(t, m.ContentHash)

	got, err := store.GetMemoryByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.MemoryType, got.MemoryType)
}

func TestStoreMemoryRejectsDuplicateContentHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m1 := &types.Memory{Content: "The deploy pipeline uses GitHub Actions", MemoryType: types.MemoryTypeSemantic}
	require.NoError(t, store.StoreMemory(ctx, m1))

	m2 := &types.Memory{Content: "the deploy pipeline uses github actions", MemoryType: types.MemoryTypeSemantic}
	err := store.StoreMemory(ctx, m2)
	assert.ErrorIs(t, err, storage.ErrDuplicateContent)
}

func TestBatchStoreMemoriesSkipsDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	memories := []*types.Memory{
		{Content: "alpha fact one", MemoryType: types.MemoryTypeSemantic},
		{Content: "alpha fact one", MemoryType: types.MemoryTypeSemantic},
		{Content: "beta fact two", MemoryType: types.MemoryTypeSemantic},
	}
	ids, err := store.BatchStoreMemories(ctx, memories)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestUpdateAccessIncrementsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{Content: "access count test fact", MemoryType: types.MemoryTypeSemantic}
	require.NoError(t, store.StoreMemory(ctx, m))

	require.NoError(t, store.UpdateAccess(ctx, m.ID))
	require.NoError(t, store.UpdateAccess(ctx, m.ID))

	got, err := store.GetMemoryByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	assert.NotNil(t, got.AccessedAt)
}

func TestCountLiveRespectsMemoryTypeFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreMemory(ctx, &types.Memory{Content: "semantic fact here", MemoryType: types.MemoryTypeSemantic}))
	require.NoError(t, store.StoreMemory(ctx, &types.Memory{Content: "episodic event happened", MemoryType: types.MemoryTypeEpisodic}))

	n, err := store.CountLive(ctx, storage.ListFilter{MemoryType: types.MemoryTypeSemantic})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetOrCreateEntityIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e1, err := store.GetOrCreateEntity(ctx, "technology", "FastAPI")
	require.NoError(t, err)

	e2, err := store.GetOrCreateEntity(ctx, "technology", "fastapi")
	require.NoError(t, err)

	assert.Equal(t, e1.ID, e2.ID)
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{Content: "old working note to prune", MemoryType: types.MemoryTypeWorking, Importance: 0.4}
	require.NoError(t, store.StoreMemory(ctx, m))

	am := &types.ArchivedMemory{
		OriginalID: m.ID,
		Content:    m.Content,
		MemoryType: m.MemoryType,
		SourceType: m.SourceType,
		Importance: m.Importance,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.CreatedAt.AddDate(0, 0, 30),
		PruneScore: 0.1,
	}
	require.NoError(t, store.ArchiveMemory(ctx, am))

	_, err := store.GetMemoryByID(ctx, m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	restored, err := store.RestoreArchive(ctx, am.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, restored.Content)
	assert.Equal(t, m.MemoryType, restored.MemoryType)
}

func TestStoreMemoryAppliesDefaultRetentionByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	never := &types.Memory{Content: "the project is named kuzu-memory", MemoryType: types.MemoryTypeSemantic}
	require.NoError(t, store.StoreMemory(ctx, never))
	assert.Nil(t, never.ValidTo)

	episodic := &types.Memory{Content: "deployed staging today", MemoryType: types.MemoryTypeEpisodic}
	require.NoError(t, store.StoreMemory(ctx, episodic))
	require.NotNil(t, episodic.ValidTo)
	assert.WithinDuration(t, episodic.CreatedAt.AddDate(0, 0, 30), *episodic.ValidTo, time.Second)

	working := &types.Memory{Content: "scratch note for this session", MemoryType: types.MemoryTypeWorking}
	require.NoError(t, store.StoreMemory(ctx, working))
	require.NotNil(t, working.ValidTo)
	assert.WithinDuration(t, working.CreatedAt.AddDate(0, 0, 1), *working.ValidTo, time.Second)
}

func TestStoreMemoryHonorsCallerSuppliedValidTo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	explicit := time.Now().Add(48 * time.Hour).UTC()
	m := &types.Memory{Content: "episodic memory with explicit expiry", MemoryType: types.MemoryTypeEpisodic, ValidTo: &explicit}
	require.NoError(t, store.StoreMemory(ctx, m))
	require.NotNil(t, m.ValidTo)
	assert.Equal(t, explicit, *m.ValidTo)
}

func TestStoreMemoryRetentionOverrideTakesPriorityOverDefault(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.SetRetentionOverrides(map[types.MemoryType]float64{
		types.MemoryTypeSemantic: 5,  // override: semantic no longer never-expires
		types.MemoryTypeEpisodic: -1, // override: episodic now never expires
	})

	semantic := &types.Memory{Content: "overridden semantic fact", MemoryType: types.MemoryTypeSemantic}
	require.NoError(t, store.StoreMemory(ctx, semantic))
	require.NotNil(t, semantic.ValidTo)
	assert.WithinDuration(t, semantic.CreatedAt.AddDate(0, 0, 5), *semantic.ValidTo, time.Second)

	episodic := &types.Memory{Content: "overridden episodic event", MemoryType: types.MemoryTypeEpisodic}
	require.NoError(t, store.StoreMemory(ctx, episodic))
	assert.Nil(t, episodic.ValidTo)
}

func TestCleanupExpiredRemovesPastValidTo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	m := &types.Memory{Content: "sensory note that expired", MemoryType: types.MemoryTypeSensory, ValidTo: &past}
	require.NoError(t, store.StoreMemory(ctx, m))

	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetMemoryByID(ctx, m.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
