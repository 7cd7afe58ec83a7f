package recall_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory/internal/graph"
	"github.com/kuzu-memory/kuzu-memory/internal/recall"
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

func seedMemory(t *testing.T, store *sqlite.Store, content string, memType types.MemoryType) *types.Memory {
	t.Helper()
	m := &types.Memory{Content: content, MemoryType: memType, Importance: 0.5}
	require.NoError(t, store.StoreMemory(context.Background(), m))
	return m
}

func TestRecallKeywordStrategyMatchesOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMemory(t, store, "the deploy pipeline uses GitHub Actions", types.MemoryTypeSemantic)
	seedMemory(t, store, "I prefer tabs over spaces", types.MemoryTypePreference)

	r, err := recall.New(store, recall.DefaultConfig(), nil)
	require.NoError(t, err)

	mc, err := r.Recall(ctx, "deploy pipeline github actions", storage.ListFilter{}, "keyword")
	require.NoError(t, err)
	require.Len(t, mc.Memories, 1)
	assert.Contains(t, mc.Memories[0].Content, "GitHub Actions")
}

func TestRecallTemporalStrategyPrefersRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMemory(t, store, "older working note about the retry queue", types.MemoryTypeWorking)
	seedMemory(t, store, "newer working note about the retry queue", types.MemoryTypeWorking)

	r, err := recall.New(store, recall.DefaultConfig(), nil)
	require.NoError(t, err)

	mc, err := r.Recall(ctx, "retry queue", storage.ListFilter{}, "temporal")
	require.NoError(t, err)
	require.NotEmpty(t, mc.Memories)
	assert.Equal(t, "newer working note about the retry queue", mc.Memories[0].Content)
}

func TestRecallAutoStrategyCombinesScores(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMemory(t, store, "the API gateway uses FastAPI for routing", types.MemoryTypeSemantic)

	r, err := recall.New(store, recall.DefaultConfig(), nil)
	require.NoError(t, err)

	mc, err := r.Recall(ctx, "FastAPI gateway routing", storage.ListFilter{}, "auto")
	require.NoError(t, err)
	require.NotEmpty(t, mc.Memories)
	assert.Equal(t, "auto", mc.StrategyUsed)
}

func TestRecallMaxMemoriesZeroReturnsEmptyAndOriginalPrompt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMemory(t, store, "some fact that would otherwise match", types.MemoryTypeSemantic)

	cfg := recall.DefaultConfig()
	cfg.MaxMemories = 0
	r, err := recall.New(store, cfg, nil)
	require.NoError(t, err)

	mc, err := r.Recall(ctx, "some fact", storage.ListFilter{}, "keyword")
	require.NoError(t, err)
	assert.Empty(t, mc.Memories)
	assert.Equal(t, mc.OriginalPrompt, mc.EnhancedPrompt)
}

func TestRecallCapsAtMaxMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedMemory(t, store, "repeated topic fact number "+string(rune('a'+i)), types.MemoryTypeSemantic)
	}

	cfg := recall.DefaultConfig()
	cfg.MaxMemories = 2
	r, err := recall.New(store, cfg, nil)
	require.NoError(t, err)

	mc, err := r.Recall(ctx, "repeated topic fact", storage.ListFilter{}, "keyword")
	require.NoError(t, err)
	assert.Len(t, mc.Memories, 2)
}

func TestRecallUpdatesAccessCountExactlyOncePerReturnedMemory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := seedMemory(t, store, "access bookkeeping fact for recall", types.MemoryTypeSemantic)

	cfg := recall.DefaultConfig()
	cfg.EnableCaching = false
	r, err := recall.New(store, cfg, nil)
	require.NoError(t, err)

	_, err = r.Recall(ctx, "access bookkeeping fact", storage.ListFilter{}, "keyword")
	require.NoError(t, err)

	got, err := store.GetMemoryByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
}

func TestRecallCacheHitAvoidsReRankingUntilGenerationBumped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedMemory(t, store, "cached recall candidate fact", types.MemoryTypeSemantic)

	r, err := recall.New(store, recall.DefaultConfig(), nil)
	require.NoError(t, err)

	mc1, err := r.Recall(ctx, "cached recall candidate", storage.ListFilter{}, "keyword")
	require.NoError(t, err)
	require.Len(t, mc1.Memories, 1)

	// Second identical call hits the cache; the access count must not be
	// bumped again since UpdateAccess only runs on a fresh strategy pass.
	mc2, err := r.Recall(ctx, "cached recall candidate", storage.ListFilter{}, "keyword")
	require.NoError(t, err)
	require.Len(t, mc2.Memories, 1)

	got, err := store.GetMemoryByID(ctx, mc1.Memories[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)

	recall.BumpGeneration()
	mc3, err := r.Recall(ctx, "cached recall candidate", storage.ListFilter{}, "keyword")
	require.NoError(t, err)
	require.Len(t, mc3.Memories, 1)

	got, err = store.GetMemoryByID(ctx, mc1.Memories[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
}

func TestRecallUnknownStrategyErrors(t *testing.T) {
	store := newTestStore(t)
	r, err := recall.New(store, recall.DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = r.Recall(context.Background(), "anything", storage.ListFilter{}, "nonexistent")
	assert.Error(t, err)
}
