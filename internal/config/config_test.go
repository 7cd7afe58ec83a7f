package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory/internal/config"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, int64(100), cfg.Performance.MaxRecallTimeMs)
	assert.Equal(t, 10, cfg.Recall.MaxMemories)
	assert.Equal(t, 10, cfg.Extraction.MinMemoryLength)
	assert.Equal(t, -1, cfg.Memory.RetentionDays.Semantic)
	assert.Equal(t, 0, cfg.Memory.RetentionDays.Episodic)

	overrides := cfg.Memory.RetentionDays.Overrides()
	assert.NotContains(t, overrides, types.MemoryTypeEpisodic)
	assert.Equal(t, -1.0, overrides[types.MemoryTypeSemantic])
}

func TestLoadWithoutYAMLFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Recall.MaxMemories)
}

func TestLoadMergesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recall:\n  max_memories: 25\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Recall.MaxMemories)
}

func TestEnvOverridesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recall:\n  max_memories: 25\n"), 0o600))

	t.Setenv("KUZU_MEMORY_RECALL_MAX_MEMORIES", "40")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Recall.MaxMemories)
}

func TestDBPathPrefersExplicitOverride(t *testing.T) {
	t.Setenv("KUZU_MEMORY_DB", "/tmp/custom/memories.db")
	assert.Equal(t, "/tmp/custom/memories.db", config.DBPath())
}

func TestDBPathFallsBackToProjectRoot(t *testing.T) {
	t.Setenv("KUZU_MEMORY_DB", "")
	t.Setenv("KUZU_MEMORY_PROJECT_ROOT", "/workspace/myproj")
	assert.Equal(t, "/workspace/myproj/.kuzu-memory/memories.db", config.DBPath())
}

func TestApplyDBOverridesIsNoOpWithoutConnectionFunc(t *testing.T) {
	cfg := config.Default()
	err := config.ApplyDBOverrides(nil, nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Recall.MaxMemories)
}

func TestSetLiveSettingRejectsUnknownKey(t *testing.T) {
	err := config.SetLiveSetting(nil, "performance.max_recall_time_ms", "50")
	assert.Error(t, err)
}
