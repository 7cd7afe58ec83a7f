// Package config provides configuration management for the memory
// service. It loads settings from environment variables with the
// KUZU_MEMORY_ prefix, an optional per-project config.yaml file, and
// sensible defaults for every key the core recognizes. A small set of
// live-tunable keys (retention.max_total_memories, recall.max_memories)
// can additionally be overridden from the settings table in the
// database, taking precedence over both the file and the environment.
package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Config holds every configuration key the core recognizes, grouped the
// way the external interface documents them.
type Config struct {
	Performance PerformanceConfig `yaml:"performance"`
	Recall      RecallConfig      `yaml:"recall"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Storage     StorageConfig     `yaml:"storage"`
	Retention   RetentionConfig   `yaml:"retention"`
	Memory      MemoryConfig      `yaml:"memory"`
}

// PerformanceConfig holds the soft performance budgets; breaches are
// logged, never raised.
type PerformanceConfig struct {
	MaxRecallTimeMs             int64 `yaml:"max_recall_time_ms"`
	MaxGenerationTimeMs         int64 `yaml:"max_generation_time_ms"`
	EnablePerformanceMonitoring bool  `yaml:"enable_performance_monitoring"`
}

// RecallConfig controls default recall behavior.
type RecallConfig struct {
	MaxMemories     int      `yaml:"max_memories"`
	EnableCaching   bool     `yaml:"enable_caching"`
	CacheSize       int      `yaml:"cache_size"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds"`
	Strategies      []string `yaml:"strategies"`
}

// ExtractionConfig controls the L2 Extractor's bounds and features.
type ExtractionConfig struct {
	MinMemoryLength          int  `yaml:"min_memory_length"`
	MaxMemoryLength          int  `yaml:"max_memory_length"`
	EnableEntityExtraction   bool `yaml:"enable_entity_extraction"`
	EnablePatternCompilation bool `yaml:"enable_pattern_compilation"`
}

// StorageConfig controls the L0 graph adapter's pool sizing.
type StorageConfig struct {
	ConnectionPoolSize  int  `yaml:"connection_pool_size"`
	MaxConnections      int  `yaml:"max_connections"`
	ConnectionTimeoutMs int  `yaml:"connection_timeout_ms"`
	UseWriteAheadLog    bool `yaml:"use_write_ahead_log"`
}

// RetentionConfig controls automatic cleanup and the overall corpus cap.
type RetentionConfig struct {
	EnableAutoCleanup bool `yaml:"enable_auto_cleanup"`
	MaxTotalMemories  int  `yaml:"max_total_memories"`
}

// MemoryConfig holds per-type retention in days; -1 means never expire.
type MemoryConfig struct {
	RetentionDays RetentionDaysConfig `yaml:"retention_days"`
}

// RetentionDaysConfig maps one retention day count per MemoryType: -1
// means never expire, 0 means defer to the memory type's built-in
// default (which is how SENSORY's 6-hour window survives a whole-day
// int field), and any positive value is an explicit override.
type RetentionDaysConfig struct {
	Semantic   int `yaml:"semantic"`
	Procedural int `yaml:"procedural"`
	Preference int `yaml:"preference"`
	Episodic   int `yaml:"episodic"`
	Working    int `yaml:"working"`
	Sensory    int `yaml:"sensory"`
}

// Overrides converts the configured per-type day counts into the map
// form sqlite.Store.SetRetentionOverrides expects. Entries left at 0
// (the "defer to the built-in default" sentinel) are omitted entirely
// so the store falls through to types.DefaultRetention for them.
func (r RetentionDaysConfig) Overrides() map[types.MemoryType]float64 {
	out := make(map[types.MemoryType]float64, 6)
	add := func(t types.MemoryType, days int) {
		if days != 0 {
			out[t] = float64(days)
		}
	}
	add(types.MemoryTypeSemantic, r.Semantic)
	add(types.MemoryTypeProcedural, r.Procedural)
	add(types.MemoryTypePreference, r.Preference)
	add(types.MemoryTypeEpisodic, r.Episodic)
	add(types.MemoryTypeWorking, r.Working)
	add(types.MemoryTypeSensory, r.Sensory)
	return out
}

// Default returns the documented defaults for every config key.
func Default() *Config {
	return &Config{
		Performance: PerformanceConfig{
			MaxRecallTimeMs:             100,
			MaxGenerationTimeMs:         200,
			EnablePerformanceMonitoring: true,
		},
		Recall: RecallConfig{
			MaxMemories:     10,
			EnableCaching:   true,
			CacheSize:       1000,
			CacheTTLSeconds: 300,
			Strategies:      []string{"keyword", "entity", "temporal"},
		},
		Extraction: ExtractionConfig{
			MinMemoryLength:          10,
			MaxMemoryLength:          1000,
			EnableEntityExtraction:   true,
			EnablePatternCompilation: true,
		},
		Storage: StorageConfig{
			ConnectionPoolSize:  1,
			MaxConnections:      8,
			ConnectionTimeoutMs: 5000,
			UseWriteAheadLog:    true,
		},
		Retention: RetentionConfig{
			EnableAutoCleanup: false,
			MaxTotalMemories:  0, // 0 means unbounded
		},
		Memory: MemoryConfig{
			RetentionDays: RetentionDaysConfig{
				Semantic:   -1,
				Procedural: -1,
				Preference: -1,
				Episodic:   0,
				Working:    0,
				Sensory:    0,
			},
		},
	}
}

// Load builds a Config from defaults, then an optional config.yaml at
// yamlPath (ignored if it does not exist), then KUZU_MEMORY_-prefixed
// environment variables, which take precedence over the file.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := mergeYAMLFile(cfg, yamlPath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Performance.MaxRecallTimeMs = getEnvInt64("KUZU_MEMORY_PERFORMANCE_MAX_RECALL_TIME_MS", cfg.Performance.MaxRecallTimeMs)
	cfg.Performance.MaxGenerationTimeMs = getEnvInt64("KUZU_MEMORY_PERFORMANCE_MAX_GENERATION_TIME_MS", cfg.Performance.MaxGenerationTimeMs)
	cfg.Performance.EnablePerformanceMonitoring = getEnvBool("KUZU_MEMORY_PERFORMANCE_ENABLE_MONITORING", cfg.Performance.EnablePerformanceMonitoring)

	cfg.Recall.MaxMemories = getEnvInt("KUZU_MEMORY_RECALL_MAX_MEMORIES", cfg.Recall.MaxMemories)
	cfg.Recall.EnableCaching = getEnvBool("KUZU_MEMORY_RECALL_ENABLE_CACHING", cfg.Recall.EnableCaching)
	cfg.Recall.CacheSize = getEnvInt("KUZU_MEMORY_RECALL_CACHE_SIZE", cfg.Recall.CacheSize)
	cfg.Recall.CacheTTLSeconds = getEnvInt("KUZU_MEMORY_RECALL_CACHE_TTL_SECONDS", cfg.Recall.CacheTTLSeconds)
	if v := os.Getenv("KUZU_MEMORY_RECALL_STRATEGIES"); v != "" {
		cfg.Recall.Strategies = strings.Split(v, ",")
	}

	cfg.Extraction.MinMemoryLength = getEnvInt("KUZU_MEMORY_EXTRACTION_MIN_MEMORY_LENGTH", cfg.Extraction.MinMemoryLength)
	cfg.Extraction.MaxMemoryLength = getEnvInt("KUZU_MEMORY_EXTRACTION_MAX_MEMORY_LENGTH", cfg.Extraction.MaxMemoryLength)
	cfg.Extraction.EnableEntityExtraction = getEnvBool("KUZU_MEMORY_EXTRACTION_ENABLE_ENTITY_EXTRACTION", cfg.Extraction.EnableEntityExtraction)
	cfg.Extraction.EnablePatternCompilation = getEnvBool("KUZU_MEMORY_EXTRACTION_ENABLE_PATTERN_COMPILATION", cfg.Extraction.EnablePatternCompilation)

	cfg.Storage.ConnectionPoolSize = getEnvInt("KUZU_MEMORY_STORAGE_CONNECTION_POOL_SIZE", cfg.Storage.ConnectionPoolSize)
	cfg.Storage.MaxConnections = getEnvInt("KUZU_MEMORY_STORAGE_MAX_CONNECTIONS", cfg.Storage.MaxConnections)
	cfg.Storage.ConnectionTimeoutMs = getEnvInt("KUZU_MEMORY_STORAGE_CONNECTION_TIMEOUT_MS", cfg.Storage.ConnectionTimeoutMs)
	cfg.Storage.UseWriteAheadLog = getEnvBool("KUZU_MEMORY_STORAGE_USE_WAL", cfg.Storage.UseWriteAheadLog)

	cfg.Retention.EnableAutoCleanup = getEnvBool("KUZU_MEMORY_RETENTION_ENABLE_AUTO_CLEANUP", cfg.Retention.EnableAutoCleanup)
	cfg.Retention.MaxTotalMemories = getEnvInt("KUZU_MEMORY_RETENTION_MAX_TOTAL_MEMORIES", cfg.Retention.MaxTotalMemories)

	cfg.Memory.RetentionDays.Semantic = getEnvInt("KUZU_MEMORY_RETENTION_DAYS_SEMANTIC", cfg.Memory.RetentionDays.Semantic)
	cfg.Memory.RetentionDays.Procedural = getEnvInt("KUZU_MEMORY_RETENTION_DAYS_PROCEDURAL", cfg.Memory.RetentionDays.Procedural)
	cfg.Memory.RetentionDays.Preference = getEnvInt("KUZU_MEMORY_RETENTION_DAYS_PREFERENCE", cfg.Memory.RetentionDays.Preference)
	cfg.Memory.RetentionDays.Episodic = getEnvInt("KUZU_MEMORY_RETENTION_DAYS_EPISODIC", cfg.Memory.RetentionDays.Episodic)
	cfg.Memory.RetentionDays.Working = getEnvInt("KUZU_MEMORY_RETENTION_DAYS_WORKING", cfg.Memory.RetentionDays.Working)
	cfg.Memory.RetentionDays.Sensory = getEnvInt("KUZU_MEMORY_RETENTION_DAYS_SENSORY", cfg.Memory.RetentionDays.Sensory)
}

// DBPath resolves the database path: KUZU_MEMORY_DB, else
// <project-root>/.kuzu-memory/memories.db where project-root comes from
// KUZU_MEMORY_PROJECT_ROOT (or KUZU_MEMORY_PROJECT), else the cwd.
func DBPath() string {
	if p := os.Getenv("KUZU_MEMORY_DB"); p != "" {
		return p
	}
	root := os.Getenv("KUZU_MEMORY_PROJECT_ROOT")
	if root == "" {
		root = os.Getenv("KUZU_MEMORY_PROJECT")
	}
	if root == "" {
		root, _ = os.Getwd()
	}
	return root + "/.kuzu-memory/memories.db"
}

// ApplyDBOverrides reads the two live-tunable keys from the settings
// table — recall.max_memories and retention.max_total_memories — and
// overrides cfg in place when a DB value is present. withConnection may
// be nil, in which case this is a no-op.
func ApplyDBOverrides(ctx context.Context, withConnection func(ctx context.Context, f func(*sql.DB) error) error, cfg *Config) error {
	if withConnection == nil {
		return nil
	}
	return withConnection(ctx, func(db *sql.DB) error {
		if v, ok, err := getSetting(db, "recall.max_memories"); err != nil {
			return err
		} else if ok {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Recall.MaxMemories = n
			}
		}
		if v, ok, err := getSetting(db, "retention.max_total_memories"); err != nil {
			return err
		} else if ok {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.Retention.MaxTotalMemories = n
			}
		}
		return nil
	})
}

// SetLiveSetting persists one of the two live-tunable keys to the
// settings table, taking effect on the next ApplyDBOverrides call (the
// current process keeps running on the value it already loaded).
func SetLiveSetting(db *sql.DB, key, value string) error {
	switch key {
	case "recall.max_memories", "retention.max_total_memories":
	default:
		return fmt.Errorf("config: %q is not a live-tunable setting", key)
	}
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func getSetting(db *sql.DB, key string) (value string, ok bool, err error) {
	err = db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
