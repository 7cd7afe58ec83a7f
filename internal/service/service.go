// Package service implements the Memory Service facade: the single
// entry point for storing, recalling, and maintaining memories. It owns
// the lifecycle of the lower layers — graph adapter, memory store,
// extractor, dedup engine, recall, maintenance — and translates their
// precise errors into the facade's stable Validation/Transient/Fatal
// taxonomy.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/backup"
	"github.com/kuzu-memory/kuzu-memory/internal/config"
	"github.com/kuzu-memory/kuzu-memory/internal/dedup"
	"github.com/kuzu-memory/kuzu-memory/internal/errs"
	"github.com/kuzu-memory/kuzu-memory/internal/extract"
	"github.com/kuzu-memory/kuzu-memory/internal/graph"
	"github.com/kuzu-memory/kuzu-memory/internal/maintenance"
	"github.com/kuzu-memory/kuzu-memory/internal/recall"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/internal/storage/sqlite"
)

// Service is the Memory Service facade. It is safe for concurrent use;
// every method it exposes is a thin, synchronous wrapper over the
// lower layers, which themselves own whatever locking they need.
type Service struct {
	adapter    *graph.Adapter
	store      storage.MemoryStore
	extractor  *extract.Extractor
	dedup      *dedup.Engine
	recaller   *recall.Recaller
	maintainer *maintenance.Maintainer
	backup     *backup.BackupService
	cfg        *config.Config
	log        *zap.Logger
}

// Initialize opens (or attaches to, if already open in this process) the
// database at dbPath and wires every layer on top of it. backupDir, when
// non-empty, additionally constructs a BackupService the maintenance
// passes can invoke before a destructive write.
func Initialize(ctx context.Context, dbPath string, cfg *config.Config, backupDir string, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	graphCfg := graph.DefaultConfig()
	if cfg.Storage.MaxConnections > 0 {
		graphCfg.MaxConnections = cfg.Storage.MaxConnections
	}
	if cfg.Storage.ConnectionPoolSize > 0 {
		graphCfg.MinConnections = cfg.Storage.ConnectionPoolSize
	}
	if cfg.Storage.ConnectionTimeoutMs > 0 {
		graphCfg.AcquireTimeout = time.Duration(cfg.Storage.ConnectionTimeoutMs) * time.Millisecond
	}

	adapter, err := graph.Open(dbPath, graphCfg, log)
	if err != nil {
		return nil, err // already an *errs.Error (errs.Fatal) from graph.Open
	}

	store := sqlite.New(adapter, log)
	store.SetRetentionOverrides(cfg.Memory.RetentionDays.Overrides())

	if err := config.ApplyDBOverrides(ctx, adapter.WithConnection, cfg); err != nil {
		log.Warn("failed to apply live settings overrides, continuing on file/env config", zap.Error(err))
	}

	extractor := extract.New(extract.Config{
		MinMemoryLength:        cfg.Extraction.MinMemoryLength,
		MaxMemoryLength:        cfg.Extraction.MaxMemoryLength,
		EnableEntityExtraction: cfg.Extraction.EnableEntityExtraction,
	})

	dedupEngine := dedup.New(dedup.DefaultConfig())

	recallCfg := recall.DefaultConfig()
	recallCfg.MaxMemories = cfg.Recall.MaxMemories
	recallCfg.EnableCaching = cfg.Recall.EnableCaching
	recallCfg.CacheSize = cfg.Recall.CacheSize
	recallCfg.CacheTTL = time.Duration(cfg.Recall.CacheTTLSeconds) * time.Second
	recallCfg.MaxRecallTimeMs = cfg.Performance.MaxRecallTimeMs
	recaller, err := recall.New(store, recallCfg, log)
	if err != nil {
		_ = adapter.Close()
		return nil, errs.Wrap(errs.Fatal, "service.Initialize", err)
	}

	var backupSvc *backup.BackupService
	var backuper backup.Backuper
	if backupDir != "" {
		backupSvc, err = backup.NewBackupService(backup.BackupConfig{
			DBPath:        dbPath,
			BackupDir:     backupDir,
			Interval:      time.Hour,
			VerifyBackups: true,
		}, log)
		if err != nil {
			log.Warn("backup service unavailable, maintenance will run without pre-write snapshots", zap.Error(err))
		} else {
			backuper = backupSvc
		}
	}

	maintainer := maintenance.New(store, maintenance.DefaultConfig(), backuper, log)

	return &Service{
		adapter:    adapter,
		store:      store,
		extractor:  extractor,
		dedup:      dedupEngine,
		recaller:   recaller,
		maintainer: maintainer,
		backup:     backupSvc,
		cfg:        cfg,
		log:        log,
	}, nil
}

// Close releases this Service's handle on the shared database,
// decrementing the process-wide refcount and tearing down the
// underlying connection when it reaches zero.
func (s *Service) Close() error {
	return s.adapter.Close()
}

func validateNonEmpty(op, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.Wrap(errs.Validation, op, fmt.Errorf("empty content"))
	}
	return nil
}

// bumpRecallGenerationAfterWrite invalidates the recall cache after any
// write the facade makes outside the maintenance passes (which already
// bump generation themselves on completion): store, batch store, delete,
// and the lightweight expiry sweep.
func bumpRecallGenerationAfterWrite() {
	recall.BumpGeneration()
}
