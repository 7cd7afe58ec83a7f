package service

import (
	"context"
	"time"

	"github.com/kuzu-memory/kuzu-memory/internal/errs"
	"github.com/kuzu-memory/kuzu-memory/internal/maintenance"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Cleanup runs the stale/duplicates/orphans pass. A MaintenanceError for
// one sub-pass does not abort the others; the returned result carries
// partial counts and the Maintainer's own error, if any.
func (s *Service) Cleanup(ctx context.Context, now time.Time, dryRun bool) (*maintenance.CleanupResult, error) {
	result, err := s.maintainer.Cleanup(ctx, now, dryRun)
	if err != nil {
		return result, errs.Wrap(errs.Transient, "service.Cleanup", err)
	}
	return result, nil
}

// Prune runs smart pruning: scoring every live memory against the
// four-factor protection model and archiving whatever falls below
// threshold, unless dryRun only wants the candidate count.
func (s *Service) Prune(ctx context.Context, now time.Time, dryRun bool) (*maintenance.PruneResult, error) {
	result, err := s.maintainer.Prune(ctx, now, dryRun)
	if err != nil {
		return result, errs.Wrap(errs.Transient, "service.Prune", err)
	}
	return result, nil
}

// Consolidate clusters eligible EPISODIC memories and replaces each
// cluster with one summary memory, archiving the originals.
func (s *Service) Consolidate(ctx context.Context, now time.Time, dryRun bool) (*maintenance.ConsolidationResult, error) {
	result, err := s.maintainer.Consolidate(ctx, now, dryRun)
	if err != nil {
		return result, errs.Wrap(errs.Transient, "service.Consolidate", err)
	}
	return result, nil
}

// RestoreArchive recreates a live Memory from an archived record.
func (s *Service) RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error) {
	if err := validateNonEmpty("service.RestoreArchive", archiveID); err != nil {
		return nil, err
	}
	m, err := s.maintainer.RestoreArchive(ctx, archiveID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return m, nil
}

// ListArchives returns up to limit archived memories, most recent first.
func (s *Service) ListArchives(ctx context.Context, limit int) ([]*types.ArchivedMemory, error) {
	archives, err := s.maintainer.ListArchives(ctx, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "service.ListArchives", err)
	}
	return archives, nil
}

// PurgeExpiredArchives permanently deletes archive records past their
// expires_at, freeing storage no restore can ever reach again.
func (s *Service) PurgeExpiredArchives(ctx context.Context) (int, error) {
	n, err := s.maintainer.PurgeExpiredArchives(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.Transient, "service.PurgeExpiredArchives", err)
	}
	return n, nil
}
