package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/dedup"
	"github.com/kuzu-memory/kuzu-memory/internal/errs"
	"github.com/kuzu-memory/kuzu-memory/internal/extract"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// RememberInput carries the caller-supplied fields of a remember call;
// SessionID, AgentID, UserID, and Metadata are all optional.
type RememberInput struct {
	Content    string
	SourceType string
	SessionID  string
	AgentID    string
	UserID     string
	Metadata   map[string]string
}

// Remember extracts zero or more candidate memories from input.Content,
// runs each through the dedup engine against the live working set, and
// persists whatever survives. On pure duplicates it returns the id of
// the existing memory rather than erroring. On an empty extraction
// result (e.g. content below the minimum length) it returns an empty id
// and no error, per the extractor's logged-not-raised policy.
func (s *Service) Remember(ctx context.Context, input RememberInput) (string, error) {
	start := time.Now()
	if err := validateNonEmpty("service.Remember", input.Content); err != nil {
		return "", err
	}

	candidates := s.extractor.Extract(input.Content, input.SourceType)
	if len(candidates) == 0 {
		s.log.Info("remember produced no candidate memories", zap.String("source_type", input.SourceType))
		return "", nil
	}

	existing, err := s.store.ListAllLive(ctx)
	if err != nil {
		return "", errs.Wrap(errs.Transient, "service.Remember", err)
	}

	var firstID string
	wrote := false
	for _, candidate := range candidates {
		candidate.SessionID = input.SessionID
		candidate.AgentID = input.AgentID
		candidate.UserID = input.UserID
		candidate.Metadata = input.Metadata

		id, storedNew, err := s.storeCandidate(ctx, candidate, existing)
		if err != nil {
			return "", err
		}
		if firstID == "" {
			firstID = id
		}
		if storedNew {
			wrote = true
			existing = append(existing, candidate)
		}
	}

	if wrote {
		bumpRecallGenerationAfterWrite()
	}

	if s.cfg.Performance.EnablePerformanceMonitoring {
		elapsedMs := time.Since(start).Milliseconds()
		budget := s.cfg.Performance.MaxGenerationTimeMs
		if budget > 0 && elapsedMs > budget {
			s.log.Warn("remember exceeded soft time budget",
				zap.Int64("generation_time_ms", elapsedMs),
				zap.Int64("budget_ms", budget))
		}
	}
	return firstID, nil
}

// storeCandidate runs one extracted candidate through the dedup engine
// and, if it results in a new row, wires its entity mentions into the
// graph. It returns the id the caller should surface and whether a new
// row was actually written (false for ActionSkip).
func (s *Service) storeCandidate(ctx context.Context, candidate *types.Memory, existing []*types.Memory) (string, bool, error) {
	decision := s.dedup.Decide(candidate, existing)

	switch decision.Action {
	case dedup.ActionSkip:
		return decision.MatchedID, false, nil

	case dedup.ActionUpdate:
		if err := s.store.StoreMemory(ctx, candidate); err != nil {
			return "", false, translateStoreErr(err)
		}
		if err := s.store.CreateEdge(ctx, candidate.ID, decision.MatchedID, types.RelationRelatesTo); err != nil {
			return "", false, errs.Wrap(errs.Transient, "service.Remember.CreateEdge", err)
		}
		s.attachEntities(ctx, candidate)
		return candidate.ID, true, nil

	default: // dedup.ActionStore
		if err := s.store.StoreMemory(ctx, candidate); err != nil {
			return "", false, translateStoreErr(err)
		}
		s.attachEntities(ctx, candidate)
		return candidate.ID, true, nil
	}
}

// attachEntities materializes the typed entities in candidate.Content
// into the entity table and MENTIONS edges. Failures are logged, not
// raised: a missed entity edge degrades entity-strategy recall, it
// doesn't invalidate the memory that was just durably stored.
func (s *Service) attachEntities(ctx context.Context, candidate *types.Memory) {
	for _, te := range extract.ExtractTypedEntities(candidate.Content) {
		entity, err := s.store.GetOrCreateEntity(ctx, te.Type, te.Text)
		if err != nil {
			s.log.Warn("failed to resolve entity", zap.String("text", te.Text), zap.Error(err))
			continue
		}
		if err := s.store.CreateEdge(ctx, candidate.ID, entity.ID, types.RelationMentions); err != nil {
			s.log.Warn("failed to create mentions edge", zap.String("entity_id", entity.ID), zap.Error(err))
		}
	}
	if candidate.SessionID != "" {
		if err := s.store.CreateEdge(ctx, candidate.ID, candidate.SessionID, types.RelationBelongsToSession); err != nil {
			s.log.Warn("failed to create session edge", zap.String("session_id", candidate.SessionID), zap.Error(err))
		}
	}
}

// BatchStore stores each input independently, returning the ids
// actually produced (skips from exact duplicates are represented by the
// matched existing id, same as Remember, so callers always get one id
// per input they supplied).
func (s *Service) BatchStore(ctx context.Context, inputs []RememberInput) ([]string, error) {
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		id, err := s.Remember(ctx, in)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteMemory removes a memory outright (not an archive) and bumps the
// recall generation so cached results referencing it are invalidated.
func (s *Service) DeleteMemory(ctx context.Context, id string) error {
	if err := validateNonEmpty("service.DeleteMemory", id); err != nil {
		return err
	}
	if err := s.store.DeleteMemory(ctx, id); err != nil {
		return translateStoreErr(err)
	}
	bumpRecallGenerationAfterWrite()
	return nil
}

// GetMemory looks up a single memory by id without touching its access
// bookkeeping; recall is the only path that bumps access_count.
func (s *Service) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	m, err := s.store.GetMemoryByID(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return m, nil
}

// GetRecent returns the most recently created live memories, optionally
// narrowed to one memory type.
func (s *Service) GetRecent(ctx context.Context, limit int, memType types.MemoryType) ([]*types.Memory, error) {
	filter := storage.ListFilter{Limit: limit, MemoryType: memType}
	memories, err := s.store.GetRecentMemories(ctx, filter)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "service.GetRecent", err)
	}
	return memories, nil
}

// Count returns the number of live memories matching filter.
func (s *Service) Count(ctx context.Context, filter storage.ListFilter) (int, error) {
	n, err := s.store.CountLive(ctx, filter)
	if err != nil {
		return 0, errs.Wrap(errs.Transient, "service.Count", err)
	}
	return n, nil
}

// CleanupExpired removes memories whose bitemporal validity has lapsed.
// This is the lightweight expiry sweep; Cleanup (stale/duplicates/
// orphans) is the heavier maintenance pass exposed separately.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.store.CleanupExpired(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.Transient, "service.CleanupExpired", err)
	}
	if n > 0 {
		bumpRecallGenerationAfterWrite()
	}
	return n, nil
}

func translateStoreErr(err error) error {
	if errs.Is(err, errs.Transient) || errs.Is(err, errs.Fatal) || errs.Is(err, errs.Validation) {
		// Already categorized by a lower layer (e.g. a graph.WithConnection
		// retry exhaustion); pass it through rather than re-wrapping.
		return err
	}
	switch {
	case errors.Is(err, storage.ErrDuplicateContent):
		return errs.Wrap(errs.Validation, "service", err)
	case errors.Is(err, storage.ErrNotFound):
		return errs.Wrap(errs.Validation, "service", err)
	case errors.Is(err, storage.ErrInvalidInput):
		return errs.Wrap(errs.Validation, "service", err)
	default:
		return errs.Wrap(errs.Transient, "service", err)
	}
}
