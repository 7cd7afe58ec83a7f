package storage

import (
	"context"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// MemoryStore is the L1 Memory Store contract. Implementations sit on
// top of an L0 graph.Adapter and own content-hash uniqueness, bitemporal
// validity, and access bookkeeping for Memory records, plus Entity and
// Session persistence and the generic edge table used for MENTIONS,
// RELATES_TO, BELONGS_TO_SESSION, and CONSOLIDATED_INTO.
type MemoryStore interface {
	// StoreMemory persists m, returning ErrDuplicateContent if a live
	// memory already has the same content hash. On success m.ID and
	// m.ContentHash are populated.
	StoreMemory(ctx context.Context, m *types.Memory) error

	// BatchStoreMemories stores each memory in order, skipping (not
	// erroring on) duplicates. It returns the ids actually inserted, in
	// input order with skips omitted.
	BatchStoreMemories(ctx context.Context, memories []*types.Memory) ([]string, error)

	GetMemoryByID(ctx context.Context, id string) (*types.Memory, error)
	GetRecentMemories(ctx context.Context, filter ListFilter) ([]*types.Memory, error)
	CountLive(ctx context.Context, filter ListFilter) (int, error)
	DeleteMemory(ctx context.Context, id string) error

	// UpdateAccess bumps access_count and sets accessed_at=now for id.
	// Called once per returned memory after recall ranking, never once
	// per strategy that touched it.
	UpdateAccess(ctx context.Context, id string) error

	// CleanupExpired deletes memories whose valid_to has passed and
	// returns the count removed.
	CleanupExpired(ctx context.Context) (int, error)

	// GetOrCreateEntity resolves an entity by (entityType, normalized
	// text), creating it if it doesn't exist yet.
	GetOrCreateEntity(ctx context.Context, entityType, text string) (*types.Entity, error)
	GetEntitiesByMemory(ctx context.Context, memoryID string) ([]*types.Entity, error)
	FindEntitiesByText(ctx context.Context, text string) ([]*types.Entity, error)

	// CreateEdge links two ids with the given relation type. Idempotent:
	// creating the same (source, target, type) edge twice is a no-op.
	CreateEdge(ctx context.Context, sourceID, targetID string, relType types.RelationType) error
	GetEdges(ctx context.Context, sourceID string, relType types.RelationType) ([]string, error)
	GetMemoriesMentioningEntity(ctx context.Context, entityID string) ([]*types.Memory, error)
	DeleteOrphanEdges(ctx context.Context) (int, error)

	// ArchiveMemory writes am and deletes the original memory in one
	// logical step, used by smart pruning and consolidation.
	ArchiveMemory(ctx context.Context, am *types.ArchivedMemory) error
	RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error)
	ListArchives(ctx context.Context, limit int) ([]*types.ArchivedMemory, error)
	PurgeExpiredArchives(ctx context.Context) (int, error)

	// ListAllLive returns every live memory, for the dedup and
	// maintenance passes that must scan the full working set. Callers
	// are expected to apply their own scoping/limits; there is no
	// pagination here since these passes are explicitly whole-corpus.
	ListAllLive(ctx context.Context) ([]*types.Memory, error)

	Close() error
}
