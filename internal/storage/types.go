// Package storage implements the L1 Memory Store: CRUD and bulk
// operations over Memory, Entity, Session, and ArchivedMemory records on
// top of the L0 Graph Adapter.
package storage

import (
	"errors"
	"time"

	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

var (
	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateContent is returned by Store when a live memory
	// already exists with the same content hash.
	ErrDuplicateContent = errors.New("storage: duplicate content")
	// ErrInvalidInput is returned for structurally invalid arguments
	// that the caller should not retry unchanged.
	ErrInvalidInput = errors.New("storage: invalid input")
)

// ListFilter narrows GetRecentMemories and CountLive. Zero values mean
// "no filter on this field". Fields mirror the recall filter surface:
// agent/user/session scoping, memory_type, and a creation-time window.
type ListFilter struct {
	AgentID     string
	UserID      string
	SessionID   string
	MemoryType  types.MemoryType
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int

	// IncludeExpired, when true, bypasses the default live-only filter.
	IncludeExpired bool
}

// Normalize fills in defaults and caps Limit: 1-200, default 50.
func (f *ListFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// GraphBounds prevents combinatorial explosion during the bounded entity
// traversal the Entity recall strategy performs (spec: "traversal always
// bounded by a hop limit, default 2").
type GraphBounds struct {
	MaxHops  int
	MaxNodes int
	Timeout  time.Duration
}

// Normalize applies the same default/cap shape the rest of this codebase
// uses for bounded traversal, with a hop-limit default of 2 per the
// design notes (rather than a general-purpose graph's deeper default).
func (g *GraphBounds) Normalize() {
	if g.MaxHops < 1 {
		g.MaxHops = 2
	}
	if g.MaxHops > 10 {
		g.MaxHops = 10
	}
	if g.MaxNodes < 1 {
		g.MaxNodes = 100
	}
	if g.MaxNodes > 1000 {
		g.MaxNodes = 1000
	}
	if g.Timeout <= 0 {
		g.Timeout = 30 * time.Second
	}
	if g.Timeout > 5*time.Minute {
		g.Timeout = 5 * time.Minute
	}
}

// TraversalResult is a memory discovered via the entity graph
// (memory -> entity -> memory), reported with enough context to explain
// why it surfaced.
type TraversalResult struct {
	Memory         *types.Memory
	HopDistance    int
	SharedEntities []string
}
