package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// GetOrCreateEntity implements storage.MemoryStore.
func (s *Store) GetOrCreateEntity(ctx context.Context, entityType, text string) (*types.Entity, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, storage.ErrInvalidInput
	}

	var e *types.Entity
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		e2, err := scanEntityByKey(ctx, db, entityType, normalized)
		if err == nil {
			e = e2
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		id := uuid.NewString()
		now := time.Now().UTC()
		_, err = db.ExecContext(ctx, `
			INSERT INTO entities (id, type, text, normalized_text, created_at)
			VALUES (?,?,?,?,?)
			ON CONFLICT(type, normalized_text) DO NOTHING`,
			id, entityType, text, normalized, now)
		if err != nil {
			return err
		}
		e2, err = scanEntityByKey(ctx, db, entityType, normalized)
		if err != nil {
			return err
		}
		e = e2
		return nil
	})
	return e, err
}

func scanEntityByKey(ctx context.Context, db *sql.DB, entityType, normalized string) (*types.Entity, error) {
	var e types.Entity
	row := db.QueryRowContext(ctx, `
		SELECT id, type, text, normalized_text, created_at
		FROM entities WHERE type = ? AND normalized_text = ?`, entityType, normalized)
	if err := row.Scan(&e.ID, &e.Type, &e.Text, &e.NormalizedText, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEntitiesByText implements storage.MemoryStore, matching across all
// entity types since the caller (typically the Entity recall strategy)
// doesn't necessarily know which type a query mention resolves to.
func (s *Store) FindEntitiesByText(ctx context.Context, text string) ([]*types.Entity, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	var out []*types.Entity
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, type, text, normalized_text, created_at
			FROM entities WHERE normalized_text = ?`, normalized)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e types.Entity
			if err := rows.Scan(&e.ID, &e.Type, &e.Text, &e.NormalizedText, &e.CreatedAt); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return rows.Err()
	})
	return out, err
}

// GetEntitiesByMemory implements storage.MemoryStore.
func (s *Store) GetEntitiesByMemory(ctx context.Context, memoryID string) ([]*types.Entity, error) {
	var out []*types.Entity
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT e.id, e.type, e.text, e.normalized_text, e.created_at
			FROM entities e
			JOIN memory_edges me ON me.target_id = e.id
			WHERE me.source_id = ? AND me.type = ?`, memoryID, string(types.RelationMentions))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e types.Entity
			if err := rows.Scan(&e.ID, &e.Type, &e.Text, &e.NormalizedText, &e.CreatedAt); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return rows.Err()
	})
	return out, err
}

// CreateEdge implements storage.MemoryStore.
func (s *Store) CreateEdge(ctx context.Context, sourceID, targetID string, relType types.RelationType) error {
	return s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO memory_edges (id, source_id, target_id, type, created_at)
			VALUES (?,?,?,?,?)
			ON CONFLICT(source_id, target_id, type) DO NOTHING`,
			uuid.NewString(), sourceID, targetID, string(relType), time.Now().UTC())
		return err
	})
}

// GetEdges implements storage.MemoryStore.
func (s *Store) GetEdges(ctx context.Context, sourceID string, relType types.RelationType) ([]string, error) {
	var out []string
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT target_id FROM memory_edges WHERE source_id = ? AND type = ?`, sourceID, string(relType))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var target string
			if err := rows.Scan(&target); err != nil {
				return err
			}
			out = append(out, target)
		}
		return rows.Err()
	})
	return out, err
}

// GetMemoriesMentioningEntity implements storage.MemoryStore.
func (s *Store) GetMemoriesMentioningEntity(ctx context.Context, entityID string) ([]*types.Memory, error) {
	var out []*types.Memory
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, selectMemoryColumns+`
			FROM memories m
			JOIN memory_edges me ON me.source_id = m.id
			WHERE me.target_id = ? AND me.type = ? AND (m.valid_to IS NULL OR m.valid_to > ?)`,
			entityID, string(types.RelationMentions), time.Now().UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMemory(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// DeleteOrphanEdges implements storage.MemoryStore. An edge is orphaned
// when its source (always a memory) no longer exists, or when its target
// no longer exists in the table appropriate to its relation type.
func (s *Store) DeleteOrphanEdges(ctx context.Context) (int, error) {
	var total int64
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		queries := []struct {
			relType string
			sql     string
		}{
			{string(types.RelationMentions), `
				DELETE FROM memory_edges WHERE type = ? AND (
					source_id NOT IN (SELECT id FROM memories) OR
					target_id NOT IN (SELECT id FROM entities))`},
			{string(types.RelationRelatesTo), `
				DELETE FROM memory_edges WHERE type = ? AND (
					source_id NOT IN (SELECT id FROM memories) OR
					target_id NOT IN (SELECT id FROM memories))`},
			{string(types.RelationBelongsToSession), `
				DELETE FROM memory_edges WHERE type = ? AND (
					source_id NOT IN (SELECT id FROM memories) OR
					target_id NOT IN (SELECT id FROM sessions))`},
			{string(types.RelationConsolidatedInto), `
				DELETE FROM memory_edges WHERE type = ? AND
					source_id NOT IN (SELECT id FROM memories)`},
		}
		for _, q := range queries {
			res, err := db.ExecContext(ctx, q.sql, q.relType)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return int(total), err
}
