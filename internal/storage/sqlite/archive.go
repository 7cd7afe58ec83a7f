package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// ArchiveMemory implements storage.MemoryStore: it writes the archive
// record and removes the live memory in one transaction. RestoreCount is
// set to the number of archive records already stored for the same
// OriginalID; RestoreArchive deletes the record and gives the restored
// memory a new id, so a restored memory archived again starts at 0.
func (s *Store) ArchiveMemory(ctx context.Context, am *types.ArchivedMemory) error {
	if am.ID == "" {
		am.ID = uuid.NewString()
	}
	if am.ArchivedAt.IsZero() {
		am.ArchivedAt = time.Now().UTC()
	}

	return s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var priorCycles int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM archived_memories WHERE original_id = ?", am.OriginalID,
		).Scan(&priorCycles); err != nil {
			return err
		}
		am.RestoreCount = priorCycles

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO archived_memories (
				id, original_id, content, memory_type, source_type, importance,
				created_at, archived_at, expires_at, prune_score, restore_count
			) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			am.ID, am.OriginalID, am.Content, string(am.MemoryType), am.SourceType,
			am.Importance, am.CreatedAt, am.ArchivedAt, am.ExpiresAt, am.PruneScore, am.RestoreCount,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", am.OriginalID); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// RestoreArchive implements storage.MemoryStore: it re-inserts the
// archived content as a fresh live memory (with a new id, since the
// original may already have been superseded) and removes the archive
// entry. The new id is not linked back to OriginalID, so archiving the
// restored memory again starts a new record with RestoreCount 0.
func (s *Store) RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error) {
	var restored *types.Memory
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var am types.ArchivedMemory
		var memoryType string
		row := tx.QueryRowContext(ctx, `
			SELECT original_id, content, memory_type, source_type, importance, created_at
			FROM archived_memories WHERE id = ?`, archiveID)
		if err := row.Scan(&am.OriginalID, &am.Content, &memoryType, &am.SourceType, &am.Importance, &am.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return err
		}

		now := time.Now().UTC()
		m := &types.Memory{
			ID:          uuid.NewString(),
			Content:     am.Content,
			ContentHash: contentHash(am.Content),
			MemoryType:  types.MemoryType(memoryType),
			SourceType:  am.SourceType,
			Importance:  am.Importance,
			Confidence:  1.0,
			CreatedAt:   am.CreatedAt,
			ValidFrom:   now,
		}
		metadataJSON, _ := marshalMap(nil)
		entitiesJSON, _ := marshalSlice(nil)
		keywordsJSON, _ := marshalSlice(nil)

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memories (
				id, content, content_hash, memory_type, source_type, importance,
				confidence, created_at, valid_from, valid_to, accessed_at,
				access_count, agent_id, user_id, session_id, metadata, entities,
				keywords, update_marker
			) VALUES (?,?,?,?,?,?,?,?,?,NULL,NULL,0,'','','',?,?,?,0)`,
			m.ID, m.Content, m.ContentHash, string(m.MemoryType), m.SourceType,
			m.Importance, m.Confidence, m.CreatedAt, m.ValidFrom,
			metadataJSON, entitiesJSON, keywordsJSON,
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM archived_memories WHERE id = ?", archiveID); err != nil {
			return err
		}

		restored = m
		return tx.Commit()
	})
	return restored, err
}

// ListArchives implements storage.MemoryStore.
func (s *Store) ListArchives(ctx context.Context, limit int) ([]*types.ArchivedMemory, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.ArchivedMemory
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, original_id, content, memory_type, source_type, importance,
				created_at, archived_at, expires_at, prune_score, restore_count
			FROM archived_memories ORDER BY archived_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var am types.ArchivedMemory
			var memoryType string
			if err := rows.Scan(&am.ID, &am.OriginalID, &am.Content, &memoryType, &am.SourceType,
				&am.Importance, &am.CreatedAt, &am.ArchivedAt, &am.ExpiresAt, &am.PruneScore, &am.RestoreCount); err != nil {
				return err
			}
			am.MemoryType = types.MemoryType(memoryType)
			out = append(out, &am)
		}
		return rows.Err()
	})
	return out, err
}

// PurgeExpiredArchives implements storage.MemoryStore.
func (s *Store) PurgeExpiredArchives(ctx context.Context) (int, error) {
	var n int64
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM archived_memories WHERE expires_at <= ?", time.Now().UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}
