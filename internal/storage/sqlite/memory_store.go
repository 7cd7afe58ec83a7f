// Package sqlite implements storage.MemoryStore on top of the embedded
// L0 graph.Adapter.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kuzu-memory/kuzu-memory/internal/graph"
	"github.com/kuzu-memory/kuzu-memory/internal/storage"
	"github.com/kuzu-memory/kuzu-memory/pkg/types"
)

// Store is the sqlite-backed storage.MemoryStore.
type Store struct {
	adapter *graph.Adapter
	log     *zap.Logger

	// retentionOverride holds per-type retention overrides in days,
	// keyed by memory type. A negative value means "never expire"; an
	// absent key falls back to types.DefaultRetention. Set once at
	// startup via SetRetentionOverrides, read on every StoreMemory.
	retentionOverride map[types.MemoryType]float64
}

// New wraps adapter as a storage.MemoryStore.
func New(adapter *graph.Adapter, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{adapter: adapter, log: log}
}

// SetRetentionOverrides installs caller-configured retention windows
// (in days, negative meaning never-expire) that take priority over
// types.DefaultRetention for the given memory types. Types absent from
// days keep falling back to the built-in default. Not safe to call
// concurrently with StoreMemory; intended as a one-time setup step.
func (s *Store) SetRetentionOverrides(days map[types.MemoryType]float64) {
	s.retentionOverride = days
}

// retentionFor resolves the retention window for t: an explicit
// override first, then the built-in default. ok is false when the
// memory type never expires.
func (s *Store) retentionFor(t types.MemoryType) (days float64, ok bool) {
	if override, present := s.retentionOverride[t]; present {
		if override < 0 {
			return 0, false
		}
		return override, true
	}
	return types.DefaultRetention(t)
}

var _ storage.MemoryStore = (*Store)(nil)

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(types.NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// StoreMemory implements storage.MemoryStore.
func (s *Store) StoreMemory(ctx context.Context, m *types.Memory) error {
	if m.Content == "" {
		return fmt.Errorf("%w: empty content", storage.ErrInvalidInput)
	}
	m.ContentHash = contentHash(m.Content)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ValidFrom.IsZero() {
		m.ValidFrom = m.CreatedAt
	}
	if m.Confidence == 0 {
		m.Confidence = 1.0
	}
	if m.Importance == 0 {
		m.Importance = 0.5
	}
	if m.ValidTo == nil {
		// Expiry counts from the time of writing, not from a backdated
		// CreatedAt/ValidFrom.
		if days, ok := s.retentionFor(m.MemoryType); ok {
			t := time.Now().UTC().Add(time.Duration(days * float64(24*time.Hour)))
			m.ValidTo = &t
		}
	}

	metadataJSON, err := marshalMap(m.Metadata)
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}
	entitiesJSON, err := marshalSlice(m.Entities)
	if err != nil {
		return fmt.Errorf("storage: marshal entities: %w", err)
	}
	keywordsJSON, err := marshalSlice(m.Keywords)
	if err != nil {
		return fmt.Errorf("storage: marshal keywords: %w", err)
	}

	return s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		var dupeID string
		err := db.QueryRowContext(ctx, `
			SELECT id FROM memories
			WHERE content_hash = ? AND (valid_to IS NULL OR valid_to > ?)
			LIMIT 1`, m.ContentHash, time.Now().UTC()).Scan(&dupeID)
		if err == nil {
			return fmt.Errorf("%w: matches memory %s", storage.ErrDuplicateContent, dupeID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO memories (
				id, content, content_hash, memory_type, source_type, importance,
				confidence, created_at, valid_from, valid_to, accessed_at,
				access_count, agent_id, user_id, session_id, metadata, entities,
				keywords, update_marker
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			m.ID, m.Content, m.ContentHash, string(m.MemoryType), m.SourceType,
			m.Importance, m.Confidence, m.CreatedAt, m.ValidFrom, nullableTimePtr(m.ValidTo),
			nullableTimePtr(m.AccessedAt), m.AccessCount, m.AgentID, m.UserID, m.SessionID,
			metadataJSON, entitiesJSON, keywordsJSON, boolToInt(m.UpdateMarker),
		)
		return err
	})
}

// BatchStoreMemories implements storage.MemoryStore.
func (s *Store) BatchStoreMemories(ctx context.Context, memories []*types.Memory) ([]string, error) {
	var stored []string
	for _, m := range memories {
		if err := s.StoreMemory(ctx, m); err != nil {
			if errors.Is(err, storage.ErrDuplicateContent) {
				s.log.Debug("skipped duplicate in batch store", zap.String("content_hash", contentHash(m.Content)))
				continue
			}
			return stored, err
		}
		stored = append(stored, m.ID)
	}
	return stored, nil
}

// GetMemoryByID implements storage.MemoryStore.
func (s *Store) GetMemoryByID(ctx context.Context, id string) (*types.Memory, error) {
	var m *types.Memory
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, selectMemoryColumns+" FROM memories WHERE id = ?", id)
		var scanErr error
		m, scanErr = scanMemory(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return m, err
}

// GetRecentMemories implements storage.MemoryStore.
func (s *Store) GetRecentMemories(ctx context.Context, filter storage.ListFilter) ([]*types.Memory, error) {
	filter.Normalize()
	where, args := buildWhere(filter)

	var out []*types.Memory
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		query := selectMemoryColumns + " FROM memories " + where +
			" ORDER BY created_at DESC LIMIT ? OFFSET ?"
		args := append(append([]any{}, args...), filter.Limit, filter.Offset)
		rows, err := db.QueryContext(ctx, query, args...)
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

// CountLive implements storage.MemoryStore.
func (s *Store) CountLive(ctx context.Context, filter storage.ListFilter) (int, error) {
	where, args := buildWhere(filter)
	var count int
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories "+where, args...).Scan(&count)
	})
	return count, err
}

// DeleteMemory implements storage.MemoryStore.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// UpdateAccess implements storage.MemoryStore.
func (s *Store) UpdateAccess(ctx context.Context, id string) error {
	return s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE memories SET access_count = access_count + 1, accessed_at = ?
			WHERE id = ?`, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// CleanupExpired implements storage.MemoryStore.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	var n int64
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM memories WHERE valid_to IS NOT NULL AND valid_to <= ?", time.Now().UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// ListAllLive implements storage.MemoryStore.
func (s *Store) ListAllLive(ctx context.Context) ([]*types.Memory, error) {
	var out []*types.Memory
	err := s.adapter.WithConnection(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, selectMemoryColumns+
			" FROM memories WHERE valid_to IS NULL OR valid_to > ? ORDER BY created_at DESC", time.Now().UTC())
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

// Close releases this store's reference on the underlying adapter.
func (s *Store) Close() error {
	return s.adapter.Close()
}

const selectMemoryColumns = `SELECT
	id, content, content_hash, memory_type, source_type, importance, confidence,
	created_at, valid_from, valid_to, accessed_at, access_count, agent_id,
	user_id, session_id, metadata, entities, keywords, update_marker`

type scannable interface {
	Scan(dest ...any) error
}

func scanMemory(row scannable) (*types.Memory, error) {
	var m types.Memory
	var memoryType, metadataJSON, entitiesJSON, keywordsJSON string
	var validTo, accessedAt sql.NullTime
	var updateMarker int

	err := row.Scan(
		&m.ID, &m.Content, &m.ContentHash, &memoryType, &m.SourceType, &m.Importance,
		&m.Confidence, &m.CreatedAt, &m.ValidFrom, &validTo, &accessedAt, &m.AccessCount,
		&m.AgentID, &m.UserID, &m.SessionID, &metadataJSON, &entitiesJSON, &keywordsJSON,
		&updateMarker,
	)
	if err != nil {
		return nil, err
	}

	m.MemoryType = types.MemoryType(memoryType)
	m.UpdateMarker = updateMarker != 0
	if validTo.Valid {
		t := validTo.Time
		m.ValidTo = &t
	}
	if accessedAt.Valid {
		t := accessedAt.Time
		m.AccessedAt = &t
	}
	if err := json.Unmarshal([]byte(metadataJSON), &m.Metadata); err != nil {
		return nil, fmt.Errorf("storage: unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(entitiesJSON), &m.Entities); err != nil {
		return nil, fmt.Errorf("storage: unmarshal entities: %w", err)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &m.Keywords); err != nil {
		return nil, fmt.Errorf("storage: unmarshal keywords: %w", err)
	}
	return &m, nil
}

func buildWhere(filter storage.ListFilter) (string, []any) {
	clauses := []string{}
	args := []any{}

	if !filter.IncludeExpired {
		clauses = append(clauses, "(valid_to IS NULL OR valid_to > ?)")
		args = append(args, time.Now().UTC())
	}
	if filter.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.MemoryType != "" {
		clauses = append(clauses, "memory_type = ?")
		args = append(args, string(filter.MemoryType))
	}
	if filter.CreatedFrom != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *filter.CreatedTo)
	}

	if len(clauses) == 0 {
		return "", args
	}
	where := "WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func marshalSlice(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func nullableTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
