package graph_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory/internal/graph"
)

func openTestAdapter(t *testing.T) (*graph.Adapter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memories.db")
	a, err := graph.Open(path, graph.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, path
}

func TestOpenAppliesSchemaIdempotently(t *testing.T) {
	a, path := openTestAdapter(t)
	ctx := context.Background()

	_, err := a.Execute(ctx, "INSERT INTO settings (key, value) VALUES (?, ?)", []any{"k", "v"}, graph.ExecuteOptions{})
	require.NoError(t, err)

	b, err := graph.Open(path, graph.DefaultConfig(), nil)
	require.NoError(t, err)
	defer b.Close()

	rows, err := b.Execute(ctx, "SELECT value FROM settings WHERE key = ?", []any{"k"}, graph.ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, "v", rows.Values[0][0])
}

func TestOpenSharesRefcountAcrossCallers(t *testing.T) {
	a, path := openTestAdapter(t)
	assert.Equal(t, 1, a.Refcount())

	b, err := graph.Open(path, graph.DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Refcount())

	require.NoError(t, b.Close())
	assert.Equal(t, 1, a.Refcount())
}

func TestWithConnectionRunsAgainstSharedDB(t *testing.T) {
	a, _ := openTestAdapter(t)
	ctx := context.Background()

	err := a.WithConnection(ctx, func(db *sql.DB) error {
		return db.Ping()
	})
	require.NoError(t, err)
}

func TestExecuteSelectReturnsRows(t *testing.T) {
	a, _ := openTestAdapter(t)
	ctx := context.Background()

	_, err := a.Execute(ctx, "INSERT INTO sessions (id, started_at) VALUES (?, datetime('now'))", []any{"s1"}, graph.ExecuteOptions{})
	require.NoError(t, err)

	rows, err := a.Execute(ctx, "SELECT id FROM sessions", nil, graph.ExecuteOptions{})
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, "s1", rows.Values[0][0])
}

// A callback's own business-logic error must come back unwrapped and
// untouched — WithConnection's retry loop only owns genuine lock/busy
// conflicts, not domain errors callers recognize by identity.
func TestWithConnectionPassesThroughCallbackErrorUnwrapped(t *testing.T) {
	a, _ := openTestAdapter(t)
	ctx := context.Background()

	sentinel := errors.New("duplicate content")
	err := a.WithConnection(ctx, func(db *sql.DB) error {
		return sentinel
	})
	assert.Same(t, sentinel, err)
}
