package remote

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meal-planner/internal/database"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "plannings.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db.SQL, 20*time.Millisecond, zap.NewNop())
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newTestSQLiteStore(t), 100*time.Millisecond)
}

func TestSQLiteStoreBumpsVersion(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "alice", []byte(`{"items": []}`)))
	require.NoError(t, store.Set(ctx, "alice", []byte(`{"items": []}`)))

	_, version, ok, err := store.load(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), version)
}
