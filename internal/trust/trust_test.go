package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryopt/queryopt-mcp/internal/storage"
)

func setupGate(t *testing.T) (*Gate, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewGate(store), store
}

func TestIsTrustedLifecycle(t *testing.T) {
	gate, store := setupGate(t)
	ctx := context.Background()

	req := &storage.Request{QueryText: "SELECT * FROM users"}
	require.NoError(t, store.CreateRequest(ctx, req))

	// No results yet.
	trusted, err := gate.IsTrusted(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, trusted)

	res := &storage.Result{RequestID: req.ID, OptimizedQuery: "SELECT id FROM users"}
	require.NoError(t, store.CreateResult(ctx, res))

	// Result without feedback is still untrusted.
	trusted, err = gate.IsTrusted(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, trusted)

	// Negative feedback does not establish trust.
	require.NoError(t, store.CreateFeedback(ctx, &storage.Feedback{ResultID: res.ID, Useful: false}))
	trusted, err = gate.IsTrusted(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, trusted)

	// One positive feedback entry is enough.
	require.NoError(t, store.CreateFeedback(ctx, &storage.Feedback{ResultID: res.ID, Useful: true}))
	trusted, err = gate.IsTrusted(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, trusted)

	// Later negative feedback does not revoke it.
	require.NoError(t, store.CreateFeedback(ctx, &storage.Feedback{ResultID: res.ID, Useful: false}))
	trusted, err = gate.IsTrusted(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestIsTrustedUnknownRequest(t *testing.T) {
	gate, _ := setupGate(t)

	trusted, err := gate.IsTrusted(context.Background(), 12345)
	require.NoError(t, err)
	assert.False(t, trusted)
}
