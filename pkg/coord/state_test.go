package coord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetState(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("first write produces version 1", func(t *testing.T) {
		version, err := client.SetState(ctx, "build/status", "pending")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)

		entry, err := client.GetState(ctx, "build/status")
		require.NoError(t, err)
		assert.Equal(t, "build/status", entry.Key)
		assert.Equal(t, "pending", entry.Value)
		assert.Equal(t, int64(1), entry.Version)
		assert.Greater(t, entry.UpdatedAtMs, int64(0))
	})

	t.Run("each write increments version by one", func(t *testing.T) {
		v1, err := client.SetState(ctx, "counter", "a")
		require.NoError(t, err)
		v2, err := client.SetState(ctx, "counter", "b")
		require.NoError(t, err)
		v3, err := client.SetState(ctx, "counter", "c")
		require.NoError(t, err)

		assert.Equal(t, v1+1, v2)
		assert.Equal(t, v2+1, v3)

		entry, err := client.GetState(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, "c", entry.Value)
		assert.Equal(t, v3, entry.Version)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := client.SetState(ctx, "", "value")
		assert.Error(t, err)
	})
}

func TestGetState(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("returns not found for unwritten key", func(t *testing.T) {
		_, err := client.GetState(ctx, "missing")
		assert.True(t, IsNotFound(err))
	})
}

func TestCompareAndSwapState(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("swap succeeds with matching version", func(t *testing.T) {
		v, err := client.SetState(ctx, "task/T001", "unclaimed")
		require.NoError(t, err)

		newVersion, swapped, err := client.CompareAndSwapState(ctx, "task/T001", v, "claimed-by-executor-1")
		require.NoError(t, err)
		assert.True(t, swapped)
		assert.Equal(t, v+1, newVersion)

		entry, err := client.GetState(ctx, "task/T001")
		require.NoError(t, err)
		assert.Equal(t, "claimed-by-executor-1", entry.Value)
	})

	t.Run("exactly one racer wins", func(t *testing.T) {
		v, err := client.SetState(ctx, "task/T002", "unclaimed")
		require.NoError(t, err)

		// Two writers race with the same expected version
		_, firstSwapped, err := client.CompareAndSwapState(ctx, "task/T002", v, "claimed-by-executor-1")
		require.NoError(t, err)
		_, secondSwapped, err := client.CompareAndSwapState(ctx, "task/T002", v, "claimed-by-executor-2")
		require.NoError(t, err)

		assert.True(t, firstSwapped)
		assert.False(t, secondSwapped)

		// The loser's value never landed
		entry, err := client.GetState(ctx, "task/T002")
		require.NoError(t, err)
		assert.Equal(t, "claimed-by-executor-1", entry.Value)
		assert.Equal(t, v+1, entry.Version)
	})

	t.Run("expected version 0 creates the entry", func(t *testing.T) {
		newVersion, swapped, err := client.CompareAndSwapState(ctx, "fresh", 0, "created")
		require.NoError(t, err)
		assert.True(t, swapped)
		assert.Equal(t, int64(1), newVersion)
	})

	t.Run("expected version 0 loses against an existing entry", func(t *testing.T) {
		_, err := client.SetState(ctx, "existing", "value")
		require.NoError(t, err)

		_, swapped, err := client.CompareAndSwapState(ctx, "existing", 0, "clobbered")
		require.NoError(t, err)
		assert.False(t, swapped)
	})

	t.Run("stale version observes a mismatch", func(t *testing.T) {
		v, err := client.SetState(ctx, "doc", "v1")
		require.NoError(t, err)
		_, err = client.SetState(ctx, "doc", "v2")
		require.NoError(t, err)

		_, swapped, err := client.CompareAndSwapState(ctx, "doc", v, "from-stale-reader")
		require.NoError(t, err)
		assert.False(t, swapped)
	})

	t.Run("rejects negative expected version", func(t *testing.T) {
		_, _, err := client.CompareAndSwapState(ctx, "doc", -1, "x")
		assert.Error(t, err)
	})
}

func TestListStateKeys(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	keys, err := client.ListStateKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = client.SetState(ctx, "beta", "2")
	require.NoError(t, err)
	_, err = client.SetState(ctx, "alpha", "1")
	require.NoError(t, err)
	_, _, err = client.CompareAndSwapState(ctx, "gamma", 0, "3")
	require.NoError(t, err)

	keys, err = client.ListStateKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, keys)
}
