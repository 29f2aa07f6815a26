package thoughtstore

import (
	"context"
	"testing"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behavior every adapter must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and list newest first", func(t *testing.T) {
		first, err := store.Create(ctx, CreateRequest{Intent: "system-health: Service monitoring", Content: "svc-a healthy", Priority: 5, Source: "orchestrator"})
		require.NoError(t, err)
		second, err := store.Create(ctx, CreateRequest{Intent: "performance: Auto-scaling insights", Content: "svc-a scaling up", Priority: 7, Source: "orchestrator"})
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		records, err := store.List(ctx, Filter{Source: "orchestrator", Limit: 10})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(records), 2)
		assert.Equal(t, second, records[0].ID)
		assert.Equal(t, first, records[1].ID)
		assert.Equal(t, StatusNew, records[0].Status)
	})

	t.Run("duplicate create returns existing id", func(t *testing.T) {
		request := CreateRequest{Intent: "deployment: rollout", Content: "x", Priority: 6, IdempotencyKey: "key-1"}
		id1, err := store.Create(ctx, request)
		require.NoError(t, err)
		id2, err := store.Create(ctx, request)
		require.NoError(t, err)
		assert.Equal(t, id1, id2)

		records, err := store.List(ctx, Filter{Query: "rollout"})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("query and limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := store.Create(ctx, CreateRequest{Intent: "user-behavior: sessions", Content: "user ABC spike", Priority: 4, Source: "hosting"})
			require.NoError(t, err)
		}
		records, err := store.List(ctx, Filter{Query: "abc", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, records, 2)

		records, err = store.List(ctx, Filter{Source: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("priority is clamped and intent required", func(t *testing.T) {
		_, err := store.Create(ctx, CreateRequest{Intent: "clamp-check", Content: "c", Priority: 42})
		require.NoError(t, err)
		records, err := store.List(ctx, Filter{Query: "clamp-check", Limit: 1})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 10, records[0].Priority)

		_, err = store.Create(ctx, CreateRequest{Intent: "  "})
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("link", func(t *testing.T) {
		a, err := store.Create(ctx, CreateRequest{Intent: "a", Content: "a", Priority: 5})
		require.NoError(t, err)
		b, err := store.Create(ctx, CreateRequest{Intent: "b", Content: "b", Priority: 5})
		require.NoError(t, err)

		require.NoError(t, store.Link(ctx, a, b, RelationshipCrossNetwork))
		require.NoError(t, store.Link(ctx, a, b, RelationshipCrossNetwork))

		assert.True(t, errors.IsValidationError(store.Link(ctx, a, a, RelationshipCrossNetwork)))
		assert.True(t, errors.IsNotFoundError(store.Link(ctx, "999999", b, RelationshipCrossNetwork)))
		require.NoError(t, store.Link(ctx, b, "remote-thought-7", RelationshipCrossNetwork))
	})
}

func TestMemoryStore(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStoreWithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	storeContract(t, store)
	assert.Len(t, store.Links(), 2)
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), "file::memory:")
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, migrateSQLite(ctx, store.db))

	a, err := store.Create(ctx, CreateRequest{Intent: "a", Content: "a"})
	require.NoError(t, err)
	b, err := store.Create(ctx, CreateRequest{Intent: "b", Content: "b"})
	require.NoError(t, err)
	require.NoError(t, store.Link(ctx, a, b, RelationshipCrossNetwork))

	links, err := store.Links(ctx, a)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, b, links[0].ToID)
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, ClampPriority(-3))
	assert.Equal(t, 1, ClampPriority(0))
	assert.Equal(t, 7, ClampPriority(7))
	assert.Equal(t, 10, ClampPriority(11))
}

func TestFilter_Matches(t *testing.T) {
	record := Record{Intent: "API-performance: latency", Content: "Response time high", Source: "svc-a"}

	assert.True(t, Filter{}.Matches(record))
	assert.True(t, Filter{Query: "api-perf"}.Matches(record))
	assert.True(t, Filter{Query: "RESPONSE"}.Matches(record))
	assert.False(t, Filter{Query: "deployment"}.Matches(record))
	assert.False(t, Filter{Source: "svc-b"}.Matches(record))
}
