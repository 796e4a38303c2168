package results

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) *Cache {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewCache(client)
}

func TestCache_SetGet(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	result := &QueryResult{
		ID:           1,
		QueryHash:    "abc",
		Query:        "SELECT 1",
		Data:         json.RawMessage(`{"rows":[[1]]}`),
		Runtime:      0.12,
		DataSourceID: 3,
		RetrievedAt:  time.Now().UTC(),
	}
	require.NoError(t, cache.Set(ctx, result))

	got, err := cache.Get(ctx, 3, "abc", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result.ID, got.ID)
	assert.JSONEq(t, `{"rows":[[1]]}`, string(got.Data))
}

func TestCache_MissOnOtherDataSource(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &QueryResult{QueryHash: "abc", DataSourceID: 3, RetrievedAt: time.Now()}))

	got, err := cache.Get(ctx, 4, "abc", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got, "cache is keyed per data source")
}

func TestCache_MaxAge(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	stale := &QueryResult{
		QueryHash:    "abc",
		DataSourceID: 3,
		RetrievedAt:  time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, cache.Set(ctx, stale))

	got, err := cache.Get(ctx, 3, "abc", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got, "stale entry is a miss under maxAge")

	got, err = cache.Get(ctx, 3, "abc", -1)
	require.NoError(t, err)
	assert.NotNil(t, got, "maxAge < 0 accepts any age")
}

func TestCache_Invalidate(t *testing.T) {
	cache := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &QueryResult{QueryHash: "abc", DataSourceID: 3, RetrievedAt: time.Now()}))
	require.NoError(t, cache.Invalidate(ctx, 3, "abc"))

	got, err := cache.Get(ctx, 3, "abc", -1)
	require.NoError(t, err)
	assert.Nil(t, got)
}
