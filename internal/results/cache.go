package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 24 * time.Hour

// Cache keeps the most recent result per (data source, query hash) in
// Redis so repeated reads skip Postgres.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func cacheKey(dataSourceID int64, queryHash string) string {
	return fmt.Sprintf("query_result:%d:%s", dataSourceID, queryHash)
}

// Get returns the cached latest result, or nil on a miss. maxAge limits
// how stale the cached result may be; maxAge < 0 accepts any age.
func (c *Cache) Get(ctx context.Context, dataSourceID int64, queryHash string, maxAge time.Duration) (*QueryResult, error) {
	data, err := c.client.Get(ctx, cacheKey(dataSourceID, queryHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("result cache get: %w", err)
	}

	var r QueryResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}

	if maxAge >= 0 && time.Since(r.RetrievedAt) > maxAge {
		return nil, nil
	}
	return &r, nil
}

func (c *Cache) Set(ctx context.Context, r *QueryResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(r.DataSourceID, r.QueryHash), payload, cacheTTL).Err(); err != nil {
		return fmt.Errorf("result cache set: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, dataSourceID int64, queryHash string) error {
	return c.client.Del(ctx, cacheKey(dataSourceID, queryHash)).Err()
}
