package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder pushes events onto the shared queue.
type RedisRecorder struct {
	client *redis.Client
}

func NewRedisRecorder(client *redis.Client) *RedisRecorder {
	return &RedisRecorder{client: client}
}

func (r *RedisRecorder) Record(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := r.client.LPush(ctx, QueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

// QueueLen reports the number of events waiting to be drained.
func (r *RedisRecorder) QueueLen(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, QueueKey).Result()
}
