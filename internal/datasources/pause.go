package datasources

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PauseState tracks paused data sources in Redis. Pausing a source is an
// operational switch (e.g. the warehouse is down for maintenance); the
// pause reason is stored as the key's value.
type PauseState struct {
	client *redis.Client
}

func NewPauseState(client *redis.Client) *PauseState {
	return &PauseState{client: client}
}

func pauseKey(id int64) string {
	return fmt.Sprintf("ds:%d:pause", id)
}

func (p *PauseState) Pause(ctx context.Context, id int64, reason string) error {
	return p.client.Set(ctx, pauseKey(id), reason, 0).Err()
}

func (p *PauseState) Resume(ctx context.Context, id int64) error {
	return p.client.Del(ctx, pauseKey(id)).Err()
}

// Paused returns whether the source is paused and the recorded reason.
func (p *PauseState) Paused(ctx context.Context, id int64) (bool, string, error) {
	reason, err := p.client.Get(ctx, pauseKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("pause state: %w", err)
	}
	return true, reason, nil
}
