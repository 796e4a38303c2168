package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Sink receives drained events. The worker uses PGSink; tests use fakes.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// Consumer drains the Redis event queue into a sink.
type Consumer struct {
	client *redis.Client
	sink   Sink
}

func NewConsumer(client *redis.Client, sink Sink) *Consumer {
	return &Consumer{client: client, sink: sink}
}

// Run blocks until ctx is cancelled, popping events as they arrive.
// Malformed payloads are logged and dropped so one bad entry cannot
// wedge the queue.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.client.BRPop(ctx, 5*time.Second, QueueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("events: pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		// BRPop returns [key, value]
		if len(res) != 2 {
			continue
		}
		if err := c.handle(ctx, []byte(res[1])); err != nil {
			log.Printf("events: %v", err)
		}
	}
}

// DrainOnce pops at most n queued events without blocking. Used by tests
// and by the worker's shutdown path.
func (c *Consumer) DrainOnce(ctx context.Context, n int) (int, error) {
	drained := 0
	for i := 0; i < n; i++ {
		payload, err := c.client.RPop(ctx, QueueKey).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return drained, fmt.Errorf("pop event: %w", err)
		}
		if err := c.handle(ctx, []byte(payload)); err != nil {
			return drained, err
		}
		drained++
	}
	return drained, nil
}

func (c *Consumer) handle(ctx context.Context, payload []byte) error {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("drop malformed event: %w", err)
	}
	if err := c.sink.Write(ctx, e); err != nil {
		return fmt.Errorf("write event %s: %w", e.ID, err)
	}
	return nil
}

// PGSink persists events into the events table.
type PGSink struct {
	db *pgxpool.Pool
}

func NewPGSink(db *pgxpool.Pool) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Write(ctx context.Context, e Event) error {
	props, err := json.Marshal(e.AdditionalProperties)
	if err != nil {
		return fmt.Errorf("encode event properties: %w", err)
	}

	const q = `
insert into events (id, user_id, action, object_type, object_id, additional_properties, created_at)
values ($1, $2, $3, $4, $5, $6, $7)
on conflict (id) do nothing;
`
	_, err = s.db.Exec(ctx, q, e.ID, e.UserID, e.Action, e.ObjectType, e.ObjectID, props, e.CreatedAt)
	return err
}
