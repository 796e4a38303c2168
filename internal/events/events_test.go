package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

type memorySink struct {
	events []Event
}

func (m *memorySink) Write(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return nil
}

func TestRecordAndDrain(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	recorder := NewRedisRecorder(client)
	sink := &memorySink{}
	consumer := NewConsumer(client, sink)

	e1 := New("user-1", "save", "query", "7")
	e1.AdditionalProperties = map[string]interface{}{"version": 2}
	e2 := New("user-2", "fork", "query", "7")

	require.NoError(t, recorder.Record(ctx, e1))
	require.NoError(t, recorder.Record(ctx, e2))

	n, err := recorder.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	drained, err := consumer.DrainOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, drained)

	require.Len(t, sink.events, 2)
	// Queue is FIFO: first recorded drains first.
	assert.Equal(t, e1.ID, sink.events[0].ID)
	assert.Equal(t, "save", sink.events[0].Action)
	assert.EqualValues(t, 2, sink.events[0].AdditionalProperties["version"])
	assert.Equal(t, e2.ID, sink.events[1].ID)
}

func TestDrainOnce_MalformedPayload(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, QueueKey, "{not json").Err())

	sink := &memorySink{}
	consumer := NewConsumer(client, sink)

	_, err := consumer.DrainOnce(ctx, 10)
	assert.Error(t, err)
	assert.Empty(t, sink.events)
}

func TestDrainOnce_EmptyQueue(t *testing.T) {
	client := setupTestRedis(t)

	consumer := NewConsumer(client, &memorySink{})
	drained, err := consumer.DrainOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, drained)
}
