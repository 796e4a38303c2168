package datasources

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseState(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	state := NewPauseState(client)

	paused, reason, err := state.Paused(ctx, 1)
	require.NoError(t, err)
	assert.False(t, paused)
	assert.Empty(t, reason)

	require.NoError(t, state.Pause(ctx, 1, "maintenance window"))

	paused, reason, err = state.Paused(ctx, 1)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, "maintenance window", reason)

	// Other sources are unaffected.
	paused, _, err = state.Paused(ctx, 2)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, state.Resume(ctx, 1))
	paused, _, err = state.Paused(ctx, 1)
	require.NoError(t, err)
	assert.False(t, paused)
}
