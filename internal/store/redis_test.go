package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisClient(t *testing.T) *redisClient {
	t.Helper()
	mr := miniredis.RunT(t)
	return &redisClient{client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
}

func TestRedisClient_PendingListFIFO(t *testing.T) {
	ctx := context.Background()
	rc := newTestRedisClient(t)

	require.NoError(t, rc.pushPending(ctx, "q1", "t1"))
	require.NoError(t, rc.pushPending(ctx, "q1", "t2"))

	first, err := rc.popPending(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "t1", first)

	second, err := rc.popPending(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "t2", second)

	empty, err := rc.popPending(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestRedisClient_RebuildPending(t *testing.T) {
	ctx := context.Background()
	rc := newTestRedisClient(t)

	require.NoError(t, rc.pushPending(ctx, "q1", "stale"))
	require.NoError(t, rc.rebuildPending(ctx, "q1", []string{"a", "b", "c"}))

	var popped []string
	for {
		v, err := rc.popPending(ctx, "q1")
		require.NoError(t, err)
		if v == "" {
			break
		}
		popped = append(popped, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, popped)
}

func TestRedisClient_BusyAgents(t *testing.T) {
	ctx := context.Background()
	rc := newTestRedisClient(t)

	require.NoError(t, rc.markAgentBusy(ctx, "a1"))
	require.NoError(t, rc.markAgentBusy(ctx, "a2"))

	busy, err := rc.getBusyAgents(ctx)
	require.NoError(t, err)
	assert.True(t, busy["a1"])
	assert.True(t, busy["a2"])

	require.NoError(t, rc.markAgentAvailable(ctx, "a1"))
	busy, err = rc.getBusyAgents(ctx)
	require.NoError(t, err)
	assert.False(t, busy["a1"])

	require.NoError(t, rc.clearBusyAgents(ctx))
	busy, err = rc.getBusyAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestRedisClient_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	rc := newTestRedisClient(t)

	received := make(chan string, 1)
	cancel, err := rc.subscribe(ctx, "q1", func(payload string) {
		received <- payload
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, rc.publish(ctx, "q1", `{"type":"queue_started"}`))

	select {
	case got := <-received:
		assert.Equal(t, `{"type":"queue_started"}`, got)
	case <-time.After(time.Second):
		t.Fatal("message was not received within timeout")
	}
}

func TestRedisClient_DeletePending(t *testing.T) {
	ctx := context.Background()
	rc := newTestRedisClient(t)

	require.NoError(t, rc.pushPending(ctx, "q1", "t1"))
	require.NoError(t, rc.deletePending(ctx, "q1"))

	empty, err := rc.popPending(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}
