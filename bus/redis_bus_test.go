package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/beadswarm/beads/types"
)

func testRedisBus(t *testing.T) (*RedisBus, *types.FixedClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := types.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewRedisBus(client, "beads:test:", clock, zaptest.NewLogger(t)), clock
}

func TestRedisSend_AndGet(t *testing.T) {
	b, _ := testRedisBus(t)
	ctx := context.Background()
	sent, err := b.Send(ctx, &Message{Type: "note", FromAgent: "a", ToAgent: "b", Payload: "hi"})
	require.NoError(t, err)

	got, err := b.Get(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Payload)
}

func TestRedisReceive_AddressedAndBroadcastOrdered(t *testing.T) {
	b, clock := testRedisBus(t)
	ctx := context.Background()

	_, err := b.Send(ctx, &Message{Type: "t1", FromAgent: "x", ToAgent: "agent-1", Payload: "first"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = b.Broadcast(ctx, &Message{Type: "t2", FromAgent: "x", Payload: "second"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = b.Send(ctx, &Message{Type: "t3", FromAgent: "x", ToAgent: "agent-2", Payload: "not for us"})
	require.NoError(t, err)

	msgs, err := b.Receive(ctx, "agent-1", Filter{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Payload)
	assert.Equal(t, "second", msgs[1].Payload)
}

func TestRedisAcknowledge_BroadcastAnyOneRecipientSatisfies(t *testing.T) {
	b, _ := testRedisBus(t)
	ctx := context.Background()

	m, err := b.Broadcast(ctx, &Message{Type: "t", FromAgent: "x", AckRequired: true})
	require.NoError(t, err)

	ackedBy, err := b.Acknowledge(ctx, m.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ackedBy)

	ackedBy2, err := b.Acknowledge(ctx, m.ID, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ackedBy2)
}

func TestRedisGetUnacknowledged(t *testing.T) {
	b, clock := testRedisBus(t)
	ctx := context.Background()

	m1, err := b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1", AckRequired: true})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	cutoff := clock.Now()
	clock.Advance(time.Minute)
	_, err = b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1", AckRequired: true})
	require.NoError(t, err)

	all, err := b.GetUnacknowledged(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	older, err := b.GetUnacknowledged(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, m1.ID, older[0].ID)
}

func TestRedisDeleteExpired(t *testing.T) {
	b, clock := testRedisBus(t)
	ctx := context.Background()

	past := clock.Now().Add(-time.Minute)
	_, err := b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1"})
	require.NoError(t, err)

	n, err := b.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisMarkDelivered_OnlyMatchingRecipient(t *testing.T) {
	b, _ := testRedisBus(t)
	ctx := context.Background()

	m, err := b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, b.MarkDelivered(ctx, "agent-2", []string{m.ID}))
	got, err := b.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeliveredAt)

	require.NoError(t, b.MarkDelivered(ctx, "agent-1", []string{m.ID}))
	got, err = b.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
}
