package bus

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/beadswarm/beads/config"
	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

func testBus(t *testing.T) (*GormBus, *types.FixedClock) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "beads.db")
	cfg := config.DefaultStorageConfig()
	cfg.DSN = dbPath
	clock := types.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, err := storage.Open(cfg, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return NewGormBus(e, zaptest.NewLogger(t)), clock
}

func TestSend_RequiresToAgent(t *testing.T) {
	b, _ := testBus(t)
	_, err := b.Send(context.Background(), &Message{Type: "note", FromAgent: "a"})
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.KindOf(err))
}

func TestSend_AndGet(t *testing.T) {
	b, _ := testBus(t)
	ctx := context.Background()
	sent, err := b.Send(ctx, &Message{Type: "note", FromAgent: "a", ToAgent: "b", Payload: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, sent.ID)

	got, err := b.Get(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Payload)
}

func TestGet_NotFound(t *testing.T) {
	b, _ := testBus(t)
	_, err := b.Get(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))
}

func TestReceive_AddressedAndBroadcastOrderedByCreation(t *testing.T) {
	b, clock := testBus(t)
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

func TestReceive_HidesExpiredMessages(t *testing.T) {
	b, clock := testBus(t)
	ctx := context.Background()

	past := clock.Now().Add(-time.Minute)
	_, err := b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1", Payload: "stale", ExpiresAt: &past})
	require.NoError(t, err)

	msgs, err := b.Receive(ctx, "agent-1", Filter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReceive_FilterByTypeUnreadUnacked(t *testing.T) {
	b, _ := testBus(t)
	ctx := context.Background()

	m1, err := b.Send(ctx, &Message{Type: "alpha", FromAgent: "x", ToAgent: "agent-1"})
	require.NoError(t, err)
	_, err = b.Send(ctx, &Message{Type: "beta", FromAgent: "x", ToAgent: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, b.MarkDelivered(ctx, "agent-1", []string{m1.ID}))

	msgs, err := b.Receive(ctx, "agent-1", Filter{Type: "alpha"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs, err = b.Receive(ctx, "agent-1", Filter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "beta", msgs[0].Type)
}

func TestMarkDelivered_OnlyMatchingRecipient(t *testing.T) {
	b, _ := testBus(t)
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

func TestAcknowledge_DirectMessage(t *testing.T) {
	b, _ := testBus(t)
	ctx := context.Background()

	m, err := b.Send(ctx, &Message{Type: "t", FromAgent: "x", ToAgent: "agent-1", AckRequired: true})
	require.NoError(t, err)

	ackedBy, err := b.Acknowledge(ctx, m.ID, "agent-2")
	require.Error(t, err)
	assert.Equal(t, types.ErrPrecondition, types.KindOf(err))
	assert.Empty(t, ackedBy)

	ackedBy, err = b.Acknowledge(ctx, m.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ackedBy)
}

func TestAcknowledge_BroadcastAnyOneRecipientSatisfies(t *testing.T) {
	b, _ := testBus(t)
	ctx := context.Background()

	m, err := b.Broadcast(ctx, &Message{Type: "t", FromAgent: "x", AckRequired: true})
	require.NoError(t, err)

	ackedBy, err := b.Acknowledge(ctx, m.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ackedBy)

	// A second recipient's ack is a no-op returning the first acker.
	ackedBy2, err := b.Acknowledge(ctx, m.ID, "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", ackedBy2)

	got, err := b.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AcknowledgedBy)
}

func TestGetUnacknowledged(t *testing.T) {
	b, clock := testBus(t)
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

func TestDeleteExpired(t *testing.T) {
	b, clock := testBus(t)
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
