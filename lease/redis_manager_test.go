package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/beadswarm/beads/types"
)

func testRedisManager(t *testing.T) (*RedisManager, *types.FixedClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clock := types.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewRedisManager(client, "beads:test:", clock, zaptest.NewLogger(t)), clock
}

func TestRedisAcquire_UnheldPathSucceeds(t *testing.T) {
	m, _ := testRedisManager(t)
	ok, err := m.Acquire(context.Background(), "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisAcquire_SameAgentReacquireSucceeds(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()
	ok, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisAcquire_OtherAgentBlockedUntilExpiry(t *testing.T) {
	m, clock := testRedisManager(t)
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Acquire(ctx, "a.go", "agent-2", "bd-0000000b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(61 * time.Second)

	ok, err = m.Acquire(ctx, "a.go", "agent-2", "bd-0000000b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisAcquire_ConcurrentDistinctAgentsExactlyOneWinner(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()

	const agents = 10
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agentID := "agent-" + string(rune('a'+i))
			ok, err := m.Acquire(ctx, "contested.go", agentID, "bd-0000000a", time.Minute)
			if err == nil && ok {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
}

func TestRedisRelease_OnlyOwningAgent(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)

	err = m.Release(ctx, "a.go", "agent-2")
	require.Error(t, err)
	assert.Equal(t, types.ErrPrecondition, types.KindOf(err))

	require.NoError(t, m.Release(ctx, "a.go", "agent-1"))

	l, err := m.Check(ctx, "a.go")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestRedisForceRelease(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.ForceRelease(ctx, "a.go"))

	l, err := m.Check(ctx, "a.go")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestRedisCheck_ExpiredLeaseReportsNil(t *testing.T) {
	m, clock := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)

	l, err := m.Check(ctx, "a.go")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestRedisExtend_PushesExpiryAndIncrementsRenewedCount(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Extend(ctx, "a.go", "agent-1", 10*time.Minute))

	l, err := m.Check(ctx, "a.go")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.RenewedCount)

	err = m.Extend(ctx, "a.go", "agent-2", time.Minute)
	require.Error(t, err)
	assert.Equal(t, types.ErrPrecondition, types.KindOf(err))
}

func TestRedisGetAgentLeases(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "b.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "c.go", "agent-2", "bd-0000000b", time.Minute)
	require.NoError(t, err)

	leases, err := m.GetAgentLeases(ctx, "agent-1")
	require.NoError(t, err)
	assert.Len(t, leases, 2)
}

func TestRedisFindExpired(t *testing.T) {
	m, clock := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)

	expired, err := m.FindExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	clock.Advance(61 * time.Second)

	expired, err = m.FindExpired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "a.go", expired[0].FilePath)
}

func TestRedisReleaseAll(t *testing.T) {
	m, _ := testRedisManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "b.go", "agent-1", "bd-0000000a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.ReleaseAll(ctx, "agent-1"))

	leases, err := m.GetAgentLeases(ctx, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, leases)
}
