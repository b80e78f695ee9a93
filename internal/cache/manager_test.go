package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/beadswarm/beads/types"
)

func newTestCache(size int, ttl time.Duration) (*QueryCache, *types.FixedClock) {
	clock := types.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewQueryCache(size, ttl, clock, zap.NewNop()), clock
}

func TestGet_MissOnEmpty(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	_, ok := c.Get("q")
	assert.False(t, ok)
}

func TestPutGet_RoundTrip(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Put("q", []float64{0.1, 0.2})

	v, ok := c.Get("q")
	assert.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2}, v)
}

func TestGet_ExpiredEntryMisses(t *testing.T) {
	c, clock := newTestCache(4, time.Minute)
	c.Put("q", []float64{1})

	clock.Advance(time.Minute)
	_, ok := c.Get("q")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPut_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Put("a", []float64{1})
	c.Put("b", []float64{2})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Put("c", []float64{3})

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestPut_SameKeyRefreshesTTL(t *testing.T) {
	c, clock := newTestCache(4, time.Minute)
	c.Put("q", []float64{1})

	clock.Advance(30 * time.Second)
	c.Put("q", []float64{2})

	clock.Advance(45 * time.Second)
	v, ok := c.Get("q")
	assert.True(t, ok)
	assert.Equal(t, []float64{2}, v)
}

func TestDisabledCache_NoOps(t *testing.T) {
	c, _ := newTestCache(0, time.Minute)
	c.Put("q", []float64{1})
	_, ok := c.Get("q")
	assert.False(t, ok)
}

func TestPurge_Empties(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Put("a", []float64{1})
	c.Put("b", []float64{2})
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestStats_CountsHitsAndMisses(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)
	c.Put("a", []float64{1})
	c.Get("a")
	c.Get("zzz")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}
