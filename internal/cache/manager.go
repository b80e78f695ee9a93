// =============================================================================
// beads embedding query cache
// =============================================================================
// TTL + LRU cache from query text to embedding vector. Keeps repeated
// semantic-search-by-text calls from hitting the provider every time.
// =============================================================================
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beadswarm/beads/types"
)

// QueryCache is a size- and TTL-bounded cache of embedding vectors keyed
// by the query text they were generated from.
type QueryCache struct {
	maxEntries int
	ttl        time.Duration
	clock      types.Clock
	logger     *zap.Logger

	mu      sync.Mutex
	order   *list.List // front = most recently used
	entries map[string]*list.Element

	hits   int64
	misses int64
}

type entry struct {
	key      string
	vector   []float64
	storedAt time.Time
}

// NewQueryCache constructs a QueryCache holding at most maxEntries
// vectors, each valid for ttl. A maxEntries <= 0 disables the cache:
// Get always misses and Put is a no-op.
func NewQueryCache(maxEntries int, ttl time.Duration, clock types.Clock, logger *zap.Logger) *QueryCache {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		logger:     logger.With(zap.String("component", "query_cache")),
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Get returns the cached vector for key, or nil/false on a miss. An
// expired entry counts as a miss and is removed.
func (c *QueryCache) Get(key string) ([]float64, bool) {
	if c.maxEntries <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if c.ttl > 0 && c.clock.Now().Sub(e.storedAt) >= c.ttl {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.vector, true
}

// Put stores vector under key, evicting the least-recently-used entry
// when the cache is full. Storing under an existing key refreshes both
// the vector and the TTL.
func (c *QueryCache) Put(key string, vector []float64) {
	if c.maxEntries <= 0 || key == "" || len(vector) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.vector = vector
		e.storedAt = now
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.maxEntries {
		c.removeLocked(c.order.Back())
	}
	c.entries[key] = c.order.PushFront(&entry{key: key, vector: vector, storedAt: now})
}

// Len returns the number of entries currently held, including any that
// have expired but not yet been touched.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge empties the cache.
func (c *QueryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Stats reports hit/miss counts since construction.
func (c *QueryCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *QueryCache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(el)
}
