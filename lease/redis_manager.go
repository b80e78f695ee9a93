package lease

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/beadswarm/beads/types"
)

// acquireScript performs the same conditional upsert as SQLManager.Acquire,
// but as a single Lua script so Redis evaluates it atomically: no other
// command can interleave between the read of the existing holder and the
// write of the new one.
const acquireScript = `
local key = KEYS[1]
local agent = ARGV[1]
local task = ARGV[2]
local now = tonumber(ARGV[3])
local acquired_at = ARGV[4]
local expires_at = ARGV[5]

local existing_agent = redis.call('HGET', key, 'agent_id')
local existing_expires = redis.call('HGET', key, 'expires_at')

local ok = false
if existing_agent == false then
  ok = true
elseif existing_agent == agent then
  ok = true
elseif existing_expires ~= false and tonumber(existing_expires) <= now then
  ok = true
end

if ok then
  redis.call('HSET', key, 'agent_id', agent, 'task_id', task, 'acquired_at', acquired_at, 'expires_at', expires_at)
  if existing_agent == false then
    redis.call('HSET', key, 'renewed_count', '0')
  end
  return 1
else
  return 0
end
`

const releaseScript = `
local key = KEYS[1]
local agent = ARGV[1]
local existing_agent = redis.call('HGET', key, 'agent_id')
if existing_agent == agent then
  redis.call('DEL', key)
  return 1
else
  return 0
end
`

const extendScript = `
local key = KEYS[1]
local agent = ARGV[1]
local expires_at = ARGV[2]
local existing_agent = redis.call('HGET', key, 'agent_id')
if existing_agent == agent then
  redis.call('HSET', key, 'expires_at', expires_at)
  redis.call('HINCRBY', key, 'renewed_count', 1)
  return 1
else
  return 0
end
`

// RedisManager is the optional distributed Lease Manager backend, used
// when config.LeaseConfig.Backend is "redis". Each lease is a hash at
// leaseKey(path); the leaseIndexKey sorted set and the agentLeasesKey set
// track paths for the FindExpired sweep and GetAgentLeases/ReleaseAll
// lookups.
type RedisManager struct {
	client    *redis.Client
	keyPrefix string
	clock     types.Clock
	logger    *zap.Logger
}

// NewRedisManager constructs a RedisManager. clock defaults to
// types.SystemClock{} if nil.
func NewRedisManager(client *redis.Client, keyPrefix string, clock types.Clock, logger *zap.Logger) *RedisManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &RedisManager{client: client, keyPrefix: keyPrefix, clock: clock, logger: logger.With(zap.String("component", "lease_manager_redis"))}
}

var _ Manager = (*RedisManager)(nil)

func (m *RedisManager) leaseKey(path string) string {
	return m.keyPrefix + "lease:{" + path + "}"
}

func (m *RedisManager) leaseIndexKey() string {
	return m.keyPrefix + "leases:index"
}

func (m *RedisManager) agentLeasesKey(agentID string) string {
	return m.keyPrefix + "lease:agent:" + agentID
}

func unixMilliString(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Acquire evaluates acquireScript, then updates the index structures
// outside the script (they are advisory lookup aids, not the source of
// truth for who holds the lease — the hash is).
func (m *RedisManager) Acquire(ctx context.Context, path, agentID, taskID string, duration time.Duration) (bool, error) {
	now := m.clock.Now().UTC()
	expiresAt := now.Add(duration)

	res, err := m.client.Eval(ctx, acquireScript, []string{m.leaseKey(path)},
		agentID, taskID, unixMilliString(now), unixMilliString(now), unixMilliString(expiresAt)).Int()
	if err != nil {
		return false, types.NewError(types.ErrConnection, "acquire lease failed").WithCause(err)
	}
	if res != 1 {
		return false, nil
	}

	// No key-level TTL here: expiry is tracked logically (expires_at field
	// plus the index zset), matching SQLManager, which never relies on the
	// database to drop a row on its own. A real-wall-clock Redis TTL would
	// also be wrong under an injected Clock used in tests.
	pipe := m.client.Pipeline()
	pipe.ZAdd(ctx, m.leaseIndexKey(), redis.Z{Score: float64(expiresAt.UnixMilli()), Member: path})
	pipe.SAdd(ctx, m.agentLeasesKey(agentID), path)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, types.NewError(types.ErrConnection, "update lease index failed").WithCause(err)
	}
	return true, nil
}

// Release drops the lease iff owned by agentID.
func (m *RedisManager) Release(ctx context.Context, path, agentID string) error {
	res, err := m.client.Eval(ctx, releaseScript, []string{m.leaseKey(path)}, agentID).Int()
	if err != nil {
		return types.NewError(types.ErrConnection, "release lease failed").WithCause(err)
	}
	if res != 1 {
		return types.NewError(types.ErrPrecondition, "lease not held by agent")
	}
	pipe := m.client.Pipeline()
	pipe.ZRem(ctx, m.leaseIndexKey(), path)
	pipe.SRem(ctx, m.agentLeasesKey(agentID), path)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrConnection, "clean up lease index failed").WithCause(err)
	}
	return nil
}

// ForceRelease drops the lease unconditionally.
func (m *RedisManager) ForceRelease(ctx context.Context, path string) error {
	agentID, err := m.client.HGet(ctx, m.leaseKey(path), "agent_id").Result()
	if err != nil && err != redis.Nil {
		return types.NewError(types.ErrConnection, "force release failed").WithCause(err)
	}

	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.leaseKey(path))
	pipe.ZRem(ctx, m.leaseIndexKey(), path)
	if agentID != "" {
		pipe.SRem(ctx, m.agentLeasesKey(agentID), path)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrConnection, "force release failed").WithCause(err)
	}
	return nil
}

// Check returns the live lease on path, or nil if unheld or expired.
func (m *RedisManager) Check(ctx context.Context, path string) (*Lease, error) {
	vals, err := m.client.HGetAll(ctx, m.leaseKey(path)).Result()
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "check lease failed").WithCause(err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	l, err := leaseFromHash(path, vals)
	if err != nil {
		return nil, err
	}
	if l.Expired(m.clock.Now().UTC()) {
		return nil, nil
	}
	return l, nil
}

// Extend pushes the expiry forward iff owned by agentID.
func (m *RedisManager) Extend(ctx context.Context, path, agentID string, duration time.Duration) error {
	expiresAt := m.clock.Now().UTC().Add(duration)
	res, err := m.client.Eval(ctx, extendScript, []string{m.leaseKey(path)}, agentID, unixMilliString(expiresAt)).Int()
	if err != nil {
		return types.NewError(types.ErrConnection, "extend lease failed").WithCause(err)
	}
	if res != 1 {
		return types.NewError(types.ErrPrecondition, "lease not held by agent")
	}
	if _, err := m.client.ZAdd(ctx, m.leaseIndexKey(), redis.Z{Score: float64(expiresAt.UnixMilli()), Member: path}).Result(); err != nil {
		return types.NewError(types.ErrConnection, "update lease index failed").WithCause(err)
	}
	return nil
}

// GetAgentLeases returns every unexpired lease held by agentID.
func (m *RedisManager) GetAgentLeases(ctx context.Context, agentID string) ([]*Lease, error) {
	paths, err := m.client.SMembers(ctx, m.agentLeasesKey(agentID)).Result()
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "get agent leases failed").WithCause(err)
	}
	now := m.clock.Now().UTC()
	var out []*Lease
	for _, path := range paths {
		l, err := m.Check(ctx, path)
		if err != nil {
			return nil, err
		}
		if l != nil && l.AgentID == agentID && !l.Expired(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// FindExpired returns every lease whose expiry has passed, scanning the
// index sorted set rather than every individual hash.
func (m *RedisManager) FindExpired(ctx context.Context) ([]*Lease, error) {
	now := m.clock.Now().UTC()
	paths, err := m.client.ZRangeByScore(ctx, m.leaseIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: unixMilliString(now),
	}).Result()
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "find expired leases failed").WithCause(err)
	}
	out := make([]*Lease, 0, len(paths))
	for _, path := range paths {
		vals, err := m.client.HGetAll(ctx, m.leaseKey(path)).Result()
		if err != nil {
			return nil, types.NewError(types.ErrConnection, "find expired leases failed").WithCause(err)
		}
		if len(vals) == 0 {
			continue
		}
		l, err := leaseFromHash(path, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// ReleaseAll drops every lease held by agentID regardless of expiry.
func (m *RedisManager) ReleaseAll(ctx context.Context, agentID string) error {
	paths, err := m.client.SMembers(ctx, m.agentLeasesKey(agentID)).Result()
	if err != nil {
		return types.NewError(types.ErrConnection, "release all leases failed").WithCause(err)
	}
	if len(paths) == 0 {
		return nil
	}
	for _, path := range paths {
		// Release only drops the hash while agentID still owns it; a path
		// another agent has since taken over is left alone.
		if err := m.Release(ctx, path, agentID); err != nil && types.KindOf(err) != types.ErrPrecondition {
			return err
		}
	}
	if err := m.client.Del(ctx, m.agentLeasesKey(agentID)).Err(); err != nil {
		return types.NewError(types.ErrConnection, "release all leases failed").WithCause(err)
	}
	return nil
}

func leaseFromHash(path string, vals map[string]string) (*Lease, error) {
	acquiredMs, err := strconv.ParseInt(vals["acquired_at"], 10, 64)
	if err != nil {
		return nil, types.NewError(types.ErrTransaction, "corrupt lease acquired_at").WithCause(err)
	}
	expiresMs, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, types.NewError(types.ErrTransaction, "corrupt lease expires_at").WithCause(err)
	}
	renewed, _ := strconv.Atoi(vals["renewed_count"])
	return &Lease{
		FilePath:     path,
		AgentID:      vals["agent_id"],
		TaskID:       vals["task_id"],
		AcquiredAt:   time.UnixMilli(acquiredMs).UTC(),
		ExpiresAt:    time.UnixMilli(expiresMs).UTC(),
		RenewedCount: renewed,
	}, nil
}
