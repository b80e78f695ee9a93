package bus

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/beadswarm/beads/types"
)

// RedisBus is the optional distributed Message Bus backend, used when
// config.BusConfig.Backend is "redis". Each message is a JSON blob at
// dataKey(id); recipientKey/broadcastKey/unackedKey/allKey are sorted
// sets (score = created_at) that index it for Receive/GetUnacknowledged/
// DeleteExpired.
type RedisBus struct {
	client    *redis.Client
	keyPrefix string
	clock     types.Clock
	logger    *zap.Logger
}

// NewRedisBus constructs a RedisBus. clock defaults to
// types.SystemClock{} if nil.
func NewRedisBus(client *redis.Client, keyPrefix string, clock types.Clock, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &RedisBus{client: client, keyPrefix: keyPrefix, clock: clock, logger: logger.With(zap.String("component", "message_bus_redis"))}
}

var _ Bus = (*RedisBus)(nil)

func (b *RedisBus) dataKey(id string) string         { return b.keyPrefix + "msg:data:" + id }
func (b *RedisBus) recipientKey(agent string) string { return b.keyPrefix + "msg:recipient:" + agent }
func (b *RedisBus) broadcastKey() string             { return b.keyPrefix + "msg:broadcast" }
func (b *RedisBus) unackedKey() string               { return b.keyPrefix + "msg:unacked" }
func (b *RedisBus) allKey() string                   { return b.keyPrefix + "msg:all" }

func (b *RedisBus) Send(ctx context.Context, m *Message) (*Message, error) {
	if m.ToAgent == "" {
		return nil, types.NewError(types.ErrValidation, "send requires a to_agent; use Broadcast for unaddressed messages")
	}
	return b.insert(ctx, m)
}

func (b *RedisBus) Broadcast(ctx context.Context, m *Message) (*Message, error) {
	m.ToAgent = ""
	return b.insert(ctx, m)
}

func (b *RedisBus) insert(ctx context.Context, m *Message) (*Message, error) {
	if m.ID == "" {
		m.ID = types.NewToken()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = b.clock.Now().UTC()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "marshal message failed").WithCause(err)
	}
	score := float64(m.CreatedAt.UnixNano())

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.dataKey(m.ID), data, 0)
	pipe.ZAdd(ctx, b.allKey(), redis.Z{Score: score, Member: m.ID})
	if m.Broadcast() {
		pipe.ZAdd(ctx, b.broadcastKey(), redis.Z{Score: score, Member: m.ID})
	} else {
		pipe.ZAdd(ctx, b.recipientKey(m.ToAgent), redis.Z{Score: score, Member: m.ID})
	}
	if m.AckRequired {
		pipe.ZAdd(ctx, b.unackedKey(), redis.Z{Score: score, Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, types.NewError(types.ErrConnection, "send message failed").WithCause(err)
	}
	return m, nil
}

func (b *RedisBus) Get(ctx context.Context, id string) (*Message, error) {
	data, err := b.client.Get(ctx, b.dataKey(id)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.ErrNotFound, "message not found")
	}
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "get message failed").WithCause(err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, types.NewError(types.ErrTransaction, "corrupt message payload").WithCause(err)
	}
	return &m, nil
}

func (b *RedisBus) Receive(ctx context.Context, agent string, f Filter) ([]*Message, error) {
	addressed, err := b.client.ZRange(ctx, b.recipientKey(agent), 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "receive failed").WithCause(err)
	}
	broadcasts, err := b.client.ZRange(ctx, b.broadcastKey(), 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "receive failed").WithCause(err)
	}

	now := b.clock.Now().UTC()
	var out []*Message
	for _, id := range append(addressed, broadcasts...) {
		m, err := b.Get(ctx, id)
		if err != nil {
			if types.KindOf(err) == types.ErrNotFound {
				continue
			}
			return nil, err
		}
		if m.Expired(now) {
			continue
		}
		if f.Type != "" && m.Type != f.Type {
			continue
		}
		if f.UnreadOnly && m.DeliveredAt != nil {
			continue
		}
		if f.UnackedOnly && m.Acknowledged() {
			continue
		}
		out = append(out, m)
	}

	sortMessagesByCreatedAt(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortMessagesByCreatedAt(msgs []*Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j-1].CreatedAt.After(msgs[j].CreatedAt); j-- {
			msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
		}
	}
}

func (b *RedisBus) MarkDelivered(ctx context.Context, agent string, ids []string) error {
	now := b.clock.Now().UTC()
	for _, id := range ids {
		m, err := b.Get(ctx, id)
		if err != nil {
			if types.KindOf(err) == types.ErrNotFound {
				continue
			}
			return err
		}
		if m.ToAgent != "" && m.ToAgent != agent {
			continue
		}
		if m.DeliveredAt != nil {
			continue
		}
		m.DeliveredAt = &now
		if err := b.resave(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (b *RedisBus) Acknowledge(ctx context.Context, id, agent string) (string, error) {
	m, err := b.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if m.ToAgent != "" && m.ToAgent != agent {
		return "", types.NewError(types.ErrPrecondition, "agent is not a recipient of this message")
	}
	if m.Acknowledged() {
		return m.AcknowledgedBy, nil
	}
	now := b.clock.Now().UTC()
	m.AcknowledgedAt = &now
	m.AcknowledgedBy = agent
	if err := b.resave(ctx, m); err != nil {
		return "", err
	}
	if err := b.client.ZRem(ctx, b.unackedKey(), id).Err(); err != nil {
		return "", types.NewError(types.ErrConnection, "update unacked index failed").WithCause(err)
	}
	return agent, nil
}

func (b *RedisBus) GetUnacknowledged(ctx context.Context, olderThan time.Time) ([]*Message, error) {
	max := "+inf"
	if !olderThan.IsZero() {
		max = "(" + unixNanoString(olderThan)
	}
	ids, err := b.client.ZRangeByScore(ctx, b.unackedKey(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "get unacknowledged failed").WithCause(err)
	}
	out := make([]*Message, 0, len(ids))
	for _, id := range ids {
		m, err := b.Get(ctx, id)
		if err != nil {
			if types.KindOf(err) == types.ErrNotFound {
				continue
			}
			return nil, err
		}
		if m.AckRequired && !m.Acknowledged() {
			out = append(out, m)
		}
	}
	sortMessagesByCreatedAt(out)
	return out, nil
}

func (b *RedisBus) DeleteExpired(ctx context.Context) (int64, error) {
	ids, err := b.client.ZRange(ctx, b.allKey(), 0, -1).Result()
	if err != nil {
		return 0, types.NewError(types.ErrConnection, "delete expired failed").WithCause(err)
	}
	now := b.clock.Now().UTC()
	var deleted int64
	for _, id := range ids {
		m, err := b.Get(ctx, id)
		if err != nil {
			if types.KindOf(err) == types.ErrNotFound {
				continue
			}
			return deleted, err
		}
		if !m.Expired(now) {
			continue
		}
		pipe := b.client.Pipeline()
		pipe.Del(ctx, b.dataKey(id))
		pipe.ZRem(ctx, b.allKey(), id)
		pipe.ZRem(ctx, b.unackedKey(), id)
		if m.Broadcast() {
			pipe.ZRem(ctx, b.broadcastKey(), id)
		} else {
			pipe.ZRem(ctx, b.recipientKey(m.ToAgent), id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, types.NewError(types.ErrConnection, "delete expired failed").WithCause(err)
		}
		deleted++
	}
	return deleted, nil
}

func (b *RedisBus) resave(ctx context.Context, m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return types.NewError(types.ErrValidation, "marshal message failed").WithCause(err)
	}
	if err := b.client.Set(ctx, b.dataKey(m.ID), data, 0).Err(); err != nil {
		return types.NewError(types.ErrConnection, "save message failed").WithCause(err)
	}
	return nil
}

func unixNanoString(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}
