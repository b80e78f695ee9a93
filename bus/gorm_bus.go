package bus

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

// GormBus is the default Message Bus implementation, backed by
// storage.Engine's messages table.
type GormBus struct {
	engine *storage.Engine
	clock  types.Clock
	logger *zap.Logger
}

// NewGormBus constructs a GormBus.
func NewGormBus(engine *storage.Engine, logger *zap.Logger) *GormBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := engine.Clock()
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &GormBus{engine: engine, clock: clock, logger: logger.With(zap.String("component", "message_bus"))}
}

var _ Bus = (*GormBus)(nil)

func (b *GormBus) Send(ctx context.Context, m *Message) (*Message, error) {
	if m.ToAgent == "" {
		return nil, types.NewError(types.ErrValidation, "send requires a to_agent; use Broadcast for unaddressed messages")
	}
	return b.insert(ctx, m)
}

func (b *GormBus) Broadcast(ctx context.Context, m *Message) (*Message, error) {
	m.ToAgent = ""
	return b.insert(ctx, m)
}

func (b *GormBus) insert(ctx context.Context, m *Message) (*Message, error) {
	if m.ID == "" {
		m.ID = types.NewToken()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = b.clock.Now().UTC()
	}
	row := toModel(m)
	if err := b.engine.DB().WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(row), nil
}

func (b *GormBus) Get(ctx context.Context, id string) (*Message, error) {
	var row storage.MessageModel
	err := b.engine.DB().WithContext(ctx).First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "message not found")
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(&row), nil
}

func (b *GormBus) Receive(ctx context.Context, agent string, f Filter) ([]*Message, error) {
	now := b.clock.Now().UTC()
	q := b.engine.DB().WithContext(ctx).Model(&storage.MessageModel{}).
		Where("(to_agent = ? OR to_agent IS NULL)", agent).
		Where("(expires_at IS NULL OR expires_at > ?)", now)

	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.UnreadOnly {
		q = q.Where("delivered_at IS NULL")
	}
	if f.UnackedOnly {
		q = q.Where("acknowledged_at IS NULL")
	}
	q = q.Order("created_at asc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []storage.MessageModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	return fromModels(rows), nil
}

// MarkDelivered stamps delivered_at on every id whose recipient matches
// agent (exact, or broadcast) in a single guarded UPDATE.
func (b *GormBus) MarkDelivered(ctx context.Context, agent string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := b.clock.Now().UTC()
	err := b.engine.DB().WithContext(ctx).Model(&storage.MessageModel{}).
		Where("id IN ?", ids).
		Where("(to_agent = ? OR to_agent IS NULL)", agent).
		Where("delivered_at IS NULL").
		Update("delivered_at", now).Error
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

// Acknowledge stamps the first ack on id. An already-acknowledged
// broadcast is a no-op returning the original acker.
func (b *GormBus) Acknowledge(ctx context.Context, id, agent string) (string, error) {
	var ackedBy string
	err := b.engine.Transaction(ctx, func(tx *gorm.DB) error {
		var row storage.MessageModel
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.NewError(types.ErrNotFound, "message not found")
			}
			return err
		}
		isRecipient := row.ToAgent == nil || *row.ToAgent == agent
		if !isRecipient {
			return types.NewError(types.ErrPrecondition, "agent is not a recipient of this message")
		}
		if row.AcknowledgedAt != nil {
			ackedBy = row.AcknowledgedBy
			return nil
		}
		now := b.clock.Now().UTC()
		res := tx.Model(&storage.MessageModel{}).
			Where("id = ? AND acknowledged_at IS NULL", id).
			Updates(map[string]any{"acknowledged_at": now, "acknowledged_by": agent})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race to another recipient's concurrent ack.
			var after storage.MessageModel
			if err := tx.First(&after, "id = ?", id).Error; err != nil {
				return err
			}
			ackedBy = after.AcknowledgedBy
			return nil
		}
		ackedBy = agent
		return nil
	})
	if err != nil {
		return "", wrapErr(err)
	}
	return ackedBy, nil
}

func (b *GormBus) GetUnacknowledged(ctx context.Context, olderThan time.Time) ([]*Message, error) {
	q := b.engine.DB().WithContext(ctx).Model(&storage.MessageModel{}).
		Where("ack_required = ? AND acknowledged_at IS NULL", true)
	if !olderThan.IsZero() {
		q = q.Where("created_at < ?", olderThan.UTC())
	}
	q = q.Order("created_at asc")

	var rows []storage.MessageModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	return fromModels(rows), nil
}

func (b *GormBus) DeleteExpired(ctx context.Context) (int64, error) {
	now := b.clock.Now().UTC()
	res := b.engine.DB().WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&storage.MessageModel{})
	if res.Error != nil {
		return 0, wrapErr(res.Error)
	}
	return res.RowsAffected, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.ErrConnection, "message bus operation failed").WithCause(err)
}
