package lease

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

// SQLManager is the default Manager implementation, backed by
// storage.Engine's leases table.
type SQLManager struct {
	engine *storage.Engine
	clock  types.Clock
	logger *zap.Logger
}

// NewSQLManager constructs a SQLManager.
func NewSQLManager(engine *storage.Engine, logger *zap.Logger) *SQLManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := engine.Clock()
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &SQLManager{engine: engine, clock: clock, logger: logger.With(zap.String("component", "lease_manager"))}
}

var _ Manager = (*SQLManager)(nil)

// Acquire is a single atomic upsert: insert if the path has no row, or
// update it in place if the existing holder is agentID or its lease has
// expired. The ON CONFLICT clause evaluates entirely inside one
// statement, so no read-then-write race window exists between two
// concurrent callers.
func (m *SQLManager) Acquire(ctx context.Context, path, agentID, taskID string, duration time.Duration) (bool, error) {
	now := m.clock.Now().UTC()
	expiresAt := now.Add(duration)

	row := storage.LeaseModel{
		FilePath:     path,
		AgentID:      agentID,
		TaskID:       taskID,
		AcquiredAt:   now,
		ExpiresAt:    expiresAt,
		RenewedCount: 0,
	}

	err := m.engine.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "file_path"}},
		DoUpdates: clause.Assignments(map[string]any{
			"agent_id":    gorm.Expr("CASE WHEN leases.agent_id = ? OR leases.expires_at <= ? THEN ? ELSE leases.agent_id END", agentID, now, agentID),
			"task_id":     gorm.Expr("CASE WHEN leases.agent_id = ? OR leases.expires_at <= ? THEN ? ELSE leases.task_id END", agentID, now, taskID),
			"acquired_at": gorm.Expr("CASE WHEN leases.agent_id = ? OR leases.expires_at <= ? THEN ? ELSE leases.acquired_at END", agentID, now, now),
			"expires_at":  gorm.Expr("CASE WHEN leases.agent_id = ? OR leases.expires_at <= ? THEN ? ELSE leases.expires_at END", agentID, now, expiresAt),
		}),
	}).Create(&row).Error
	if err != nil {
		return false, types.NewError(types.ErrConnection, "acquire lease failed").WithCause(err)
	}

	var after storage.LeaseModel
	if err := m.engine.DB().WithContext(ctx).First(&after, "file_path = ?", path).Error; err != nil {
		return false, types.NewError(types.ErrConnection, "read lease after acquire failed").WithCause(err)
	}
	return after.AgentID == agentID, nil
}

// Release drops the lease iff owned by agentID.
func (m *SQLManager) Release(ctx context.Context, path, agentID string) error {
	res := m.engine.DB().WithContext(ctx).
		Where("file_path = ? AND agent_id = ?", path, agentID).
		Delete(&storage.LeaseModel{})
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "release lease failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrPrecondition, "lease not held by agent")
	}
	return nil
}

// ForceRelease drops the lease unconditionally.
func (m *SQLManager) ForceRelease(ctx context.Context, path string) error {
	if err := m.engine.DB().WithContext(ctx).Where("file_path = ?", path).Delete(&storage.LeaseModel{}).Error; err != nil {
		return types.NewError(types.ErrConnection, "force release failed").WithCause(err)
	}
	return nil
}

// Check returns the live lease on path, or nil if unheld or expired.
func (m *SQLManager) Check(ctx context.Context, path string) (*Lease, error) {
	var row storage.LeaseModel
	err := m.engine.DB().WithContext(ctx).First(&row, "file_path = ?", path).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "check lease failed").WithCause(err)
	}
	l := modelToLease(&row)
	if l.Expired(m.clock.Now().UTC()) {
		return nil, nil
	}
	return l, nil
}

// Extend pushes the expiry forward iff owned by agentID.
func (m *SQLManager) Extend(ctx context.Context, path, agentID string, duration time.Duration) error {
	now := m.clock.Now().UTC()
	res := m.engine.DB().WithContext(ctx).Model(&storage.LeaseModel{}).
		Where("file_path = ? AND agent_id = ?", path, agentID).
		Updates(map[string]any{
			"expires_at":    now.Add(duration),
			"renewed_count": gorm.Expr("renewed_count + 1"),
		})
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "extend lease failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrPrecondition, "lease not held by agent")
	}
	return nil
}

// GetAgentLeases returns every unexpired lease held by agentID.
func (m *SQLManager) GetAgentLeases(ctx context.Context, agentID string) ([]*Lease, error) {
	now := m.clock.Now().UTC()
	var rows []storage.LeaseModel
	err := m.engine.DB().WithContext(ctx).
		Where("agent_id = ? AND expires_at > ?", agentID, now).
		Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "get agent leases failed").WithCause(err)
	}
	return modelsToLeases(rows), nil
}

// FindExpired returns every lease whose expiry has passed.
func (m *SQLManager) FindExpired(ctx context.Context) ([]*Lease, error) {
	now := m.clock.Now().UTC()
	var rows []storage.LeaseModel
	err := m.engine.DB().WithContext(ctx).Where("expires_at <= ?", now).Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "find expired leases failed").WithCause(err)
	}
	return modelsToLeases(rows), nil
}

// ReleaseAll drops every lease held by agentID regardless of expiry.
func (m *SQLManager) ReleaseAll(ctx context.Context, agentID string) error {
	if err := m.engine.DB().WithContext(ctx).Where("agent_id = ?", agentID).Delete(&storage.LeaseModel{}).Error; err != nil {
		return types.NewError(types.ErrConnection, "release all leases failed").WithCause(err)
	}
	return nil
}

func modelToLease(m *storage.LeaseModel) *Lease {
	return &Lease{
		FilePath:     m.FilePath,
		AgentID:      m.AgentID,
		TaskID:       m.TaskID,
		AcquiredAt:   m.AcquiredAt,
		ExpiresAt:    m.ExpiresAt,
		RenewedCount: m.RenewedCount,
	}
}

func modelsToLeases(rows []storage.LeaseModel) []*Lease {
	out := make([]*Lease, len(rows))
	for i := range rows {
		out[i] = modelToLease(&rows[i])
	}
	return out
}
