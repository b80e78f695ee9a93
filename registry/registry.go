package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

// Registry is the agent registry contract.
type Registry interface {
	Register(ctx context.Context, a *Agent) (*Agent, error)
	Heartbeat(ctx context.Context, agentID string, update HeartbeatUpdate) error
	Deregister(ctx context.Context, agentID string) error
	Get(ctx context.Context, agentID string) (*Agent, error)
	List(ctx context.Context, f Filter) ([]*Agent, error)
	Count(ctx context.Context, f Filter) (int64, error)
	FindStale(ctx context.Context, thresholdMs int64) ([]*Agent, error)
	UpdateStats(ctx context.Context, agentID string, completed bool, runtimeMinutes int64) error
	SetCurrentTask(ctx context.Context, agentID, taskID string) error
}

// GormRegistry is the default Registry implementation, backed by
// storage.Engine's agents table.
type GormRegistry struct {
	engine *storage.Engine
	clock  types.Clock
	logger *zap.Logger
}

// NewGormRegistry constructs a GormRegistry.
func NewGormRegistry(engine *storage.Engine, logger *zap.Logger) *GormRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := engine.Clock()
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &GormRegistry{engine: engine, clock: clock, logger: logger.With(zap.String("component", "registry"))}
}

var _ Registry = (*GormRegistry)(nil)

func (r *GormRegistry) Register(ctx context.Context, a *Agent) (*Agent, error) {
	if a.ID == "" {
		a.ID = types.NewToken()
	}
	if a.Status == "" {
		a.Status = StatusIdle
	}
	now := r.clock.Now().UTC()
	a.LastHeartbeatAt = now
	a.CreatedAt = now
	a.UpdatedAt = now

	row := toModel(a)
	if err := r.engine.DB().WithContext(ctx).Create(row).Error; err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(row), nil
}

func (r *GormRegistry) Get(ctx context.Context, agentID string) (*Agent, error) {
	var row storage.AgentModel
	err := r.engine.DB().WithContext(ctx).First(&row, "id = ?", agentID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "agent not found")
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModel(&row), nil
}

// Heartbeat stamps LastHeartbeatAt, increments HeartbeatCount, and
// optionally updates status/current task/phase/progress in one call.
func (r *GormRegistry) Heartbeat(ctx context.Context, agentID string, update HeartbeatUpdate) error {
	now := r.clock.Now().UTC()
	updates := map[string]any{
		"last_heartbeat_at": now,
		"heartbeat_count":   gorm.Expr("heartbeat_count + 1"),
		"updated_at":        now,
	}
	if update.Status != "" {
		updates["status"] = string(update.Status)
	}
	if update.HasTaskUpdate {
		updates["current_task_id"] = update.CurrentTask
	}
	if update.CurrentPhase != "" {
		updates["current_phase"] = update.CurrentPhase
	}
	if update.TaskProgress != nil {
		updates["current_task_progress"] = *update.TaskProgress
	}

	res := r.engine.DB().WithContext(ctx).Model(&storage.AgentModel{}).Where("id = ?", agentID).Updates(updates)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "agent not found")
	}
	return nil
}

func (r *GormRegistry) Deregister(ctx context.Context, agentID string) error {
	res := r.engine.DB().WithContext(ctx).Where("id = ?", agentID).Delete(&storage.AgentModel{})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "agent not found")
	}
	return nil
}

func (r *GormRegistry) applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	return q
}

func (r *GormRegistry) List(ctx context.Context, f Filter) ([]*Agent, error) {
	q := r.applyFilter(r.engine.DB().WithContext(ctx).Model(&storage.AgentModel{}), f).Order("created_at asc")
	var rows []storage.AgentModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := fromModels(rows)
	if f.Skill != "" {
		filtered := out[:0]
		for _, a := range out {
			for _, skill := range a.Capabilities.Skills {
				if skill == f.Skill {
					filtered = append(filtered, a)
					break
				}
			}
		}
		out = filtered
	}
	return out, nil
}

func (r *GormRegistry) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	q := r.applyFilter(r.engine.DB().WithContext(ctx).Model(&storage.AgentModel{}), f)
	if err := q.Count(&n).Error; err != nil {
		return 0, wrapErr(err)
	}
	return n, nil
}

// FindStale returns every agent whose last heartbeat is older than
// thresholdMs, for the stale reaper.
func (r *GormRegistry) FindStale(ctx context.Context, thresholdMs int64) ([]*Agent, error) {
	cutoff := r.clock.Now().UTC().Add(-time.Duration(thresholdMs) * time.Millisecond)
	var rows []storage.AgentModel
	err := r.engine.DB().WithContext(ctx).
		Where("last_heartbeat_at < ? AND status != ?", cutoff, string(StatusOffline)).
		Find(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return fromModels(rows), nil
}

func (r *GormRegistry) UpdateStats(ctx context.Context, agentID string, completed bool, runtimeMinutes int64) error {
	updates := map[string]any{
		"total_runtime_minutes": gorm.Expr("total_runtime_minutes + ?", runtimeMinutes),
		"updated_at":            r.clock.Now().UTC(),
	}
	if completed {
		updates["tasks_completed"] = gorm.Expr("tasks_completed + 1")
	} else {
		updates["tasks_failed"] = gorm.Expr("tasks_failed + 1")
	}
	res := r.engine.DB().WithContext(ctx).Model(&storage.AgentModel{}).Where("id = ?", agentID).Updates(updates)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "agent not found")
	}
	return nil
}

func (r *GormRegistry) SetCurrentTask(ctx context.Context, agentID, taskID string) error {
	res := r.engine.DB().WithContext(ctx).Model(&storage.AgentModel{}).
		Where("id = ?", agentID).
		Updates(map[string]any{
			"current_task_id":       taskID,
			"current_task_progress": 0,
			"updated_at":            r.clock.Now().UTC(),
		})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "agent not found")
	}
	return nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.ErrConnection, "registry operation failed").WithCause(err)
}
