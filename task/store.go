package task

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beadswarm/beads/storage"
	"github.com/beadswarm/beads/types"
)

// ClaimRetries bounds the guarded-update retry loop in Claim when a
// concurrent agent wins the race for the same ready row.
const ClaimRetries = 3

// Stats is a read-model summarizing the task graph's current shape.
type Stats struct {
	Total      int64
	ByStatus   map[Status]int64
	ByPriority map[Priority]int64
}

// Store is the task store ("beads") contract.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]*Task, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Claim(ctx context.Context, agentID string, f Filter) (*Task, error)
	Release(ctx context.Context, id, agentID string) error
	UpdateProgress(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id string, result Result) error
	Fail(ctx context.Context, id string, failure Failure) error
	FindRetryEligible(ctx context.Context) ([]*Task, error)
	ResetForRetry(ctx context.Context, id string) error
	UpdateBlockedToReady(ctx context.Context) (int, error)
	GetAgentTasks(ctx context.Context, agentID string) ([]*Task, error)
	Stats(ctx context.Context) (*Stats, error)
	ReleaseStale(ctx context.Context, agentID, reason string) (int, error)
}

// GormStore is the default Store implementation, backed by storage.Engine.
type GormStore struct {
	engine *storage.Engine
	clock  types.Clock
	logger *zap.Logger
}

// NewGormStore constructs a GormStore.
func NewGormStore(engine *storage.Engine, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := engine.Clock()
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &GormStore{engine: engine, clock: clock, logger: logger.With(zap.String("component", "task_store"))}
}

var _ Store = (*GormStore)(nil)

// Create validates dependencies for cycles and inserts the task. Initial
// status is blocked iff Dependencies is non-empty, else pending.
// Non-existent dependency ids are accepted here and silently filtered at
// claim time; only cycles among *existing* ids are rejected.
func (s *GormStore) Create(ctx context.Context, t *Task) (*Task, error) {
	if t.Title == "" {
		return nil, types.NewError(types.ErrValidation, "title is required")
	}
	if t.ID == "" {
		t.ID = types.NewTaskID()
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = DefaultMaxRetries
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if len(t.Dependencies) > 0 {
		t.Status = StatusBlocked
	} else if t.Status == "" {
		t.Status = StatusPending
	}

	now := s.clock.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	err := s.engine.Transaction(ctx, func(tx *gorm.DB) error {
		existing, err := loadDependencyGraph(tx)
		if err != nil {
			return err
		}
		if detectCycle(t.ID, t.Dependencies, existing) {
			return types.NewError(types.ErrValidation, "dependency cycle detected")
		}
		if err := tx.Create(toModel(t)).Error; err != nil {
			if msg := strings.ToLower(err.Error()); strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
				return types.NewError(types.ErrConflict, "task id already exists").WithCause(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return t, nil
}

func loadDependencyGraph(tx *gorm.DB) (map[string][]string, error) {
	var rows []storage.TaskModel
	if err := tx.Select("id", "dependencies").Find(&rows).Error; err != nil {
		return nil, err
	}
	graph := make(map[string][]string, len(rows))
	for _, r := range rows {
		graph[r.ID] = unmarshalStrings(r.Dependencies)
	}
	return graph, nil
}

// Get retrieves a task by id.
func (s *GormStore) Get(ctx context.Context, id string) (*Task, error) {
	var m storage.TaskModel
	err := s.engine.DB().WithContext(ctx).First(&m, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "get task failed").WithCause(err)
	}
	return fromModel(&m), nil
}

// Update overwrites the task's mutable fields, re-checking the
// dependency graph for cycles if Dependencies changed.
func (s *GormStore) Update(ctx context.Context, t *Task) error {
	t.UpdatedAt = s.clock.Now().UTC()
	return s.engine.Transaction(ctx, func(tx *gorm.DB) error {
		existing, err := loadDependencyGraph(tx)
		if err != nil {
			return err
		}
		delete(existing, t.ID)
		if detectCycle(t.ID, t.Dependencies, existing) {
			return types.NewError(types.ErrValidation, "dependency cycle detected")
		}
		res := tx.Model(&storage.TaskModel{}).Where("id = ?", t.ID).Updates(toModel(t))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.NewError(types.ErrNotFound, "task not found")
		}
		return nil
	})
}

// Delete removes a task.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.engine.DB().WithContext(ctx).Delete(&storage.TaskModel{}, "id = ?", id)
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "delete task failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "task not found")
	}
	return nil
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if len(f.Status) > 0 {
		statuses := make([]string, len(f.Status))
		for i, s := range f.Status {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if len(f.Priority) > 0 {
		priorities := make([]string, len(f.Priority))
		for i, p := range f.Priority {
			priorities[i] = string(p)
		}
		q = q.Where("priority IN ?", priorities)
	}
	if f.AssignedAgent != "" {
		q = q.Where("assigned_agent = ?", f.AssignedAgent)
	}
	if f.BranchID != "" {
		q = q.Where("branch_id = ?", f.BranchID)
	}
	if len(f.ExcludeIDs) > 0 {
		q = q.Where("id NOT IN ?", f.ExcludeIDs)
	}
	return q
}

// List returns tasks matching f, ordered by created_at. The skills
// filter is OR-match: a task qualifies when any filter skill appears in
// its required set. Required skills are stored as a JSON array, so that
// predicate is applied in memory after the SQL filters.
func (s *GormStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	q := applyFilter(s.engine.DB().WithContext(ctx), f)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var rows []storage.TaskModel
	if err := q.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrConnection, "list tasks failed").WithCause(err)
	}
	out := make([]*Task, 0, len(rows))
	for i := range rows {
		t := fromModel(&rows[i])
		if len(f.Skills) > 0 && !skillsOverlap(t.RequiredSkills, f.Skills) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Count returns the number of tasks matching f, applying the same
// OR-match skill predicate as List.
func (s *GormStore) Count(ctx context.Context, f Filter) (int64, error) {
	q := applyFilter(s.engine.DB().WithContext(ctx).Model(&storage.TaskModel{}), f)
	if len(f.Skills) == 0 {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return 0, types.NewError(types.ErrConnection, "count tasks failed").WithCause(err)
		}
		return n, nil
	}

	var rows []storage.TaskModel
	if err := q.Select("id", "required_skills").Find(&rows).Error; err != nil {
		return 0, types.NewError(types.ErrConnection, "count tasks failed").WithCause(err)
	}
	var n int64
	for i := range rows {
		if skillsOverlap(unmarshalStrings(rows[i].RequiredSkills), f.Skills) {
			n++
		}
	}
	return n, nil
}

// Claim atomically assigns the best eligible ready task to agentID:
// select the first eligible ready task ordered by priority then
// created_at then id, then attempt a guarded update; on a lost race
// (rows_affected=0 because a concurrent agent claimed it first), retry
// the select+update up to ClaimRetries times.
func (s *GormStore) Claim(ctx context.Context, agentID string, f Filter) (*Task, error) {
	var claimed *Task

	for attempt := 0; attempt < ClaimRetries; attempt++ {
		var candidate *storage.TaskModel
		raceLost := false

		err := s.engine.Transaction(ctx, func(tx *gorm.DB) error {
			q := applyFilter(tx, f).Where("status = ?", string(StatusReady))
			var rows []storage.TaskModel
			if err := q.Order("created_at asc, id asc").Find(&rows).Error; err != nil {
				return err
			}
			// priority is stored as a string (critical/high/medium/low),
			// whose alphabetic order doesn't match rank order, so the
			// tie-break (priority, created_at, id) is applied in memory.
			sort.SliceStable(rows, func(i, j int) bool {
				return priorityOrder(Priority(rows[i].Priority)) < priorityOrder(Priority(rows[j].Priority))
			})
			for i := range rows {
				skills := unmarshalStrings(rows[i].RequiredSkills)
				if skillsSatisfied(skills, f.Skills) {
					candidate = &rows[i]
					break
				}
			}
			if candidate == nil {
				return nil
			}

			now := s.clock.Now().UTC()
			prevAgents := unmarshalStrings(candidate.PreviousAgents)
			prevAgents = append(prevAgents, agentID)

			res := tx.Model(&storage.TaskModel{}).
				Where("id = ? AND status = ?", candidate.ID, string(StatusReady)).
				Updates(map[string]any{
					"status":          string(StatusClaimed),
					"assigned_agent":  agentID,
					"claimed_at":      now,
					"updated_at":      now,
					"previous_agents": marshalStrings(prevAgents),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// A concurrent agent claimed it between select and update.
				candidate = nil
				raceLost = true
				return nil
			}
			return nil
		})
		if err != nil {
			return nil, wrapErr(err)
		}
		if candidate != nil {
			refreshed, err := s.Get(ctx, candidate.ID)
			if err != nil {
				return nil, err
			}
			claimed = refreshed
			break
		}
		if !raceLost {
			// Nothing eligible at all; retrying would just re-run the
			// same empty select.
			break
		}
	}

	return claimed, nil
}

// priorityOrder ranks a priority for in-memory sorting, since priority is
// persisted as a string whose alphabetic order doesn't match rank order.
func priorityOrder(p Priority) int { return p.rank() }

// Release clears a claim, returning the task to ready. Only the owning
// agent may release.
func (s *GormStore) Release(ctx context.Context, id, agentID string) error {
	now := s.clock.Now().UTC()
	res := s.engine.DB().WithContext(ctx).Model(&storage.TaskModel{}).
		Where("id = ? AND assigned_agent = ?", id, agentID).
		Updates(map[string]any{
			"status":         string(StatusReady),
			"assigned_agent": "",
			"claimed_at":     nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "release task failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrPrecondition, "task not claimed by agent")
	}
	return nil
}

// ReleaseStale resets every task assigned to agentID and still claimed
// or in_progress back to ready, for the stale-agent reaper in the
// registry package. Task rows are mutated only through this store.
func (s *GormStore) ReleaseStale(ctx context.Context, agentID, reason string) (int, error) {
	now := s.clock.Now().UTC()
	res := s.engine.DB().WithContext(ctx).Model(&storage.TaskModel{}).
		Where("assigned_agent = ? AND status IN ?", agentID, []string{string(StatusClaimed), string(StatusInProgress)}).
		Updates(map[string]any{
			"status":         string(StatusReady),
			"assigned_agent": "",
			"claimed_at":     nil,
			"last_error":     reason,
			"updated_at":     now,
		})
	if res.Error != nil {
		return 0, types.NewError(types.ErrConnection, "release stale tasks failed").WithCause(res.Error)
	}
	return int(res.RowsAffected), nil
}

// UpdateProgress touches the task row so updated_at reflects the latest
// executor heartbeat; live progress percentage is tracked on the Agent
// record (current_task_progress) by the registry package.
func (s *GormStore) UpdateProgress(ctx context.Context, id string, progress int) error {
	res := s.engine.DB().WithContext(ctx).Model(&storage.TaskModel{}).
		Where("id = ?", id).
		Update("updated_at", s.clock.Now().UTC())
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "update progress failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "task not found")
	}
	return nil
}

// Complete transitions a task to completed, requiring it be in_progress
// or claimed beforehand.
func (s *GormStore) Complete(ctx context.Context, id string, result Result) error {
	now := s.clock.Now().UTC()
	res := s.engine.DB().WithContext(ctx).Model(&storage.TaskModel{}).
		Where("id = ? AND status IN ?", id, []string{string(StatusClaimed), string(StatusInProgress)}).
		Updates(map[string]any{
			"status":       string(StatusCompleted),
			"result":       result.Payload,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "complete task failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrPrecondition, "task not in a completable state")
	}
	return nil
}

// Fail records a failed attempt: if retry_count <
// max_retries and the failure is recoverable, the task returns to
// pending_retry with next_retry_at = now + 30s*2^retry_count; otherwise
// it terminates as failed. retry_count increments in both branches.
func (s *GormStore) Fail(ctx context.Context, id string, failure Failure) error {
	return s.engine.Transaction(ctx, func(tx *gorm.DB) error {
		var m storage.TaskModel
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.NewError(types.ErrNotFound, "task not found")
			}
			return err
		}

		now := s.clock.Now().UTC()
		newRetryCount := m.RetryCount + 1

		updates := map[string]any{
			"retry_count":  newRetryCount,
			"last_error":   failure.Message,
			"failure_type": failure.Type,
			"updated_at":   now,
		}

		if m.RetryCount < m.MaxRetries && failure.Recoverable {
			delay := time.Duration(float64(RetryBaseDelay) * math.Pow(2, float64(m.RetryCount)))
			nextRetry := now.Add(delay)
			updates["status"] = string(StatusPendingRetry)
			updates["next_retry_at"] = nextRetry
		} else {
			updates["status"] = string(StatusFailed)
		}

		return tx.Model(&storage.TaskModel{}).Where("id = ?", id).Updates(updates).Error
	})
}

// FindRetryEligible returns pending_retry tasks whose next_retry_at has
// elapsed.
func (s *GormStore) FindRetryEligible(ctx context.Context) ([]*Task, error) {
	now := s.clock.Now().UTC()
	var rows []storage.TaskModel
	err := s.engine.DB().WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", string(StatusPendingRetry), now).
		Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrConnection, "find retry eligible failed").WithCause(err)
	}
	out := make([]*Task, len(rows))
	for i := range rows {
		out[i] = fromModel(&rows[i])
	}
	return out, nil
}

// ResetForRetry transitions a pending_retry task back to ready, clearing
// its prior assignment. Kept as a distinct step from FindRetryEligible
// per the resolved Open Question: the two-step shape is preserved rather
// than merging pending_retry directly into ready selection.
func (s *GormStore) ResetForRetry(ctx context.Context, id string) error {
	now := s.clock.Now().UTC()
	res := s.engine.DB().WithContext(ctx).Model(&storage.TaskModel{}).
		Where("id = ? AND status = ?", id, string(StatusPendingRetry)).
		Updates(map[string]any{
			"status":         string(StatusReady),
			"assigned_agent": "",
			"claimed_at":     nil,
			"next_retry_at":  nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return types.NewError(types.ErrConnection, "reset for retry failed").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrPrecondition, "task not pending_retry")
	}
	return nil
}

// UpdateBlockedToReady promotes every blocked task whose dependencies
// are all completed to ready, returning the count promoted. Pending
// tasks are swept too: a freshly created task with no dependencies sits
// in pending until this promotes it, which keeps ready a derived state
// with a single writer instead of racing create against claim.
func (s *GormStore) UpdateBlockedToReady(ctx context.Context) (int, error) {
	promoted := 0
	err := s.engine.Transaction(ctx, func(tx *gorm.DB) error {
		var blocked []storage.TaskModel
		if err := tx.Where("status IN ?", []string{string(StatusBlocked), string(StatusPending)}).Find(&blocked).Error; err != nil {
			return err
		}
		if len(blocked) == 0 {
			return nil
		}

		var statusRows []struct {
			ID     string
			Status string
		}
		if err := tx.Model(&storage.TaskModel{}).Select("id", "status").Find(&statusRows).Error; err != nil {
			return err
		}
		statusByID := make(map[string]string, len(statusRows))
		for _, r := range statusRows {
			statusByID[r.ID] = r.Status
		}

		now := s.clock.Now().UTC()
		for _, b := range blocked {
			deps := unmarshalStrings(b.Dependencies)
			ready := true
			for _, d := range deps {
				if statusByID[d] != string(StatusCompleted) {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			res := tx.Model(&storage.TaskModel{}).
				Where("id = ? AND status = ?", b.ID, b.Status).
				Updates(map[string]any{"status": string(StatusReady), "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			promoted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	return promoted, nil
}

// GetAgentTasks returns the tasks currently assigned to agentID.
func (s *GormStore) GetAgentTasks(ctx context.Context, agentID string) ([]*Task, error) {
	return s.List(ctx, Filter{AssignedAgent: agentID})
}

// Stats summarizes the task graph.
func (s *GormStore) Stats(ctx context.Context) (*Stats, error) {
	var rows []storage.TaskModel
	if err := s.engine.DB().WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrConnection, "stats failed").WithCause(err)
	}
	st := &Stats{ByStatus: map[Status]int64{}, ByPriority: map[Priority]int64{}}
	st.Total = int64(len(rows))
	for _, r := range rows {
		st.ByStatus[Status(r.Status)]++
		st.ByPriority[Priority(r.Priority)]++
	}
	return st, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*types.Error); ok {
		return err
	}
	return types.NewError(types.ErrConnection, "task store operation failed").WithCause(err)
}
