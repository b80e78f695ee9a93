package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/beadswarm/beads/lease"
	"github.com/beadswarm/beads/task"
)

const staleHeartbeatLostReason = "agent heartbeat lost"

// Reaper implements the stale-agent sweep: release every
// lease the agent held, reset its in-flight tasks to ready, and mark it
// offline.
type Reaper struct {
	registry Registry
	leases   lease.Manager
	tasks    task.Store
	logger   *zap.Logger
}

// NewReaper constructs a Reaper.
func NewReaper(registry Registry, leases lease.Manager, tasks task.Store, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{registry: registry, leases: leases, tasks: tasks, logger: logger.With(zap.String("component", "stale_reaper"))}
}

// Sweep finds every agent stale by thresholdMs and reaps it.
func (r *Reaper) Sweep(ctx context.Context, thresholdMs int64) ([]ReapResult, error) {
	stale, err := r.registry.FindStale(ctx, thresholdMs)
	if err != nil {
		return nil, err
	}
	results := make([]ReapResult, 0, len(stale))
	for _, a := range stale {
		res, err := r.ReapAgent(ctx, a.ID)
		if err != nil {
			r.logger.Warn("failed to reap stale agent", zap.String("agent_id", a.ID), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// ReapAgent performs the three-step reap for a single agent id,
// independent of whether it was discovered via FindStale.
func (r *Reaper) ReapAgent(ctx context.Context, agentID string) (ReapResult, error) {
	res := ReapResult{AgentID: agentID}

	if err := r.leases.ReleaseAll(ctx, agentID); err != nil {
		return res, err
	}
	res.LeasesReleased = true

	n, err := r.tasks.ReleaseStale(ctx, agentID, staleHeartbeatLostReason)
	if err != nil {
		return res, err
	}
	res.TasksReset = n

	if err := r.registry.Heartbeat(ctx, agentID, HeartbeatUpdate{Status: StatusOffline}); err != nil {
		return res, err
	}
	return res, nil
}
