package scheduler

import (
	"context"

	"github.com/beadswarm/beads/registry"
	"github.com/beadswarm/beads/task"
)

// SwarmStatus is the coordinator-wide read model the dashboard polls:
// agent counts by status plus the task graph's shape. It is assembled
// from two independent reads, so the two halves may be skewed by
// in-flight writes; callers polling every couple of seconds converge.
type SwarmStatus struct {
	Agents      map[registry.Status]int64
	AgentsTotal int64
	Tasks       *task.Stats
	Workers     int
}

// GetSwarmStatus summarizes the registered agents and the task graph.
func (s *Scheduler) GetSwarmStatus(ctx context.Context) (*SwarmStatus, error) {
	agents, err := s.registry.List(ctx, registry.Filter{})
	if err != nil {
		return nil, err
	}
	stats, err := s.tasks.Stats(ctx)
	if err != nil {
		return nil, err
	}

	status := &SwarmStatus{
		Agents:      make(map[registry.Status]int64),
		AgentsTotal: int64(len(agents)),
		Tasks:       stats,
		Workers:     s.workers.Active(),
	}
	for _, a := range agents {
		status.Agents[a.Status]++
	}
	return status, nil
}
