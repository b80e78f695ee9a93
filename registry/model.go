package registry

import "time"

// Status is an agent's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Capabilities describes what kinds of work an agent can take on.
type Capabilities struct {
	Skills           []string
	MaxTaskMinutes   int
	CanRunTests      bool
	CanRunBuild      bool
	CanAccessBrowser bool
}

// Agent is a registered worker process identity.
type Agent struct {
	ID                  string
	Name                string
	Type                string
	Capabilities        Capabilities
	Status              Status
	CurrentTaskID       string
	CurrentTaskProgress int
	CurrentPhase        string
	LastHeartbeatAt     time.Time
	HeartbeatCount      int64
	TasksCompleted      int64
	TasksFailed         int64
	TotalRuntimeMinutes int64
	MachineMetadata     map[string]any
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Busy reports whether the agent's current_task_id references a task it
// is actively working. The registry
// itself cannot verify the referenced task's status; callers that need
// the full invariant check cross-reference the task store.
func (a *Agent) Busy() bool {
	return a.Status == StatusBusy && a.CurrentTaskID != ""
}

// HeartbeatUpdate is the payload of a heartbeat call.
type HeartbeatUpdate struct {
	Status        Status
	CurrentTask   string
	CurrentPhase  string
	TaskProgress  *int
	HasTaskUpdate bool
}

// Filter narrows a List call.
type Filter struct {
	Status Status
	Type   string
	Skill  string
}

// ReapResult summarizes one stale-agent reap pass for a single agent.
type ReapResult struct {
	AgentID        string
	LeasesReleased bool
	TasksReset     int
}
