package task

import "time"

// Priority orders claim eligibility: critical > high > medium > low.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// rank returns a sort weight where lower sorts first (higher priority).
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Status is the task lifecycle state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusBlocked      Status = "blocked"
	StatusReady        Status = "ready"
	StatusClaimed      Status = "claimed"
	StatusInProgress   Status = "in_progress"
	StatusPendingRetry Status = "pending_retry"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether the status cannot transition further.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultMaxRetries is applied to a Task when MaxRetries is left at zero.
const DefaultMaxRetries = 2

// RetryBaseDelay is the fixed exponential backoff base:
// next_retry_at = now + 30s * 2^retry_count.
const RetryBaseDelay = 30 * time.Second

// Task is the domain model for a unit of work tracked by the store.
type Task struct {
	ID                string
	Title             string
	Description       string
	Priority          Priority
	Type              string
	RequiredSkills    []string
	Files             []string
	EstimatedMinutes  int
	RetryCount        int
	MaxRetries        int
	LastError         string
	FailureType       string
	NextRetryAt       *time.Time
	PreviousAgents    []string
	Result            string
	BranchID          string
	QualitySnapshotID string
	Status            Status
	AssignedAgent     string
	ClaimedAt         *time.Time
	CompletedAt       *time.Time
	Dependencies      []string // ordered
	Blockers          []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Failure describes why a task's execution failed, as reported by an
// Executor to the REPORTING phase of the scheduler work loop.
type Failure struct {
	Message     string
	Type        string
	Recoverable bool
}

// Result is what an Executor returns on successful completion.
type Result struct {
	Payload string
}
