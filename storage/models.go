package storage

import "time"

// TaskModel is the GORM row shape for the tasks table. JSON-encoded array
// fields hold dependencies/blockers/required_skills/files/
// previous_agents/result are stored as TEXT/JSON columns.
type TaskModel struct {
	ID                string     `gorm:"primaryKey;column:id"`
	Title             string     `gorm:"column:title"`
	Description       string     `gorm:"column:description"`
	Priority          string     `gorm:"column:priority;index"`
	Type              string     `gorm:"column:type"`
	Status            string     `gorm:"column:status;index"`
	RequiredSkills    string     `gorm:"column:required_skills"` // JSON []string
	Files             string     `gorm:"column:files"`           // JSON []string
	EstimatedMinutes  int        `gorm:"column:estimated_minutes"`
	RetryCount        int        `gorm:"column:retry_count"`
	MaxRetries        int        `gorm:"column:max_retries"`
	LastError         string     `gorm:"column:last_error"`
	FailureType       string     `gorm:"column:failure_type"`
	NextRetryAt       *time.Time `gorm:"column:next_retry_at"`
	PreviousAgents    string     `gorm:"column:previous_agents"` // JSON []string
	Result            string     `gorm:"column:result"`          // JSON payload
	BranchID          string     `gorm:"column:branch_id"`
	QualitySnapshotID string     `gorm:"column:quality_snapshot_id"`
	AssignedAgent     string     `gorm:"column:assigned_agent;index"`
	ClaimedAt         *time.Time `gorm:"column:claimed_at"`
	CompletedAt       *time.Time `gorm:"column:completed_at"`
	Dependencies      string     `gorm:"column:dependencies"` // JSON []string, ordered
	Blockers          string     `gorm:"column:blockers"`     // JSON []string
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

// TableName pins the GORM table name regardless of pluralization rules.
func (TaskModel) TableName() string { return "tasks" }

// AgentModel is the GORM row shape for the agents table.
type AgentModel struct {
	ID                  string    `gorm:"primaryKey;column:id"`
	Name                string    `gorm:"column:name"`
	Type                string    `gorm:"column:type"`
	Skills              string    `gorm:"column:skills"` // JSON []string
	MaxTaskMinutes      int       `gorm:"column:max_task_minutes"`
	CanRunTests         bool      `gorm:"column:can_run_tests"`
	CanRunBuild         bool      `gorm:"column:can_run_build"`
	CanAccessBrowser    bool      `gorm:"column:can_access_browser"`
	Status              string    `gorm:"column:status;index"`
	CurrentTaskID       string    `gorm:"column:current_task_id"`
	CurrentTaskProgress int       `gorm:"column:current_task_progress"`
	CurrentPhase        string    `gorm:"column:current_phase"`
	LastHeartbeatAt     time.Time `gorm:"column:last_heartbeat_at"`
	HeartbeatCount      int64     `gorm:"column:heartbeat_count"`
	TasksCompleted      int64     `gorm:"column:tasks_completed"`
	TasksFailed         int64     `gorm:"column:tasks_failed"`
	TotalRuntimeMinutes int64     `gorm:"column:total_runtime_minutes"`
	MachineMetadata     string    `gorm:"column:machine_metadata"` // JSON object
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (AgentModel) TableName() string { return "agents" }

// LeaseModel is the GORM row shape for the leases table. file_path is the
// primary key: one path, one holder.
type LeaseModel struct {
	FilePath     string    `gorm:"primaryKey;column:file_path"`
	AgentID      string    `gorm:"column:agent_id"`
	TaskID       string    `gorm:"column:task_id"`
	AcquiredAt   time.Time `gorm:"column:acquired_at"`
	ExpiresAt    time.Time `gorm:"column:expires_at;index"`
	RenewedCount int       `gorm:"column:renewed_count"`
}

func (LeaseModel) TableName() string { return "leases" }

// MessageModel is the GORM row shape for the messages table.
type MessageModel struct {
	ID             string     `gorm:"primaryKey;column:id"`
	Type           string     `gorm:"column:type"`
	FromAgent      string     `gorm:"column:from_agent"`
	ToAgent        *string    `gorm:"column:to_agent;index:idx_messages_to_agent_ack"`
	Payload        string     `gorm:"column:payload"` // JSON payload
	AckRequired    bool       `gorm:"column:ack_required"`
	DeliveredAt    *time.Time `gorm:"column:delivered_at"`
	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at;index:idx_messages_to_agent_ack"`
	AcknowledgedBy string     `gorm:"column:acknowledged_by"`
	ExpiresAt      *time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;index"`
}

func (MessageModel) TableName() string { return "messages" }

// MemoryModel is the GORM row shape for the memories table.
type MemoryModel struct {
	ID           string     `gorm:"primaryKey;column:id"`
	Type         string     `gorm:"column:type;index"`
	Content      string     `gorm:"column:content"`
	Embedding    string     `gorm:"column:embedding"` // JSON []float64, nullable
	Metadata     string     `gorm:"column:metadata"`  // JSON object
	Importance   float64    `gorm:"column:importance;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;index"`
	LastAccessed time.Time  `gorm:"column:last_accessed;index"`
	AccessCount  int64      `gorm:"column:access_count"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	AgentID      string     `gorm:"column:agent_id"`
	TaskID       string     `gorm:"column:task_id"`
	WorkspaceID  string     `gorm:"column:workspace_id"`
	Tags         string     `gorm:"column:tags"` // JSON []string
}

func (MemoryModel) TableName() string { return "memories" }

// QualitySnapshotModel is the GORM row shape for the quality_snapshots table.
type QualitySnapshotModel struct {
	ID              string    `gorm:"primaryKey;column:id"`
	TaskID          string    `gorm:"column:task_id"`
	AgentID         string    `gorm:"column:agent_id"`
	LintErrors      int       `gorm:"column:lint_errors"`
	LintWarnings    int       `gorm:"column:lint_warnings"`
	TypeErrors      int       `gorm:"column:type_errors"`
	TestsPassing    int       `gorm:"column:tests_passing"`
	TestsFailing    int       `gorm:"column:tests_failing"`
	TestCoverage    float64   `gorm:"column:test_coverage"`
	BuildSuccess    bool      `gorm:"column:build_success"`
	BuildDurationMs int64     `gorm:"column:build_duration_ms"`
	TestDurationMs  int64     `gorm:"column:test_duration_ms"`
	Timestamp       time.Time `gorm:"column:timestamp"`
	IsBaseline      bool      `gorm:"column:is_baseline"`
	Tags            string    `gorm:"column:tags"` // JSON []string
}

func (QualitySnapshotModel) TableName() string { return "quality_snapshots" }

// QualityBaselineModel is a singleton row (id always 1) pointing at the
// current baseline snapshot.
type QualityBaselineModel struct {
	ID         int    `gorm:"primaryKey;column:id"`
	SnapshotID string `gorm:"column:snapshot_id"`
}

func (QualityBaselineModel) TableName() string { return "quality_baseline" }
