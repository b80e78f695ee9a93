package memory

import "time"

// Type enumerates the kinds of knowledge a Memory can represent.
type Type string

const (
	TypeCodebaseKnowledge  Type = "codebase_knowledge"
	TypeAgentLearning      Type = "agent_learning"
	TypePatternRecognition Type = "pattern_recognition"
	TypeConversationHist   Type = "conversation_history"
	TypeDecisionRationale  Type = "decision_rationale"
	TypeRegressionPattern  Type = "regression_pattern"
	TypeSuccessfulFix      Type = "successful_fix"
	TypeGeneral            Type = "general"
)

// protectedFromCompaction holds the types compaction must never remove
// regardless of importance.
var protectedFromCompaction = map[Type]bool{
	TypeCodebaseKnowledge: true,
}

// Memory is a single persisted piece of knowledge.
type Memory struct {
	ID           string
	Type         Type
	Content      string
	Embedding    []float64
	Metadata     map[string]any
	Importance   float64
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
	ExpiresAt    *time.Time
	AgentID      string
	TaskID       string
	WorkspaceID  string
	Tags         []string
}

// Expired reports whether the memory's expiry has passed as of now.
func (m *Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// Filter narrows a List call.
type Filter struct {
	Type        Type
	AgentID     string
	TaskID      string
	WorkspaceID string
	Tag         string
	Limit       int
	Offset      int
}

// SearchOptions configures SemanticSearch / SemanticSearchByText.
type SearchOptions struct {
	Limit              int
	Type               Type
	AgentID            string
	TaskID             string
	WeightByImportance bool
}

// SearchResult pairs a Memory with its similarity score.
type SearchResult struct {
	Memory *Memory
	Score  float64
}

// Stats summarizes the store's contents.
type Stats struct {
	Total      int64
	ByType     map[Type]int64
	WithVector int64
}
