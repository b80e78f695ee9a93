package quality

import "time"

// Severity ranks a Regression's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// RegressionType enumerates the regression rules DetectRegressions
// evaluates.
type RegressionType string

const (
	RegressionLint      RegressionType = "lint_regression"
	RegressionTypeCheck RegressionType = "type_regression"
	RegressionTest      RegressionType = "test_regression"
	RegressionCoverage  RegressionType = "coverage_regression"
	RegressionBuild     RegressionType = "build_failure"
)

// Metrics is a single quality measurement, independent of storage.
type Metrics struct {
	LintErrors      int
	LintWarnings    int
	TypeErrors      int
	TestsPassing    int
	TestsFailing    int
	TestCoverage    float64
	BuildSuccess    bool
	BuildDurationMs int64
	TestDurationMs  int64
}

// TestPassRate returns 100*passing/(passing+failing). A zero
// denominator counts as a full pass.
func (m Metrics) TestPassRate() float64 {
	total := m.TestsPassing + m.TestsFailing
	if total == 0 {
		return 100
	}
	return 100 * float64(m.TestsPassing) / float64(total)
}

// Snapshot is a persisted, timestamped Metrics reading.
type Snapshot struct {
	ID         string
	TaskID     string
	AgentID    string
	Metrics    Metrics
	Timestamp  time.Time
	IsBaseline bool
	Tags       []string
}

// Regression is one detected metric delta exceeding its rule's
// threshold.
type Regression struct {
	Type          RegressionType
	Severity      Severity
	BaselineValue float64
	CurrentValue  float64
	Delta         float64
	Description   string
	Resolved      bool
}

// Operator is a gate comparison operator.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
)

// Gate is a single named quality gate.
type Gate struct {
	ID        string
	Name      string
	Metric    string
	Operator  Operator
	Threshold float64
	Blocking  bool
	Enabled   bool
}

// GateCheckResult is the outcome of evaluating one Gate against a
// Metrics reading.
type GateCheckResult struct {
	Gate     Gate
	Value    float64
	Passed   bool
	Blocking bool
}

// RegressionSummary is SummarizeRegressions' output.
type RegressionSummary struct {
	Total        int
	BySeverity   map[Severity]int
	ByType       map[RegressionType]int
	Blocking     bool
	Descriptions []string
}
