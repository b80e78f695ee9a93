package quality

// DefaultGates returns the default gate set. The coverage gate is
// always included and is enabled only when coverageEnabled is true.
func DefaultGates(coverageEnabled bool, coverageThreshold float64) []Gate {
	gates := []Gate{
		{ID: "build_success", Name: "Build succeeds", Metric: "build_success", Operator: OpEq, Threshold: 1, Blocking: true, Enabled: true},
		{ID: "type_errors", Name: "No type errors", Metric: "type_errors", Operator: OpEq, Threshold: 0, Blocking: true, Enabled: true},
		{ID: "lint_errors", Name: "No lint errors", Metric: "lint_errors", Operator: OpEq, Threshold: 0, Blocking: true, Enabled: true},
		{ID: "test_pass_rate", Name: "All tests pass", Metric: "test_pass_rate", Operator: OpGte, Threshold: 100, Blocking: true, Enabled: true},
		{ID: "coverage", Name: "Coverage threshold", Metric: "test_coverage", Operator: OpGte, Threshold: coverageThreshold, Blocking: true, Enabled: coverageEnabled},
	}
	return gates
}

func metricValue(m Metrics, name string) (float64, bool) {
	switch name {
	case "build_success":
		if m.BuildSuccess {
			return 1, true
		}
		return 0, true
	case "type_errors":
		return float64(m.TypeErrors), true
	case "lint_errors":
		return float64(m.LintErrors), true
	case "lint_warnings":
		return float64(m.LintWarnings), true
	case "tests_passing":
		return float64(m.TestsPassing), true
	case "tests_failing":
		return float64(m.TestsFailing), true
	case "test_pass_rate":
		return m.TestPassRate(), true
	case "test_coverage":
		return m.TestCoverage, true
	default:
		return 0, false
	}
}

func evaluate(op Operator, value, threshold float64) bool {
	switch op {
	case OpEq:
		return value == threshold
	case OpNeq:
		return value != threshold
	case OpGt:
		return value > threshold
	case OpGte:
		return value >= threshold
	case OpLt:
		return value < threshold
	case OpLte:
		return value <= threshold
	default:
		return false
	}
}

// CheckQualityGates evaluates every enabled gate against metrics.
func CheckQualityGates(gates []Gate, metrics Metrics) []GateCheckResult {
	results := make([]GateCheckResult, 0, len(gates))
	for _, g := range gates {
		if !g.Enabled {
			continue
		}
		value, ok := metricValue(metrics, g.Metric)
		if !ok {
			continue
		}
		results = append(results, GateCheckResult{
			Gate:     g,
			Value:    value,
			Passed:   evaluate(g.Operator, value, g.Threshold),
			Blocking: g.Blocking,
		})
	}
	return results
}

// AllBlockingGatesPass reports whether every blocking, enabled gate
// passes.
func AllBlockingGatesPass(gates []Gate, metrics Metrics) bool {
	for _, r := range CheckQualityGates(gates, metrics) {
		if r.Blocking && !r.Passed {
			return false
		}
	}
	return true
}
