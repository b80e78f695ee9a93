package quality

import "fmt"

// RegressionThresholds overrides the default threshold for each
// regression rule; a zero value keeps the default.
type RegressionThresholds struct {
	Lint     int
	Type     int
	Test     int
	Coverage float64
}

// DefaultRegressionThresholds returns the standard thresholds: any new
// lint/type/test failure regresses, coverage tolerates a 5-point drop.
func DefaultRegressionThresholds() RegressionThresholds {
	return RegressionThresholds{Lint: 0, Type: 0, Test: 0, Coverage: 5.0}
}

// DetectRegressions compares current against baseline and emits one
// Regression per triggered rule.
func DetectRegressions(baseline, current Metrics, th RegressionThresholds) []Regression {
	var out []Regression

	if d := current.LintErrors - baseline.LintErrors; d > th.Lint {
		sev := SeverityLow
		switch {
		case d >= 10:
			sev = SeverityHigh
		case d >= 5:
			sev = SeverityMedium
		}
		out = append(out, Regression{
			Type:          RegressionLint,
			Severity:      sev,
			BaselineValue: float64(baseline.LintErrors),
			CurrentValue:  float64(current.LintErrors),
			Delta:         float64(d),
			Description:   fmt.Sprintf("lint errors increased by %d (%d -> %d)", d, baseline.LintErrors, current.LintErrors),
		})
	}

	if d := current.TypeErrors - baseline.TypeErrors; d > th.Type {
		sev := SeverityMedium
		if d >= 5 {
			sev = SeverityHigh
		}
		out = append(out, Regression{
			Type:          RegressionTypeCheck,
			Severity:      sev,
			BaselineValue: float64(baseline.TypeErrors),
			CurrentValue:  float64(current.TypeErrors),
			Delta:         float64(d),
			Description:   fmt.Sprintf("type errors increased by %d (%d -> %d)", d, baseline.TypeErrors, current.TypeErrors),
		})
	}

	if d := current.TestsFailing - baseline.TestsFailing; d > th.Test {
		out = append(out, Regression{
			Type:          RegressionTest,
			Severity:      SeverityCritical,
			BaselineValue: float64(baseline.TestsFailing),
			CurrentValue:  float64(current.TestsFailing),
			Delta:         float64(d),
			Description:   fmt.Sprintf("failing tests increased by %d (%d -> %d)", d, baseline.TestsFailing, current.TestsFailing),
		})
	}

	coverageThreshold := th.Coverage
	if coverageThreshold == 0 {
		coverageThreshold = DefaultRegressionThresholds().Coverage
	}
	if drop := baseline.TestCoverage - current.TestCoverage; drop > coverageThreshold {
		sev := SeverityLow
		switch {
		case drop >= 20:
			sev = SeverityHigh
		case drop >= 10:
			sev = SeverityMedium
		}
		out = append(out, Regression{
			Type:          RegressionCoverage,
			Severity:      sev,
			BaselineValue: baseline.TestCoverage,
			CurrentValue:  current.TestCoverage,
			Delta:         -drop,
			Description:   fmt.Sprintf("coverage dropped by %.1f%% (%.1f%% -> %.1f%%)", drop, baseline.TestCoverage, current.TestCoverage),
		})
	}

	if baseline.BuildSuccess && !current.BuildSuccess {
		out = append(out, Regression{
			Type:          RegressionBuild,
			Severity:      SeverityCritical,
			BaselineValue: 1,
			CurrentValue:  0,
			Delta:         -1,
			Description:   "build succeeded on baseline but fails now",
		})
	}

	return out
}

// HasCriticalRegressions reports whether any regression is critical.
func HasCriticalRegressions(rs []Regression) bool {
	for _, r := range rs {
		if r.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasBlockingRegressions reports whether any regression is critical or
// high severity.
func HasBlockingRegressions(rs []Regression) bool {
	for _, r := range rs {
		if r.Severity == SeverityCritical || r.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// SummarizeRegressions aggregates counts by severity and type.
func SummarizeRegressions(rs []Regression) RegressionSummary {
	sum := RegressionSummary{
		Total:      len(rs),
		BySeverity: make(map[Severity]int),
		ByType:     make(map[RegressionType]int),
		Blocking:   HasBlockingRegressions(rs),
	}
	for _, r := range rs {
		sum.BySeverity[r.Severity]++
		sum.ByType[r.Type]++
		sum.Descriptions = append(sum.Descriptions, r.Description)
	}
	return sum
}
