package quality

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// The severity ladders from the regression table, checked over the
// whole input space rather than single points.
func TestDetectRegressions_SeverityLadderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	baseline := Metrics{
		LintErrors:   2,
		TypeErrors:   1,
		TestsPassing: 50,
		TestCoverage: 80,
		BuildSuccess: true,
	}

	properties.Property("lint delta maps to low/medium/high", prop.ForAll(
		func(delta int) bool {
			current := baseline
			current.LintErrors = baseline.LintErrors + delta
			rs := DetectRegressions(baseline, current, DefaultRegressionThresholds())

			var found *Regression
			for i := range rs {
				if rs[i].Type == RegressionLint {
					found = &rs[i]
				}
			}
			if delta <= 0 {
				return found == nil
			}
			if found == nil {
				return false
			}
			switch {
			case delta >= 10:
				return found.Severity == SeverityHigh
			case delta >= 5:
				return found.Severity == SeverityMedium
			default:
				return found.Severity == SeverityLow
			}
		},
		gen.IntRange(-5, 30),
	))

	properties.Property("type delta maps to medium/high", prop.ForAll(
		func(delta int) bool {
			current := baseline
			current.TypeErrors = baseline.TypeErrors + delta
			rs := DetectRegressions(baseline, current, DefaultRegressionThresholds())

			var found *Regression
			for i := range rs {
				if rs[i].Type == RegressionTypeCheck {
					found = &rs[i]
				}
			}
			if delta <= 0 {
				return found == nil
			}
			if found == nil {
				return false
			}
			if delta >= 5 {
				return found.Severity == SeverityHigh
			}
			return found.Severity == SeverityMedium
		},
		gen.IntRange(-3, 20),
	))

	properties.Property("any new failing test is critical", prop.ForAll(
		func(delta int) bool {
			current := baseline
			current.TestsFailing = baseline.TestsFailing + delta
			rs := DetectRegressions(baseline, current, DefaultRegressionThresholds())

			for _, r := range rs {
				if r.Type == RegressionTest {
					return delta > 0 && r.Severity == SeverityCritical
				}
			}
			return delta <= 0
		},
		gen.IntRange(-2, 15),
	))

	properties.Property("coverage drop maps to low/medium/high past 5 points", prop.ForAll(
		func(dropInt int) bool {
			// Integer drops keep the float arithmetic exact at the 5/10/20
			// boundaries.
			drop := float64(dropInt)
			current := baseline
			current.TestCoverage = baseline.TestCoverage - drop
			rs := DetectRegressions(baseline, current, DefaultRegressionThresholds())

			var found *Regression
			for i := range rs {
				if rs[i].Type == RegressionCoverage {
					found = &rs[i]
				}
			}
			if drop <= 5.0 {
				return found == nil
			}
			if found == nil {
				return false
			}
			switch {
			case drop >= 20:
				return found.Severity == SeverityHigh
			case drop >= 10:
				return found.Severity == SeverityMedium
			default:
				return found.Severity == SeverityLow
			}
		},
		gen.IntRange(0, 40),
	))

	properties.Property("summary blocking iff critical or high present", prop.ForAll(
		func(lintDelta, typeDelta int) bool {
			current := baseline
			current.LintErrors = baseline.LintErrors + lintDelta
			current.TypeErrors = baseline.TypeErrors + typeDelta
			rs := DetectRegressions(baseline, current, DefaultRegressionThresholds())
			sum := SummarizeRegressions(rs)
			return sum.Blocking == HasBlockingRegressions(rs) && sum.Total == len(rs)
		},
		gen.IntRange(0, 15),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
