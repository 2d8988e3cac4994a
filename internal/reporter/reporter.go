// Package reporter renders a run's progress and final summary
// (spec.md §6): a colorized Console reporter for interactive use and an
// NDJSON reporter for machine consumption.
package reporter

import (
	"github.com/cboone/tact/internal/shell"
	"github.com/cboone/tact/internal/suite"
)

// Reporter is the interface the orchestrator drives a run's output
// through. It mirrors orchestrator.Reporter; defined again here so this
// package has no dependency on internal/orchestrator.
type Reporter interface {
	Start(totalTests int, shells []shell.Shell)
	EndTest(tc *suite.TestCase, result suite.TestResult)
	End(root *suite.Suite) int
}

// summarize folds a suite tree into pass/fail/flaky/skipped counts and
// the set of tests whose final outcome was not expected, shared by both
// reporter implementations' End.
func summarize(root *suite.Suite) (passed, failed, flaky, skipped int, failures []*suite.TestCase) {
	for _, tc := range root.AllTests() {
		switch tc.Outcome() {
		case suite.StatusExpected:
			passed++
		case suite.StatusFlaky:
			flaky++
		case suite.StatusSkipped:
			skipped++
		default:
			failed++
			failures = append(failures, tc)
		}
	}
	return
}
