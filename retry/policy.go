package retry

import (
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

// Retry reasons attached to retried runs.
const (
	ReasonAutoTestRetry       = "auto_test_retry"
	ReasonEarlyFlakeDetection = "early_flake_detection"
	ReasonAttemptToFix        = "attempt_to_fix"
)

// Default per-test attempt caps. The cap counts the first run.
const (
	DefaultATRMaxAttempts          = 6
	DefaultEFDMaxAttempts          = 6
	DefaultAttemptToFixMaxAttempts = 20
	DefaultATRSessionBudget        = 1000
)

// Policy decides whether and how a test is retried.
// Policies hold no per-test state; everything they need lives on the Test and its runs.
type Policy interface {
	// Name is the retry reason attached to retried runs.
	Name() string
	// PrettyName is used in host-facing report lines.
	PrettyName() string
	// ShouldApply is evaluated once per test, after its first run.
	ShouldApply(test *types.Test) bool
	// ShouldRetry is evaluated after every run and must eventually return false.
	ShouldRetry(test *types.Test) bool
	// FinalStatus is computed once retries stop.
	FinalStatus(test *types.Test) types.TestStatus
	// TagsForRun returns the tags for a run's event. The first attempt always gets none.
	TagsForRun(run *types.TestRun) map[string]string

	policy()
}

// Select returns the first policy in priority order that applies to the test, or nil.
func Select(policies []Policy, test *types.Test) Policy {
	for _, p := range policies {
		if p.ShouldApply(test) {
			return p
		}
	}
	return nil
}

func retryTags(run *types.TestRun, reason string) map[string]string {
	if run.AttemptNumber == 0 {
		return map[string]string{}
	}
	return map[string]string{
		types.TagIsRetry:     "true",
		types.TagRetryReason: reason,
	}
}

// redeemedStatus passes a test if any run passed, otherwise fails it if any run failed.
func redeemedStatus(test *types.Test) types.TestStatus {
	var failed bool
	for _, run := range test.Runs() {
		switch run.Status() {
		case types.TestStatusPass:
			return types.TestStatusPass
		case types.TestStatusFail:
			failed = true
		}
	}
	if failed {
		return types.TestStatusFail
	}
	return types.TestStatusSkip
}

func lastRunFailed(test *types.Test) bool {
	last := test.LastRun()
	return last != nil && last.Status() == types.TestStatusFail
}

func capOrDefault(maxAttempts, def int) int {
	if maxAttempts <= 0 {
		return def
	}
	return maxAttempts
}
