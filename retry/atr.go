package retry

import (
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

var _ Policy = (*AutoTestRetries)(nil)

// AutoTestRetries retries failing tests until they pass or the per-test cap is reached.
type AutoTestRetries struct {
	maxAttempts int
	budget      *Budget
}

// NewAutoTestRetries creates the policy. A nil budget means retries are bounded
// only by the per-test cap.
func NewAutoTestRetries(maxAttempts int, budget *Budget) *AutoTestRetries {
	return &AutoTestRetries{
		maxAttempts: capOrDefault(maxAttempts, DefaultATRMaxAttempts),
		budget:      budget,
	}
}

func (p *AutoTestRetries) Name() string       { return ReasonAutoTestRetry }
func (p *AutoTestRetries) PrettyName() string { return "Auto Test Retries" }

func (p *AutoTestRetries) ShouldApply(test *types.Test) bool {
	if !lastRunFailed(test) {
		return false
	}
	return p.budget == nil || p.budget.Remaining() > 0
}

func (p *AutoTestRetries) ShouldRetry(test *types.Test) bool {
	if !lastRunFailed(test) || len(test.Runs()) >= p.maxAttempts {
		return false
	}
	return p.budget == nil || p.budget.Take()
}

func (p *AutoTestRetries) FinalStatus(test *types.Test) types.TestStatus {
	if last := test.LastRun(); last != nil {
		return last.Status()
	}
	return types.TestStatusSkip
}

func (p *AutoTestRetries) TagsForRun(run *types.TestRun) map[string]string {
	return retryTags(run, ReasonAutoTestRetry)
}

func (p *AutoTestRetries) policy() {}
