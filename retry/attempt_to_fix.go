package retry

import (
	"strconv"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

var _ Policy = (*AttemptToFix)(nil)

// AttemptToFix reruns tests that test management marks as being fixed.
type AttemptToFix struct {
	maxAttempts int
}

func NewAttemptToFix(maxAttempts int) *AttemptToFix {
	return &AttemptToFix{maxAttempts: capOrDefault(maxAttempts, DefaultAttemptToFixMaxAttempts)}
}

func (p *AttemptToFix) Name() string       { return ReasonAttemptToFix }
func (p *AttemptToFix) PrettyName() string { return "Attempt to Fix" }

func (p *AttemptToFix) ShouldApply(test *types.Test) bool {
	return test.IsAttemptToFix()
}

func (p *AttemptToFix) ShouldRetry(test *types.Test) bool {
	return len(test.Runs()) < p.maxAttempts
}

func (p *AttemptToFix) FinalStatus(test *types.Test) types.TestStatus {
	return redeemedStatus(test)
}

// TagsForRun marks retries, and on the last allowed attempt records whether every attempt passed.
func (p *AttemptToFix) TagsForRun(run *types.TestRun) map[string]string {
	tags := retryTags(run, ReasonAttemptToFix)
	if run.AttemptNumber == 0 || run.AttemptNumber != p.maxAttempts-1 {
		return tags
	}
	tags[types.TagAttemptToFixPassed] = strconv.FormatBool(allPassed(run.Test()))
	return tags
}

func (p *AttemptToFix) policy() {}

func allPassed(test *types.Test) bool {
	for _, run := range test.Runs() {
		if run.Status() != types.TestStatusPass {
			return false
		}
	}
	return true
}
