package retry

import (
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

var _ Policy = (*EarlyFlakeDetection)(nil)

// EarlyFlakeDetection runs new tests several times; a single pass redeems the test.
type EarlyFlakeDetection struct {
	maxAttempts int
}

func NewEarlyFlakeDetection(maxAttempts int) *EarlyFlakeDetection {
	return &EarlyFlakeDetection{maxAttempts: capOrDefault(maxAttempts, DefaultEFDMaxAttempts)}
}

func (p *EarlyFlakeDetection) Name() string       { return ReasonEarlyFlakeDetection }
func (p *EarlyFlakeDetection) PrettyName() string { return "Early Flake Detection" }

func (p *EarlyFlakeDetection) ShouldApply(test *types.Test) bool {
	return test.IsNew()
}

func (p *EarlyFlakeDetection) ShouldRetry(test *types.Test) bool {
	return len(test.Runs()) < p.maxAttempts
}

func (p *EarlyFlakeDetection) FinalStatus(test *types.Test) types.TestStatus {
	return redeemedStatus(test)
}

func (p *EarlyFlakeDetection) TagsForRun(run *types.TestRun) map[string]string {
	return retryTags(run, ReasonEarlyFlakeDetection)
}

func (p *EarlyFlakeDetection) policy() {}
