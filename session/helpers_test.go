package session

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testopt/catalog"
	"github.com/ethereum-optimism/infra/op-testopt/types"
	"github.com/ethereum-optimism/infra/op-testopt/writer"
)

func ref(name string) types.TestRef {
	return types.NewTestRef("pkg", "a_test.go", name)
}

type fakeCatalog struct {
	settings  catalog.Settings
	known     map[types.TestRef]struct{}
	props     map[types.TestRef]catalog.TestProperties
	skippable catalog.SkippableItems

	knownCalls     int
	managementCall int
	skippableCalls int
}

func (c *fakeCatalog) Settings(context.Context) catalog.Settings { return c.settings }

func (c *fakeCatalog) KnownTests(context.Context) map[types.TestRef]struct{} {
	c.knownCalls++
	if c.known == nil {
		return map[types.TestRef]struct{}{}
	}
	return c.known
}

func (c *fakeCatalog) TestManagement(context.Context) map[types.TestRef]catalog.TestProperties {
	c.managementCall++
	if c.props == nil {
		return map[types.TestRef]catalog.TestProperties{}
	}
	return c.props
}

func (c *fakeCatalog) SkippableTests(context.Context) catalog.SkippableItems {
	c.skippableCalls++
	return c.skippable
}

func knownSet(refs ...types.TestRef) map[types.TestRef]struct{} {
	out := make(map[types.TestRef]struct{}, len(refs))
	for _, r := range refs {
		out[r] = struct{}{}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []writer.Event
}

func (s *recordingSink) Send(_ context.Context, payload writer.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, payload.Events...)
	return nil
}

func (s *recordingSink) ofType(eventType string) []writer.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []writer.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// scriptedExecutor plays back per-test outcomes. The last outcome repeats.
type scriptedExecutor struct {
	outcomes map[string][]types.TestStatus
	calls    map[string]int
	err      error
}

func newScriptedExecutor(outcomes map[string][]types.TestStatus) *scriptedExecutor {
	return &scriptedExecutor{outcomes: outcomes, calls: make(map[string]int)}
}

func (e *scriptedExecutor) Execute(_ context.Context, test *types.Test) (*Reports, error) {
	n := e.calls[test.Name()]
	e.calls[test.Name()]++
	if e.err != nil {
		return nil, e.err
	}
	status := types.TestStatusPass
	if seq := e.outcomes[test.Name()]; len(seq) > 0 {
		status = seq[min(n, len(seq)-1)]
	}
	return reportsFor(test.Ref(), status), nil
}

func reportsFor(ref types.TestRef, status types.TestStatus) *Reports {
	call := &Report{Test: ref, Phase: PhaseCall, Outcome: OutcomePassed}
	switch status {
	case types.TestStatusFail:
		call.Outcome = OutcomeFailed
		call.Longrepr = "assertion failed"
		call.Err = &ErrorInfo{Type: "testing.T", Message: "assertion failed"}
	case types.TestStatusSkip:
		call.Outcome = OutcomeSkipped
		call.SkipReason = "not supported"
	}
	return &Reports{
		Setup:    &Report{Test: ref, Phase: PhaseSetup, Outcome: OutcomePassed},
		Call:     call,
		Teardown: &Report{Test: ref, Phase: PhaseTeardown, Outcome: OutcomePassed},
	}
}

type recordingReporter struct {
	reports []*Report
}

func (r *recordingReporter) LogReport(report *Report) {
	r.reports = append(r.reports, report)
}

func (r *recordingReporter) categories(test types.TestRef) map[string]int {
	out := make(map[string]int)
	for _, report := range r.reports {
		if report.Test != test {
			continue
		}
		if category, _, _ := ReportStatus(report); category != "" {
			out[category]++
		}
	}
	return out
}

type fixture struct {
	manager  *Manager
	orch     *Orchestrator
	catalog  *fakeCatalog
	exec     *scriptedExecutor
	reporter *recordingReporter
	sink     *recordingSink
}

func newFixture(t *testing.T, cfg ManagerConfig, cat *fakeCatalog, exec *scriptedExecutor) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, cfg, cat, exec, log.NewLogger(log.DiscardHandler()))
}

func newFixtureWithLogger(t *testing.T, cfg ManagerConfig, cat *fakeCatalog, exec *scriptedExecutor, logger log.Logger) *fixture {
	t.Helper()
	sink := &recordingSink{}
	w := writer.New(sink, logger)
	session := types.NewTestSession("go test ./...")
	session.TestFramework = "gotest"
	session.TestCommand = "go test ./..."
	manager := NewManager(cfg, session, cat, w, logger)
	reporter := &recordingReporter{}
	return &fixture{
		manager:  manager,
		orch:     NewOrchestrator(manager, exec, reporter, logger),
		catalog:  cat,
		exec:     exec,
		reporter: reporter,
		sink:     sink,
	}
}

func cases(refs ...types.TestRef) []TestCase {
	out := make([]TestCase, 0, len(refs))
	for _, r := range refs {
		out = append(out, TestCase{Ref: r})
	}
	return out
}

func enabledSettings() catalog.Settings {
	s := catalog.DefaultSettings()
	s.EarlyFlakeDetection.Enabled = true
	s.AutoTestRetries.Enabled = true
	s.TestManagement.Enabled = true
	s.KnownTestsEnabled = true
	return s
}
