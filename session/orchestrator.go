package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-testopt/metrics"
	"github.com/ethereum-optimism/infra/op-testopt/retry"
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

const (
	DisabledReason      = "Flaky test is disabled by test management"
	SkippedByITRReason  = "Skipped by test impact analysis"
	NotExecutedReason   = "Test was not executed"
	QuarantinedLongrepr = "Quarantined"

	// maxRunsPerTest bounds the retry loop when a policy never stops.
	maxRunsPerTest = 1000
)

// ErrPolicyInvariant is the panic value raised when a retry policy breaks its contract.
var ErrPolicyInvariant = errors.New("retry policy invariant violated")

// Executor runs one execution of a test and reports its phases. An error means
// the test could not be run at all.
type Executor interface {
	Execute(ctx context.Context, test *types.Test) (*Reports, error)
}

// HostReporter receives the reports shown in the runner's own output.
type HostReporter interface {
	LogReport(report *Report)
}

// TestCase is a test to run together with its discovery hooks.
type TestCase struct {
	Ref   types.TestRef
	Hooks DiscoveryHooks
}

// Orchestrator drives the per-test execution loop. It is not safe for
// concurrent use: tests run one at a time.
type Orchestrator struct {
	manager  *Manager
	executor Executor
	reporter HostReporter
	log      log.Logger
	tracer   trace.Tracer

	finishedSuites  map[types.SuiteRef]struct{}
	finishedModules map[types.ModuleRef]struct{}
	skippedByITR    int
}

func NewOrchestrator(manager *Manager, executor Executor, reporter HostReporter, log log.Logger) *Orchestrator {
	return &Orchestrator{
		manager:         manager,
		executor:        executor,
		reporter:        reporter,
		log:             log,
		tracer:          otel.Tracer("testopt"),
		finishedSuites:  make(map[types.SuiteRef]struct{}),
		finishedModules: make(map[types.ModuleRef]struct{}),
	}
}

// Collect discovers every test case and then installs the retry policies.
func (o *Orchestrator) Collect(cases []TestCase) {
	for _, tc := range cases {
		o.manager.Discover(tc.Ref, tc.Hooks)
	}
	o.manager.FinishCollection()
}

// RunAll runs the collected cases in order. Cases must be grouped by suite
// and module for the rollup to emit each suite once.
func (o *Orchestrator) RunAll(ctx context.Context, cases []TestCase) error {
	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return err
		}
		var next *types.TestRef
		if i+1 < len(cases) {
			next = &cases[i+1].Ref
		}
		test := o.BeforeTest(tc.Ref, tc.Hooks)
		o.RunTest(ctx, test)
		o.AfterTest(ctx, test, next, nil)
	}
	return nil
}

// BeforeTest resolves the test's nodes and starts their clocks.
func (o *Orchestrator) BeforeTest(ref types.TestRef, hooks DiscoveryHooks) *types.Test {
	module, suite, test := o.manager.Discover(ref, hooks)

	if _, ok := o.finishedSuites[ref.Suite]; ok {
		o.log.Warn("Suite resumed after it was finished; it will be reported again",
			"suite", ref.Suite.String())
	}
	if _, ok := o.finishedModules[ref.Suite.Module]; ok {
		o.log.Warn("Module resumed after it was finished; it will be reported again",
			"module", ref.Suite.Module.String())
	}

	module.Start()
	suite.Start()
	test.Start()
	return test
}

// RunTest executes the test, retrying it under the first applicable policy,
// and finalizes its status.
func (o *Orchestrator) RunTest(ctx context.Context, test *types.Test) {
	ref := test.Ref()

	if test.IsDisabled() && !test.IsAttemptToFix() {
		o.log.Debug("Skipping disabled test", "test", ref.String())
		o.skipTest(ctx, test, DisabledReason, nil)
		return
	}
	if o.manager.IsSkippable(ref) {
		o.log.Debug("Skipping test by test impact analysis", "test", ref.String())
		o.skippedByITR++
		o.skipTest(ctx, test, SkippedByITRReason, map[string]string{types.TagSkippedByITR: "true"})
		return
	}

	run, reports := o.runOnce(ctx, test)

	policy := retry.Select(o.manager.Policies(), test)
	if policy == nil || !policy.ShouldRetry(test) {
		test.SetStatus(run.Status())
		if test.HidesFailures() {
			markReportsQuarantined(reports)
		}
		for _, report := range reports.All() {
			o.reporter.LogReport(report)
		}
		o.emitRuns(test, policy)
		return
	}

	o.retry(ctx, test, policy, reports)
}

func (o *Orchestrator) retry(ctx context.Context, test *types.Test, policy retry.Policy, reports *Reports) {
	longrepr := reports.Longrepr()

	markReportsRetry(reports, policy)
	o.logReport(reports.Setup)
	o.logReport(reports.Call)
	first := test.LastRun()
	first.SetTags(policy.TagsForRun(first))

	for shouldRetry := true; shouldRetry; {
		if len(test.Runs()) >= maxRunsPerTest {
			panic(fmt.Errorf("%w: %s did not stop retrying %s after %d runs",
				ErrPolicyInvariant, policy.Name(), test.Ref(), len(test.Runs())))
		}
		metrics.RecordRetry(policy.Name())
		o.log.Debug("Retrying test", "test", test.Ref().String(), "policy", policy.Name(), "attempt", len(test.Runs()))

		var run *types.TestRun
		run, reports = o.runOnce(ctx, test)
		shouldRetry = policy.ShouldRetry(test)
		run.SetTags(policy.TagsForRun(run))
		markReportsRetry(reports, policy)
		if reports.Call != nil {
			o.logReport(reports.Call)
		} else {
			o.logReport(reports.Setup)
		}
	}

	final := policy.FinalStatus(test)
	if !final.Valid() {
		panic(fmt.Errorf("%w: %s returned final status %q for %s",
			ErrPolicyInvariant, policy.Name(), final, test.Ref()))
	}
	test.SetStatus(final)
	o.emitRuns(test, policy)

	// One synthesized report stands for every attempt, and one teardown closes it.
	finalReport := &Report{
		Test:     test.Ref(),
		Phase:    PhaseCall,
		Outcome:  outcomeForStatus(final),
		Longrepr: longrepr,
	}
	teardown := reports.Teardown
	if test.HidesFailures() {
		markQuarantined(finalReport)
		if teardown != nil {
			markQuarantined(teardown)
		}
	}
	o.reporter.LogReport(finalReport)
	o.logReport(teardown)
}

func (o *Orchestrator) logReport(report *Report) {
	if report != nil {
		o.reporter.LogReport(report)
	}
}

// runOnce executes the test once and records the outcome in a new run.
func (o *Orchestrator) runOnce(ctx context.Context, test *types.Test) (*types.TestRun, *Reports) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("test %s", test.Name()))
	defer span.End()

	run := test.MakeTestRun()
	run.SetContext(runContext(span.SpanContext()))
	run.Start()

	reports, err := o.executor.Execute(ctx, test)
	if err != nil {
		o.log.Error("Failed to execute test", "test", test.Ref().String(), "err", err)
		metrics.RecordErrorDetails("session.execute", err)
		reports = executionErrorReports(test.Ref(), err)
	}
	if reports == nil {
		reports = &Reports{}
	}

	status, tags := OutcomeFromReports(reports)
	run.SetStatus(status)
	run.SetTags(tags)
	run.Finish()

	if status == types.TestStatusFail {
		span.SetStatus(codes.Error, tags[types.TagErrorMessage])
	}
	return run, reports
}

func (o *Orchestrator) skipTest(ctx context.Context, test *types.Test, reason string, tags map[string]string) {
	_, span := o.tracer.Start(ctx, fmt.Sprintf("test %s", test.Name()))
	defer span.End()

	run := test.MakeTestRun()
	run.SetContext(runContext(span.SpanContext()))
	run.Start()
	run.SetStatus(types.TestStatusSkip)
	run.SetTag(types.TagSkipReason, reason)
	run.SetTags(tags)
	run.Finish()

	test.SetStatus(types.TestStatusSkip)
	o.emitRuns(test, nil)
	o.reporter.LogReport(&Report{
		Test:       test.Ref(),
		Phase:      PhaseCall,
		Outcome:    OutcomeSkipped,
		Longrepr:   reason,
		SkipReason: reason,
	})
}

func (o *Orchestrator) emitRuns(test *types.Test, policy retry.Policy) {
	policyName := metrics.PolicyNone
	if policy != nil {
		policyName = policy.Name()
	}
	for _, run := range test.Runs() {
		metrics.RecordTestRun(policyName, run.Status())
		o.manager.Writer().PutItem(run)
	}
}

// AfterTest finishes the test and rolls up its suite and module when next
// belongs elsewhere. next is nil for the last test. reports carries the
// outcome when the host executed the test itself instead of RunTest; such a
// test is recorded with a single run and never retried.
func (o *Orchestrator) AfterTest(ctx context.Context, test *types.Test, next *types.TestRef, reports *Reports) {
	if len(test.Runs()) == 0 {
		o.recordExternalRun(ctx, test, reports)
	}
	test.Finish()
	metrics.RecordTest(test.ReportedStatus())

	ref := test.Ref()
	suite := test.Suite()
	module := suite.Module()

	if next == nil || next.Suite != ref.Suite {
		o.finishSuite(suite)
	}
	if next == nil || next.Suite.Module != ref.Suite.Module {
		o.finishModule(module)
	}
}

func (o *Orchestrator) recordExternalRun(ctx context.Context, test *types.Test, reports *Reports) {
	if reports == nil {
		o.log.Debug("Test has no runs and no outcome", "test", test.Ref().String())
		o.skipTest(ctx, test, NotExecutedReason, nil)
		return
	}
	o.log.Debug("Recording externally executed test", "test", test.Ref().String())

	_, span := o.tracer.Start(ctx, fmt.Sprintf("test %s", test.Name()))
	run := test.MakeTestRun()
	run.SetContext(runContext(span.SpanContext()))
	run.Start()
	status, tags := OutcomeFromReports(reports)
	run.SetStatus(status)
	run.SetTags(tags)
	run.Finish()
	span.End()

	test.SetStatus(status)
	o.emitRuns(test, nil)
}

func (o *Orchestrator) finishSuite(suite *types.TestSuite) {
	if id := o.manager.CorrelationID(); id != "" {
		suite.SetTag(types.TagITRCorrelationID, id)
	}
	suite.Finish()
	o.manager.Writer().PutItem(suite)
	o.finishedSuites[suite.Ref()] = struct{}{}
}

func (o *Orchestrator) finishModule(module *types.TestModule) {
	module.Finish()
	o.manager.Writer().PutItem(module)
	o.finishedModules[module.Ref()] = struct{}{}
}

// FinishSession rolls up anything left open, emits the session and flushes
// the writer. It returns the session's status.
func (o *Orchestrator) FinishSession() types.TestStatus {
	session := o.manager.Session()
	for _, module := range session.Modules() {
		for _, suite := range module.Suites() {
			if _, ok := o.finishedSuites[suite.Ref()]; !ok {
				o.finishSuite(suite)
			}
		}
		if _, ok := o.finishedModules[module.Ref()]; !ok {
			o.finishModule(module)
		}
	}

	if o.manager.Settings().SkippingEnabled {
		o.manager.skippedCount(o.skippedByITR)
	}
	session.Finish()
	o.manager.Writer().PutItem(session)
	metrics.RecordSession(strconv.FormatUint(session.SessionID(), 10), session.Status(), session.Duration())

	o.manager.Finish()
	return session.Status()
}

// Failed reports whether any test's host-facing status is a failure.
// Quarantined failures do not count.
func (o *Orchestrator) Failed() bool {
	for _, module := range o.manager.Session().Modules() {
		for _, suite := range module.Suites() {
			for _, test := range suite.Tests() {
				if test.ReportedStatus() == types.TestStatusFail {
					return true
				}
			}
		}
	}
	return false
}

func markReportsRetry(reports *Reports, policy retry.Policy) {
	report := reports.Call
	if report == nil {
		report = reports.Setup
	}
	if report == nil {
		return
	}
	report.setProperty(PropRetryOutcome, string(report.Outcome))
	report.setProperty(PropRetryReason, policy.PrettyName())
	report.Outcome = OutcomeRetry
}

// markQuarantined forces a report to a non-failing outcome. The teardown
// passes, any other phase is shown as skipped.
func markQuarantined(report *Report) {
	report.setProperty(PropQuarantined, "true")
	if report.Phase == PhaseTeardown {
		report.Outcome = OutcomePassed
		return
	}
	report.Longrepr = QuarantinedLongrepr
	report.Outcome = OutcomeSkipped
}

func markReportsQuarantined(reports *Reports) {
	if reports.Call != nil {
		markQuarantined(reports.Call)
		if reports.Setup != nil {
			reports.Setup.setProperty(PropQuarantined, "true")
			reports.Setup.Outcome = OutcomePassed
		}
	} else if reports.Setup != nil {
		markQuarantined(reports.Setup)
	}
	if reports.Teardown != nil {
		markQuarantined(reports.Teardown)
	}
}

func executionErrorReports(ref types.TestRef, err error) *Reports {
	return &Reports{
		Setup: &Report{
			Test:     ref,
			Phase:    PhaseSetup,
			Outcome:  OutcomeFailed,
			Longrepr: err.Error(),
			Err: &ErrorInfo{
				Type:    "ExecutionError",
				Message: err.Error(),
			},
		},
	}
}

// runContext derives a run's trace and span IDs from the low 64 bits of the
// span context, or random IDs when tracing is not configured.
func runContext(sc trace.SpanContext) (uint64, uint64) {
	if !sc.IsValid() {
		return randomID(), randomID()
	}
	traceID := sc.TraceID()
	spanID := sc.SpanID()
	return binary.BigEndian.Uint64(traceID[8:]), binary.BigEndian.Uint64(spanID[:])
}

func randomID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 {
			return id
		}
	}
}
