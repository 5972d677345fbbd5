package types

// Parent pointers in this file are non-owning back-references: a child never
// keeps its parent alive on its own and never mutates it.

// TestSession is the root of the result tree.
type TestSession struct {
	Item
	modules children[*TestModule]

	TestCommand          string
	TestFramework        string
	TestFrameworkVersion string
}

func NewTestSession(name string) *TestSession {
	return &TestSession{Item: newItem(name)}
}

func (s *TestSession) Kind() Kind { return KindSession }

func (s *TestSession) Status() TestStatus {
	return s.resolveStatus(func() TestStatus { return AggregateStatus(s.modules.statuses()) })
}

// GetOrCreateModule returns the named module, creating it if needed.
func (s *TestSession) GetOrCreateModule(name string) (*TestModule, bool) {
	return s.modules.getOrCreate(name, func() *TestModule {
		m := &TestModule{Item: newItem(name), session: s}
		m.SetService(s.service)
		return m
	})
}

func (s *TestSession) Module(name string) (*TestModule, bool) { return s.modules.get(name) }

func (s *TestSession) Modules() []*TestModule { return s.modules.list() }

func (s *TestSession) SessionID() uint64 { return s.id }

// TestModule groups suites, typically a package.
type TestModule struct {
	Item
	session *TestSession
	suites  children[*TestSuite]

	Path string
}

func (m *TestModule) Kind() Kind { return KindModule }

func (m *TestModule) Status() TestStatus {
	return m.resolveStatus(func() TestStatus { return AggregateStatus(m.suites.statuses()) })
}

func (m *TestModule) GetOrCreateSuite(name string) (*TestSuite, bool) {
	return m.suites.getOrCreate(name, func() *TestSuite {
		s := &TestSuite{Item: newItem(name), module: m}
		s.SetService(m.service)
		return s
	})
}

func (m *TestModule) Suite(name string) (*TestSuite, bool) { return m.suites.get(name) }

func (m *TestModule) Suites() []*TestSuite { return m.suites.list() }

func (m *TestModule) Session() *TestSession { return m.session }

func (m *TestModule) Ref() ModuleRef { return ModuleRef{Name: m.name} }

func (m *TestModule) ModuleID() uint64  { return m.id }
func (m *TestModule) SessionID() uint64 { return m.session.id }

// TestSuite groups tests, typically a single test file.
type TestSuite struct {
	Item
	module *TestModule
	tests  children[*Test]
}

func (s *TestSuite) Kind() Kind { return KindSuite }

func (s *TestSuite) Status() TestStatus {
	return s.resolveStatus(func() TestStatus { return AggregateStatus(s.tests.statuses()) })
}

func (s *TestSuite) GetOrCreateTest(name string) (*Test, bool) {
	return s.tests.getOrCreate(name, func() *Test {
		t := &Test{Item: newItem(name), suite: s}
		t.SetService(s.service)
		return t
	})
}

func (s *TestSuite) Test(name string) (*Test, bool) { return s.tests.get(name) }

func (s *TestSuite) Tests() []*Test { return s.tests.list() }

func (s *TestSuite) Module() *TestModule { return s.module }

func (s *TestSuite) Ref() SuiteRef { return SuiteRef{Module: s.module.Ref(), Name: s.name} }

func (s *TestSuite) SuiteID() uint64   { return s.id }
func (s *TestSuite) ModuleID() uint64  { return s.module.id }
func (s *TestSuite) SessionID() uint64 { return s.module.SessionID() }

// TestAttributes are the per-test flags resolved at discovery time.
type TestAttributes struct {
	IsNew          bool
	IsQuarantined  bool
	IsDisabled     bool
	IsAttemptToFix bool
}

// Test is a single test case. Its executions are recorded as an ordered list of runs.
type Test struct {
	Item
	suite *TestSuite
	runs  []*TestRun
	attrs TestAttributes
}

func (t *Test) Kind() Kind { return KindTest }

// Status is the explicit final status when set, otherwise the status of the last run.
// A test with no runs is skipped.
func (t *Test) Status() TestStatus {
	return t.resolveStatus(func() TestStatus {
		if last := t.LastRun(); last != nil {
			return last.Status()
		}
		return TestStatusSkip
	})
}

// ReportedStatus is the status shown to the host runner. Quarantined tests, and
// disabled tests under attempt-to-fix, never report a failure.
func (t *Test) ReportedStatus() TestStatus {
	s := t.Status()
	if s == TestStatusFail && t.HidesFailures() {
		return TestStatusSkip
	}
	return s
}

// HidesFailures reports whether failures of this test are masked in host reports.
func (t *Test) HidesFailures() bool {
	return t.attrs.IsQuarantined || (t.attrs.IsDisabled && t.attrs.IsAttemptToFix)
}

func (t *Test) SetAttributes(attrs TestAttributes) { t.attrs = attrs }

func (t *Test) Attributes() TestAttributes { return t.attrs }

func (t *Test) IsNew() bool          { return t.attrs.IsNew }
func (t *Test) IsQuarantined() bool  { return t.attrs.IsQuarantined }
func (t *Test) IsDisabled() bool     { return t.attrs.IsDisabled }
func (t *Test) IsAttemptToFix() bool { return t.attrs.IsAttemptToFix }

// SetSourceLocation records where the test is defined.
func (t *Test) SetSourceLocation(file string, line int) {
	t.SetTag(TagSourceFile, file)
	t.SetMetric(MetricSourceStart, float64(line))
}

// MakeTestRun appends a new run. Its attempt number is its index in the run list.
func (t *Test) MakeTestRun() *TestRun {
	run := &TestRun{Item: newItem(t.name), test: t, AttemptNumber: len(t.runs)}
	run.SetService(t.service)
	t.runs = append(t.runs, run)
	return run
}

// Runs returns the runs in execution order.
func (t *Test) Runs() []*TestRun {
	out := make([]*TestRun, len(t.runs))
	copy(out, t.runs)
	return out
}

// LastRun returns the most recent run, or nil when the test never ran.
func (t *Test) LastRun() *TestRun {
	if len(t.runs) == 0 {
		return nil
	}
	return t.runs[len(t.runs)-1]
}

func (t *Test) Suite() *TestSuite { return t.suite }

func (t *Test) Ref() TestRef { return TestRef{Suite: t.suite.Ref(), Name: t.name} }

func (t *Test) SuiteID() uint64   { return t.suite.id }
func (t *Test) ModuleID() uint64  { return t.suite.ModuleID() }
func (t *Test) SessionID() uint64 { return t.suite.SessionID() }

// TestRun is one execution attempt of a Test.
type TestRun struct {
	Item
	test *Test

	AttemptNumber int

	traceID uint64
	spanID  uint64
}

func (r *TestRun) Kind() Kind { return KindRun }

// Status of a run is set explicitly from its outcome. A run with no outcome
// recorded yet counts as failed.
func (r *TestRun) Status() TestStatus {
	return r.resolveStatus(func() TestStatus { return TestStatusFail })
}

// SetContext assigns tracing identifiers. They are assigned once; later calls are ignored.
func (r *TestRun) SetContext(traceID, spanID uint64) {
	if r.traceID != 0 || r.spanID != 0 {
		return
	}
	r.traceID, r.spanID = traceID, spanID
}

func (r *TestRun) TraceID() uint64 { return r.traceID }
func (r *TestRun) SpanID() uint64  { return r.spanID }

func (r *TestRun) Test() *Test { return r.test }

func (r *TestRun) SuiteID() uint64   { return r.test.SuiteID() }
func (r *TestRun) ModuleID() uint64  { return r.test.ModuleID() }
func (r *TestRun) SessionID() uint64 { return r.test.SessionID() }
