// Package session resolves a test session's configuration and drives the
// per-test execution loop.
//
// A Manager fetches backend settings and catalogs, discovers tests into the
// result tree and installs the retry policies once collection is complete.
// An Orchestrator then runs each test in two phases around the host runner:
//
//	test := o.BeforeTest(ref, hooks)
//	o.RunTest(ctx, test) // or let the host execute it
//	o.AfterTest(ctx, test, next, reports)
//
// RunTest picks the first applicable policy after the first run and lets it
// own every further attempt. Finished runs, suites, modules and the session
// are handed to the writer.
package session
