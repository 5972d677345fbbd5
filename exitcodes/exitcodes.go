// Package exitcodes defines the exit codes of op-testopt.
package exitcodes

// * Success (0): every test passed, or failed only while quarantined
// * TestFailure (1): at least one test is reported as failed
// * RuntimeErr (2): configuration errors, discovery errors or panics
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
