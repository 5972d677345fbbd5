// Package retry implements the retry policies that decide, per test, whether
// to execute it again and what its final status is.
//
// The set of policies is closed:
//   - AttemptToFix: tests flagged by test management as being fixed
//   - EarlyFlakeDetection: tests missing from the known-tests catalog
//   - AutoTestRetries: any failing test, bounded by a session-wide budget
//
// A session holds an ordered list of policies. The first policy whose
// ShouldApply returns true owns the test's retries for its whole lifetime
// (see Select).
package retry
