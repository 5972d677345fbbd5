package types

// Tag and metric names attached to tree nodes.
const (
	TagComponent            = "component"
	TagTestCommand          = "test.command"
	TagTestFramework        = "test.framework"
	TagTestFrameworkVersion = "test.framework_version"
	TagEnv                  = "env"
	TagTestStatus           = "test.status"

	TagErrorStack   = "error.stack"
	TagErrorType    = "error.type"
	TagErrorMessage = "error.message"

	TagSkipReason   = "test.skip_reason"
	TagSkippedByITR = "test.skipped_by_itr"

	TagIsNew       = "test.is_new"
	TagIsRetry     = "test.is_retry"
	TagRetryReason = "test.retry_reason"

	TagIsQuarantined      = "test.test_management.is_quarantined"
	TagIsDisabled         = "test.test_management.is_test_disabled"
	TagIsAttemptToFix     = "test.test_management.is_attempt_to_fix"
	TagAttemptToFixPassed = "test.test_management.attempt_to_fix_passed"

	TagEarlyFlakeEnabled     = "test.early_flake.enabled"
	TagEarlyFlakeAbortReason = "test.early_flake.abort_reason"
	TagTestManagementEnabled = "test.test_management.enabled"
	TagITRCorrelationID      = "itr_correlation_id"
	TagTestsSkippingEnabled  = "test.itr.tests_skipping.enabled"
	TagTestsSkippingType     = "test.itr.tests_skipping.type"
	TagTestsSkippingCount    = "test.itr.tests_skipping.count"

	TagSourceFile     = "test.source.file"
	MetricSourceStart = "test.source.start"
)
