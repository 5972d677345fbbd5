package gotest

import "time"

const (
	// DefaultTestTimeout is passed to `go test -timeout` when none is configured
	DefaultTestTimeout = 10 * time.Minute

	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// Directory patterns
	AllPackagesPattern = "./..."
	CurrentDirPattern  = "."

	// Actions of `go test -json` events
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)
