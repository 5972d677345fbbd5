package gotest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"

	"github.com/ethereum-optimism/infra/op-testopt/session"
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

var _ session.Executor = (*Executor)(nil)

// CmdBuilder creates the command for one execution and a cleanup func.
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	TestDir  string
	GoBinary string
	Timeout  time.Duration
	Log      log.Logger
	// CmdBuilder defaults to running the command in TestDir with the trace
	// context propagated through the environment.
	CmdBuilder CmdBuilder
}

// Executor runs a single test function with `go test -json`.
type Executor struct {
	testDir    string
	goBinary   string
	timeout    time.Duration
	log        log.Logger
	cmdBuilder CmdBuilder
	packages   map[types.ModuleRef]string
}

// NewExecutor creates an executor for the discovered tests. Only tests whose
// module was discovered can be executed.
func NewExecutor(cfg ExecutorConfig, tests []DiscoveredTest) (*Executor, error) {
	if cfg.TestDir == "" {
		return nil, fmt.Errorf("testDir cannot be empty")
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	e := &Executor{
		testDir:    cfg.TestDir,
		goBinary:   cfg.GoBinary,
		timeout:    cfg.Timeout,
		log:        cfg.Log,
		cmdBuilder: cfg.CmdBuilder,
		packages:   make(map[types.ModuleRef]string),
	}
	if e.cmdBuilder == nil {
		e.cmdBuilder = e.testCommandContext
	}
	for _, t := range tests {
		e.packages[t.Ref.Suite.Module] = t.Package
	}
	return e, nil
}

// Execute runs the test once. Build failures fail the setup phase; the test's
// own result is reported as the call phase.
func (e *Executor) Execute(ctx context.Context, test *types.Test) (*session.Reports, error) {
	ref := test.Ref()
	pkg, ok := e.packages[ref.Suite.Module]
	if !ok {
		return nil, fmt.Errorf("unknown package for test %s", ref)
	}

	args := e.buildTestArgs(pkg, test.Name())
	cmd, cleanup := e.cmdBuilder(ctx, e.goBinary, args...)
	defer cleanup()

	stdout := newTailBuffer(defaultStdoutTailBytes)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	e.log.Debug("Running test command", "dir", cmd.Dir, "test", ref.String(), "command", cmd.String())

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if stdout.Truncated() {
		e.log.Debug("Test output truncated", "test", ref.String())
	}
	outcome := parseOutput(bytes.NewReader(stdout.Bytes()), test.Name())
	return e.reports(ref, outcome, runErr, stripansi.Strip(stderr.String()), duration), nil
}

func (e *Executor) reports(ref types.TestRef, outcome *testOutcome, runErr error, stderr string, duration time.Duration) *session.Reports {
	setup := &session.Report{Test: ref, Phase: session.PhaseSetup, Outcome: session.OutcomePassed}
	teardown := &session.Report{Test: ref, Phase: session.PhaseTeardown, Outcome: session.OutcomePassed}
	reports := &session.Reports{Setup: setup, Teardown: teardown}

	exitCode := 0
	if runErr != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	if outcome.buildFailed || exitCode == 2 || (exitCode != 0 && outcome.action == "") {
		setup.Outcome = session.OutcomeFailed
		message := "test compilation failed"
		errType := "build"
		if exitCode == -1 {
			message = fmt.Sprintf("failed to run test: %v", runErr)
			errType = "exec"
		}
		details := strings.TrimSpace(strings.Join(append(outcome.buildOutput, stderr), "\n"))
		setup.Longrepr = strings.TrimSpace(message + "\n" + details)
		setup.Err = &session.ErrorInfo{Type: errType, Message: message, Stack: details}
		return reports
	}

	call := &session.Report{Test: ref, Phase: session.PhaseCall, Duration: outcome.elapsed}
	if call.Duration == 0 {
		call.Duration = duration
	}
	reports.Call = call

	switch outcome.action {
	case ActionPass:
		call.Outcome = session.OutcomePassed
	case ActionSkip:
		call.Outcome = session.OutcomeSkipped
		call.SkipReason = skipReason(outcome.output)
		call.Longrepr = call.SkipReason
	case ActionFail:
		lines := testLines(outcome.output)
		call.Outcome = session.OutcomeFailed
		call.Err = &session.ErrorInfo{
			Type:    failureType(lines),
			Message: failureMessage(lines),
			Stack:   strings.Join(lines, "\n"),
		}
		call.Longrepr = call.Err.Stack
	default:
		// `go test -run` matched nothing, so the function is not a runnable test.
		call.Outcome = session.OutcomeSkipped
		call.SkipReason = "no test to run"
		call.Longrepr = call.SkipReason
	}
	return reports
}

func (e *Executor) buildTestArgs(pkg, name string) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}

	if e.timeout > 0 {
		args = append(args, TimeoutFlag, e.timeout.String())
	}

	return append(args, pkg, RunFlag, fmt.Sprintf("^%s$", name))
}

func (e *Executor) testCommandContext(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Dir = e.testDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, os.Environ())
	return cmd, func() {}
}
