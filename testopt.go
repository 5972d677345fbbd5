// Package testopt runs a Go module's tests under test optimization: tests are
// reported to the backend as a result tree, flaky and new tests are retried,
// and quarantined or disabled tests no longer break the build.
package testopt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-testopt/backend"
	"github.com/ethereum-optimism/infra/op-testopt/catalog"
	"github.com/ethereum-optimism/infra/op-testopt/git"
	"github.com/ethereum-optimism/infra/op-testopt/gotest"
	"github.com/ethereum-optimism/infra/op-testopt/platform"
	"github.com/ethereum-optimism/infra/op-testopt/service"
	"github.com/ethereum-optimism/infra/op-testopt/session"
	"github.com/ethereum-optimism/infra/op-testopt/types"
	"github.com/ethereum-optimism/infra/op-testopt/writer"
)

const (
	TestFramework = "gotest"
	SessionName   = "go test"
)

// testopt implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &testopt{}

// testopt runs one test session and exits.
type testopt struct {
	config  *Config
	version string
	out     io.Writer

	cases        []session.TestCase
	manager      *session.Manager
	orchestrator *session.Orchestrator
	reporter     *ConsoleReporter
	formatter    ResultFormatter
	service      *service.Service

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New discovers the tests and wires the session. Collaborators that cannot
// be reached degrade to their no-op variants; only configuration and
// discovery errors are returned.
func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*testopt, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	writer.LibraryVersion = version

	config.Log.Debug("Creating testopt with config",
		"testDir", config.TestDir,
		"packages", config.Packages,
		"agentless", config.Agentless,
		"catalogFile", config.CatalogFile)

	gitTags := git.Tags(ctx, config.TestDir, config.Log)
	platformTags := platform.Tags()
	if config.Service == "" {
		config.Service = git.ServiceNameFromRepoURL(gitTags[git.TagRepositoryURL])
	}

	tests, err := gotest.Discover(config.TestDir, config.Packages, config.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tests: %w", err)
	}
	executor, err := gotest.NewExecutor(gotest.ExecutorConfig{
		TestDir:  config.TestDir,
		GoBinary: config.GoBinary,
		Timeout:  config.Timeout,
		Log:      config.Log,
	}, tests)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	cat, sink, err := connect(ctx, config, catalog.ClientConfig{
		Service:        config.Service,
		Env:            config.Env,
		GitTags:        gitTags,
		Configurations: platformTags,
	})
	if err != nil {
		return nil, err
	}
	w := writer.New(sink, config.Log, writer.WithFlushInterval(config.FlushInterval))

	sess := types.NewTestSession(SessionName)
	sess.TestCommand = fmt.Sprintf("%s test %s", config.GoBinary, strings.Join(config.Packages, " "))
	sess.TestFramework = TestFramework
	sess.TestFrameworkVersion = runtime.Version()

	manager := session.NewManager(session.ManagerConfig{
		Service:              config.Service,
		Env:                  config.Env,
		ATREnabled:           config.ATREnabled,
		ATRMaxAttempts:       config.ATRMaxAttempts,
		ATRSessionBudget:     config.ATRSessionBudget,
		EFDMaxAttempts:       config.EFDMaxAttempts,
		AttemptToFixAttempts: config.AttemptToFixAttempts,
		GitTags:              gitTags,
		PlatformTags:         platformTags,
	}, sess, cat, w, config.Log)

	reporter := NewConsoleReporter(os.Stdout, config.ShowProgress)
	config.Log.Info("testopt.New: created session", "tests", len(tests), "service", config.Service)

	return &testopt{
		config:           config,
		version:          version,
		out:              os.Stdout,
		cases:            gotest.Cases(tests),
		manager:          manager,
		orchestrator:     session.NewOrchestrator(manager, executor, reporter, config.Log),
		reporter:         reporter,
		formatter:        NewConsoleResultFormatter(config.Log, os.Stdout),
		service:          service.New(config.Metrics),
		shutdownCallback: shutdownCallback,
	}, nil
}

// connect picks the catalog and event sink. A catalog file replaces the
// backend catalog; an events file is written in addition to the backend.
func connect(ctx context.Context, config *Config, clientCfg catalog.ClientConfig) (catalog.Catalog, writer.Sink, error) {
	var cat catalog.Catalog = catalog.Noop{}
	var sinks writer.MultiSink

	var setup backend.Setup
	switch {
	case config.Agentless:
		agentless, err := backend.NewAgentlessSetup(config.Site, config.APIKey, config.Log)
		if err != nil {
			return nil, nil, err
		}
		setup = agentless
	case config.AgentURL != "":
		evp, err := backend.DetectEVPProxySetup(ctx, config.AgentURL, config.Log)
		if err != nil {
			config.Log.Warn("Agent unavailable, events will not be sent to the backend", "err", err)
		} else {
			setup = evp
		}
	}
	if setup != nil {
		cat = catalog.NewAPIClient(clientCfg, setup.ConnectorFor(backend.SubdomainAPI), config.Log)
		sinks = append(sinks, writer.NewHTTPSink(setup.ConnectorFor(backend.SubdomainTestCycle)))
	}

	if config.CatalogFile != "" {
		cat = catalog.NewFileCatalog(config.CatalogFile, config.Log)
	}
	if config.EventsFile != "" {
		sinks = append(sinks, writer.NewFileSink(config.EventsFile))
	}

	switch len(sinks) {
	case 0:
		return cat, writer.Discard{}, nil
	case 1:
		return cat, sinks[0], nil
	default:
		return cat, sinks, nil
	}
}

// Start runs the session once.
// Start implements the cliapp.Lifecycle interface.
func (t *testopt) Start(ctx context.Context) (err error) {
	// A broken retry policy panics; report it as a runtime error (exit code 2)
	defer func() {
		if r := recover(); r != nil {
			t.config.Log.Error("Runtime error occurred", "error", r)
			t.manager.Finish()
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
	}()

	t.running.Store(true)
	if err := t.service.Start(ctx); err != nil {
		t.config.Log.Warn("Failed to start service", "err", err)
	}

	if err := t.manager.ResolveConfig(ctx); err != nil {
		return NewRuntimeError(err)
	}
	t.manager.Start()
	t.orchestrator.Collect(t.cases)

	runErr := t.orchestrator.RunAll(ctx, t.cases)
	status := t.orchestrator.FinishSession()
	if runErr != nil {
		return NewRuntimeError(fmt.Errorf("test run interrupted: %w", runErr))
	}

	if err := t.formatter.FormatResults(t.manager.Session()); err != nil {
		t.config.Log.Warn("Failed to print results", "err", err)
	}
	summary := t.reporter.Summary()
	fmt.Fprintln(t.out, summary)
	t.config.Log.Info("Test session completed", "status", status, "summary", summary)

	if t.orchestrator.Failed() {
		return NewTestFailureError(summary)
	}

	go func() {
		t.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (t *testopt) Stop(ctx context.Context) error {
	t.config.Log.Info("Stopping op-testopt")
	if !t.running.Load() {
		return nil
	}
	t.running.Store(false)
	t.service.Shutdown(ctx)
	t.config.Log.Info("op-testopt stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (t *testopt) Stopped() bool {
	return !t.running.Load()
}
