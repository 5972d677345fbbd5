package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testopt/catalog"
	"github.com/ethereum-optimism/infra/op-testopt/retry"
	"github.com/ethereum-optimism/infra/op-testopt/types"
	"github.com/ethereum-optimism/infra/op-testopt/writer"
)

// ManagerConfig is resolved once at startup and not modified afterwards.
type ManagerConfig struct {
	Service string
	Env     string

	// ATREnabled is the local switch for auto test retries. Both it and the
	// backend setting must be on.
	ATREnabled       bool
	ATRMaxAttempts   int
	ATRSessionBudget int
	EFDMaxAttempts   int
	// AttemptToFixAttempts overrides the backend's attempt count when positive.
	AttemptToFixAttempts int

	GitTags      map[string]string
	PlatformTags map[string]string
}

// DiscoveryHooks annotate newly created nodes with runner specific data.
// Any of them may be nil. A hook that panics is logged and the node is kept.
type DiscoveryHooks struct {
	OnModule func(*types.TestModule)
	OnSuite  func(*types.TestSuite)
	OnTest   func(*types.Test)
}

// Manager owns the session's configuration: backend settings, catalogs and
// the installed retry policies.
type Manager struct {
	cfg     ManagerConfig
	catalog catalog.Catalog
	writer  *writer.Writer
	session *types.TestSession
	log     log.Logger

	settings       catalog.Settings
	knownTests     map[types.TestRef]struct{}
	testProperties map[types.TestRef]catalog.TestProperties
	skippable      catalog.SkippableItems
	collected      map[types.TestRef]struct{}
	policies       []retry.Policy
}

func NewManager(cfg ManagerConfig, session *types.TestSession, cat catalog.Catalog, w *writer.Writer, log log.Logger) *Manager {
	if cfg.Service == "" {
		cfg.Service = types.DefaultServiceName
	}
	session.SetService(cfg.Service)

	return &Manager{
		cfg:            cfg,
		catalog:        cat,
		writer:         w,
		session:        session,
		log:            log,
		settings:       catalog.DefaultSettings(),
		knownTests:     map[types.TestRef]struct{}{},
		testProperties: map[types.TestRef]catalog.TestProperties{},
		collected:      map[types.TestRef]struct{}{},
	}
}

func (m *Manager) Session() *types.TestSession { return m.session }

func (m *Manager) Writer() *writer.Writer { return m.writer }

func (m *Manager) Settings() catalog.Settings { return m.settings }

// Policies returns the installed policies in priority order.
func (m *Manager) Policies() []retry.Policy { return m.policies }

// ResolveConfig fetches the backend settings and then, in parallel, every
// catalog the settings enable. Catalog failures degrade to empty defaults.
func (m *Manager) ResolveConfig(ctx context.Context) error {
	m.settings = m.catalog.Settings(ctx)
	m.log.Info("Resolved test optimization settings",
		"efd", m.settings.EarlyFlakeDetection.Enabled,
		"atr", m.settings.AutoTestRetries.Enabled,
		"test_management", m.settings.TestManagement.Enabled,
		"known_tests", m.settings.KnownTestsEnabled,
		"skipping", m.settings.SkippingEnabled)

	g, gctx := errgroup.WithContext(ctx)
	if m.settings.KnownTestsEnabled {
		g.Go(func() error {
			m.knownTests = m.catalog.KnownTests(gctx)
			return gctx.Err()
		})
	}
	if m.settings.TestManagement.Enabled {
		g.Go(func() error {
			m.testProperties = m.catalog.TestManagement(gctx)
			return gctx.Err()
		})
	}
	if m.settings.SkippingEnabled {
		g.Go(func() error {
			m.skippable = m.catalog.SkippableTests(gctx)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to resolve session config: %w", err)
	}

	m.log.Debug("Resolved catalogs",
		"known_tests", len(m.knownTests),
		"test_properties", len(m.testProperties),
		"skippable", m.skippable.Len())

	m.addMetadata()
	return nil
}

func (m *Manager) addMetadata() {
	m.writer.AddMetadata(writer.ScopeAll, m.cfg.GitTags)
	m.writer.AddMetadata(writer.ScopeAll, m.cfg.PlatformTags)
	m.writer.AddMetadata(writer.ScopeAll, map[string]string{
		types.TagTestCommand:          m.session.TestCommand,
		types.TagTestFramework:        m.session.TestFramework,
		types.TagTestFrameworkVersion: m.session.TestFrameworkVersion,
		types.TagComponent:            m.session.TestFramework,
		types.TagEnv:                  m.cfg.Env,
	})
	if m.skippable.CorrelationID != "" {
		m.writer.AddMetadata(writer.ScopeTest, map[string]string{
			types.TagITRCorrelationID: m.skippable.CorrelationID,
		})
	}
}

// Discover returns the module, suite and test for ref, creating them if
// necessary. Hooks run only for newly created nodes.
func (m *Manager) Discover(ref types.TestRef, hooks DiscoveryHooks) (*types.TestModule, *types.TestSuite, *types.Test) {
	module, created := m.session.GetOrCreateModule(ref.Suite.Module.Name)
	if created {
		m.callHook("module", module.Name(), func() {
			if hooks.OnModule != nil {
				hooks.OnModule(module)
			}
		})
	}

	suite, created := module.GetOrCreateSuite(ref.Suite.Name)
	if created {
		m.callHook("suite", suite.Name(), func() {
			if hooks.OnSuite != nil {
				hooks.OnSuite(suite)
			}
		})
	}

	test, created := suite.GetOrCreateTest(ref.Name)
	if created {
		m.collected[ref] = struct{}{}
		_, known := m.knownTests[ref]
		props := m.testProperties[ref]
		attrs := types.TestAttributes{
			IsNew:          len(m.knownTests) > 0 && !known,
			IsQuarantined:  props.Quarantined,
			IsDisabled:     props.Disabled,
			IsAttemptToFix: props.AttemptToFix,
		}
		test.SetAttributes(attrs)
		setAttributeTags(test, attrs)

		m.callHook("test", ref.String(), func() {
			if hooks.OnTest != nil {
				hooks.OnTest(test)
			}
		})
	}

	return module, suite, test
}

func setAttributeTags(test *types.Test, attrs types.TestAttributes) {
	flags := map[string]bool{
		types.TagIsNew:          attrs.IsNew,
		types.TagIsQuarantined:  attrs.IsQuarantined,
		types.TagIsDisabled:     attrs.IsDisabled,
		types.TagIsAttemptToFix: attrs.IsAttemptToFix,
	}
	for tag, set := range flags {
		if set {
			test.SetTag(tag, "true")
		}
	}
}

func (m *Manager) callHook(kind, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Error during discovery", "kind", kind, "name", name, "err", r)
		}
	}()
	fn()
}

// IsFaultySession reports whether too many collected tests are new for early
// flake detection to be trusted. threshold is both a count of known tests and
// a percentage of new tests.
func IsFaultySession(known, newTests, threshold int) bool {
	total := known + newTests
	if total == 0 {
		return false
	}
	newPercentage := float64(newTests) / float64(total) * 100
	return known > threshold && newPercentage > float64(threshold)
}

// FinishCollection installs the retry policies. It must run after every test
// has been discovered and before any test executes.
func (m *Manager) FinishCollection() {
	m.policies = nil

	if m.settings.TestManagement.Enabled {
		attempts := m.settings.TestManagement.AttemptToFixRetries
		if m.cfg.AttemptToFixAttempts > 0 {
			attempts = m.cfg.AttemptToFixAttempts
		}
		m.policies = append(m.policies, retry.NewAttemptToFix(attempts))
		m.session.SetTag(types.TagTestManagementEnabled, "true")
	}

	if m.settings.EarlyFlakeDetection.Enabled {
		m.installEFD()
	}

	if m.settings.AutoTestRetries.Enabled && m.cfg.ATREnabled {
		var budget *retry.Budget
		if m.cfg.ATRSessionBudget > 0 {
			budget = retry.NewBudget(m.cfg.ATRSessionBudget)
		}
		m.policies = append(m.policies, retry.NewAutoTestRetries(m.cfg.ATRMaxAttempts, budget))
	}

	if m.settings.SkippingEnabled {
		m.session.SetTag(types.TagTestsSkippingEnabled, "true")
		m.session.SetTag(types.TagTestsSkippingType, "test")
	}

	names := make([]string, 0, len(m.policies))
	for _, p := range m.policies {
		names = append(names, p.Name())
	}
	m.log.Info("Installed retry policies", "policies", names, "collected", len(m.collected))
}

func (m *Manager) installEFD() {
	if len(m.knownTests) == 0 {
		m.log.Info("Not enabling Early Flake Detection: no known tests")
		return
	}

	newTests := 0
	for ref := range m.collected {
		if _, ok := m.knownTests[ref]; !ok {
			newTests++
		}
	}
	threshold := m.settings.EarlyFlakeDetection.FaultySessionThreshold
	if IsFaultySession(len(m.knownTests), newTests, threshold) {
		m.log.Info("Not enabling Early Flake Detection: too many new tests",
			"new", newTests, "known", len(m.knownTests), "threshold", threshold)
		m.session.SetTag(types.TagEarlyFlakeAbortReason, "faulty")
		return
	}

	m.policies = append(m.policies, retry.NewEarlyFlakeDetection(m.cfg.EFDMaxAttempts))
	m.session.SetTag(types.TagEarlyFlakeEnabled, "true")
}

// IsSkippable reports whether test impact analysis allows skipping the test.
func (m *Manager) IsSkippable(ref types.TestRef) bool {
	return m.settings.SkippingEnabled && m.skippable.Contains(ref)
}

func (m *Manager) CorrelationID() string { return m.skippable.CorrelationID }

// Start launches the writer's flush loop and starts the session clock.
func (m *Manager) Start() {
	m.session.Start()
	m.writer.Start()
}

// Finish flushes every queued event. It blocks until the writer is done.
func (m *Manager) Finish() {
	m.writer.Finish()
}

func (m *Manager) skippedCount(n int) {
	m.session.SetTag(types.TagTestsSkippingCount, strconv.Itoa(n))
}
