package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testopt/types"
)

const catalogYAML = `
settings:
  early_flake_detection:
    enabled: true
    faulty_session_threshold: 40
  auto_test_retries:
    enabled: true
  test_management:
    enabled: true
  known_tests_enabled: true
known_tests:
  github.com/acme/pkg:
    foo_test.go: [TestA, TestB]
test_management:
  github.com/acme/pkg:
    suites:
      foo_test.go:
        tests:
          TestQ:
            properties:
              quarantined: true
skippable:
  correlation_id: corr-9
  tests:
    - github.com/acme/pkg/foo_test.go::TestA
  suites:
    - github.com/acme/pkg/bar_test.go
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileCatalog(t *testing.T) {
	c := NewFileCatalog(writeCatalog(t, catalogYAML), log.NewLogger(log.DiscardHandler()))
	ctx := context.Background()

	settings := c.Settings(ctx)
	assert.True(t, settings.EarlyFlakeDetection.Enabled)
	assert.Equal(t, 40, settings.EarlyFlakeDetection.FaultySessionThreshold)
	assert.Equal(t, 10, settings.EarlyFlakeDetection.SlowTestRetries.FiveSeconds, "unset values keep defaults")
	assert.True(t, settings.AutoTestRetries.Enabled)
	assert.True(t, settings.TestManagement.Enabled)
	assert.Equal(t, DefaultAttemptToFixRetries, settings.TestManagement.AttemptToFixRetries)
	assert.True(t, settings.KnownTestsEnabled)

	known := c.KnownTests(ctx)
	assert.Len(t, known, 2)
	assert.Contains(t, known, types.NewTestRef("github.com/acme/pkg", "foo_test.go", "TestA"))

	props := c.TestManagement(ctx)
	assert.True(t, props[types.NewTestRef("github.com/acme/pkg", "foo_test.go", "TestQ")].Quarantined)

	skippable := c.SkippableTests(ctx)
	assert.Equal(t, "corr-9", skippable.CorrelationID)
	assert.True(t, skippable.Contains(types.NewTestRef("github.com/acme/pkg", "foo_test.go", "TestA")))
	assert.True(t, skippable.Contains(types.NewTestRef("github.com/acme/pkg", "bar_test.go", "TestZ")))
	assert.False(t, skippable.Contains(types.NewTestRef("github.com/acme/pkg", "foo_test.go", "TestB")))
}

func TestFileCatalogMissingFile(t *testing.T) {
	c := NewFileCatalog(filepath.Join(t.TempDir(), "missing.yaml"), log.NewLogger(log.DiscardHandler()))
	assert.Equal(t, DefaultSettings(), c.Settings(context.Background()))
	assert.Empty(t, c.KnownTests(context.Background()))
}

func TestFileCatalogMalformed(t *testing.T) {
	c := NewFileCatalog(writeCatalog(t, "settings: [unterminated"), log.NewLogger(log.DiscardHandler()))
	assert.Equal(t, DefaultSettings(), c.Settings(context.Background()))
}

func TestNoop(t *testing.T) {
	var c Catalog = Noop{}
	ctx := context.Background()
	assert.Equal(t, DefaultSettings(), c.Settings(ctx))
	assert.Empty(t, c.KnownTests(ctx))
	assert.Empty(t, c.TestManagement(ctx))
	assert.Equal(t, 0, c.SkippableTests(ctx).Len())
}
