package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testopt/backend"
	"github.com/ethereum-optimism/infra/op-testopt/git"
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := log.NewLogger(log.DiscardHandler())
	cfg := ClientConfig{
		Service: "svc",
		Env:     "ci",
		GitTags: map[string]string{
			git.TagRepositoryURL: "https://github.com/acme/widgets.git",
			git.TagCommitSHA:     "abc123",
			git.TagBranch:        "main",
		},
		Configurations: map[string]string{"os.platform": "linux"},
	}
	return NewAPIClient(cfg, backend.NewConnector(srv.URL, nil, false, backend.WithLogger(logger)), logger)
}

func TestAPIClientSettings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, settingsPath, r.URL.Path)

		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ci_app_test_service_libraries_settings", req.Data.Type)
		assert.NotEmpty(t, req.Data.ID)
		assert.Equal(t, "svc", req.Data.Attributes["service"])
		assert.Equal(t, "abc123", req.Data.Attributes["sha"])

		w.Write([]byte(`{"data": {"attributes": {"flaky_test_retries_enabled": true, "known_tests_enabled": true}}}`)) //nolint:errcheck
	})

	settings := client.Settings(context.Background())
	assert.True(t, settings.AutoTestRetries.Enabled)
	assert.True(t, settings.KnownTestsEnabled)
	assert.False(t, settings.EarlyFlakeDetection.Enabled)
}

func TestAPIClientDegradesOnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	ctx := context.Background()
	assert.Equal(t, DefaultSettings(), client.Settings(ctx))
	assert.Empty(t, client.KnownTests(ctx))
	assert.Empty(t, client.TestManagement(ctx))
	assert.Equal(t, 0, client.SkippableTests(ctx).Len())
}

func TestAPIClientDegradesOnMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"attributes": {"tests": ["not", "a", "map"]}}}`)) //nolint:errcheck
	})
	assert.Empty(t, client.KnownTests(context.Background()))
}

func TestAPIClientKnownTests(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, knownTestsPath, r.URL.Path)
		w.Write([]byte(`{"data": {"attributes": {"tests": {
			"mod": {"a_test.go": ["TestA", "TestB"], "b_test.go": ["TestC"]}
		}}}}`)) //nolint:errcheck
	})

	known := client.KnownTests(context.Background())
	assert.Len(t, known, 3)
	assert.Contains(t, known, types.NewTestRef("mod", "a_test.go", "TestB"))
	assert.Contains(t, known, types.NewTestRef("mod", "b_test.go", "TestC"))
}

func TestAPIClientTestManagement(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testManagementPath, r.URL.Path)
		w.Write([]byte(`{"data": {"attributes": {"modules": {
			"mod": {"suites": {"a_test.go": {"tests": {
				"TestQ": {"properties": {"quarantined": true}},
				"TestD": {"properties": {"disabled": true, "attempt_to_fix": true}}
			}}}}
		}}}}`)) //nolint:errcheck
	})

	props := client.TestManagement(context.Background())
	assert.Equal(t, TestProperties{Quarantined: true}, props[types.NewTestRef("mod", "a_test.go", "TestQ")])
	assert.Equal(t, TestProperties{Disabled: true, AttemptToFix: true}, props[types.NewTestRef("mod", "a_test.go", "TestD")])
}

func TestAPIClientSkippableTests(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, skippablePath, r.URL.Path)
		w.Write([]byte(`{
			"meta": {"correlation_id": "corr-1"},
			"data": [
				{"type": "test", "attributes": {"module": "mod", "suite": "a_test.go", "name": "TestA"}},
				{"type": "suite", "attributes": {"module": "mod", "suite": "b_test.go"}}
			]
		}`)) //nolint:errcheck
	})

	items := client.SkippableTests(context.Background())
	require.Equal(t, "corr-1", items.CorrelationID)
	assert.True(t, items.Contains(types.NewTestRef("mod", "a_test.go", "TestA")))
	assert.True(t, items.Contains(types.NewTestRef("mod", "b_test.go", "TestAnything")))
	assert.False(t, items.Contains(types.NewTestRef("mod", "a_test.go", "TestB")))
}
