package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testopt/backend"
	"github.com/ethereum-optimism/infra/op-testopt/git"
	"github.com/ethereum-optimism/infra/op-testopt/types"
)

const (
	settingsPath       = "/api/v2/libraries/tests/services/setting"
	knownTestsPath     = "/api/v2/ci/libraries/tests"
	testManagementPath = "/api/v2/test/libraries/test-management/tests"
	skippablePath      = "/api/v2/ci/tests/skippable"
)

// ClientConfig identifies the session to the backend.
type ClientConfig struct {
	Service        string
	Env            string
	GitTags        map[string]string
	Configurations map[string]string
}

// APIClient is the Catalog backed by the remote backend API.
type APIClient struct {
	cfg       ClientConfig
	connector *backend.Connector
	log       log.Logger
}

var _ Catalog = (*APIClient)(nil)

func NewAPIClient(cfg ClientConfig, connector *backend.Connector, log log.Logger) *APIClient {
	return &APIClient{cfg: cfg, connector: connector, log: log}
}

type request struct {
	Data requestData `json:"data"`
}

type requestData struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

func newRequest(typ string, attrs map[string]any) request {
	return request{Data: requestData{ID: uuid.New().String(), Type: typ, Attributes: attrs}}
}

type attributesResponse struct {
	Data struct {
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
}

func (c *APIClient) post(ctx context.Context, path string, req request) (json.RawMessage, error) {
	var resp attributesResponse
	if err := c.connector.PostJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.Attributes) == 0 {
		return nil, fmt.Errorf("response from %s has no attributes", path)
	}
	return resp.Data.Attributes, nil
}

func (c *APIClient) Settings(ctx context.Context) Settings {
	req := newRequest("ci_app_test_service_libraries_settings", map[string]any{
		"test_level":     "test",
		"service":        c.cfg.Service,
		"env":            c.cfg.Env,
		"repository_url": c.cfg.GitTags[git.TagRepositoryURL],
		"sha":            c.cfg.GitTags[git.TagCommitSHA],
		"branch":         c.cfg.GitTags[git.TagBranch],
		"configurations": c.cfg.Configurations,
	})
	attrs, err := c.post(ctx, settingsPath, req)
	if err != nil {
		c.log.Warn("Error getting settings from API", "path", settingsPath, "err", err)
		return DefaultSettings()
	}
	settings, err := ParseSettings(attrs)
	if err != nil {
		c.log.Warn("Error parsing settings", "err", err)
		return DefaultSettings()
	}
	return settings
}

func (c *APIClient) KnownTests(ctx context.Context) map[types.TestRef]struct{} {
	req := newRequest("ci_app_libraries_tests_request", map[string]any{
		"service":        c.cfg.Service,
		"env":            c.cfg.Env,
		"repository_url": c.cfg.GitTags[git.TagRepositoryURL],
		"configurations": c.cfg.Configurations,
	})
	attrs, err := c.post(ctx, knownTestsPath, req)
	if err != nil {
		c.log.Warn("Error getting known tests from API", "path", knownTestsPath, "err", err)
		return map[types.TestRef]struct{}{}
	}
	known, err := parseKnownTests(attrs)
	if err != nil {
		c.log.Warn("Error parsing known tests", "err", err)
		return map[types.TestRef]struct{}{}
	}
	return known
}

func (c *APIClient) TestManagement(ctx context.Context) map[types.TestRef]TestProperties {
	req := newRequest("ci_app_libraries_tests_request", map[string]any{
		"repository_url": c.cfg.GitTags[git.TagRepositoryURL],
		"commit_message": c.cfg.GitTags[git.TagCommitMessage],
		"sha":            c.cfg.GitTags[git.TagCommitSHA],
	})
	attrs, err := c.post(ctx, testManagementPath, req)
	if err != nil {
		c.log.Warn("Error getting test management data from API", "path", testManagementPath, "err", err)
		return map[types.TestRef]TestProperties{}
	}
	props, err := parseTestManagement(attrs)
	if err != nil {
		c.log.Warn("Error parsing test management data", "err", err)
		return map[types.TestRef]TestProperties{}
	}
	return props
}

type skippableResponse struct {
	Meta struct {
		CorrelationID string `json:"correlation_id"`
	} `json:"meta"`
	Data []struct {
		Type       string `json:"type"`
		Attributes struct {
			Module string `json:"module"`
			Suite  string `json:"suite"`
			Name   string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *APIClient) SkippableTests(ctx context.Context) SkippableItems {
	req := newRequest("test_params", map[string]any{
		"test_level":     "test",
		"service":        c.cfg.Service,
		"env":            c.cfg.Env,
		"repository_url": c.cfg.GitTags[git.TagRepositoryURL],
		"sha":            c.cfg.GitTags[git.TagCommitSHA],
		"configurations": c.cfg.Configurations,
	})
	var resp skippableResponse
	if err := c.connector.PostJSON(ctx, skippablePath, req, &resp); err != nil {
		c.log.Warn("Error getting skippable tests from API", "path", skippablePath, "err", err)
		return SkippableItems{}
	}

	items := SkippableItems{
		Tests:         make(map[types.TestRef]struct{}),
		Suites:        make(map[types.SuiteRef]struct{}),
		CorrelationID: resp.Meta.CorrelationID,
	}
	for _, d := range resp.Data {
		module := d.Attributes.Module
		if module == "" {
			module = "."
		}
		switch d.Type {
		case "test":
			items.Tests[types.NewTestRef(module, d.Attributes.Suite, d.Attributes.Name)] = struct{}{}
		case "suite":
			items.Suites[types.NewSuiteRef(module, d.Attributes.Suite)] = struct{}{}
		}
	}
	return items
}

// parseKnownTests decodes {"tests": {module: {suite: [names]}}}.
func parseKnownTests(raw json.RawMessage) (map[types.TestRef]struct{}, error) {
	var attrs struct {
		Tests map[string]map[string][]string `json:"tests"`
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return knownTestsFromTree(attrs.Tests), nil
}

func knownTestsFromTree(tree map[string]map[string][]string) map[types.TestRef]struct{} {
	known := make(map[types.TestRef]struct{})
	for module, suites := range tree {
		for suite, tests := range suites {
			for _, name := range tests {
				known[types.NewTestRef(module, suite, name)] = struct{}{}
			}
		}
	}
	return known
}

type testManagementTree map[string]struct {
	Suites map[string]struct {
		Tests map[string]struct {
			Properties TestProperties `json:"properties" yaml:"properties"`
		} `json:"tests" yaml:"tests"`
	} `json:"suites" yaml:"suites"`
}

// parseTestManagement decodes {"modules": {module: {"suites": {suite: {"tests": {name: {"properties": {...}}}}}}}}.
func parseTestManagement(raw json.RawMessage) (map[types.TestRef]TestProperties, error) {
	var attrs struct {
		Modules testManagementTree `json:"modules"`
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, err
	}
	return attrs.Modules.properties(), nil
}

func (t testManagementTree) properties() map[types.TestRef]TestProperties {
	props := make(map[types.TestRef]TestProperties)
	for module, m := range t {
		for suite, s := range m.Suites {
			for name, test := range s.Tests {
				props[types.NewTestRef(module, suite, name)] = test.Properties
			}
		}
	}
	return props
}
