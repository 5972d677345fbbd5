package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Backend endpoints and defaults.
const (
	SubdomainAPI       = "api"
	SubdomainTestCycle = "citestcycle-intake"
	DefaultSite        = "datadoghq.com"
	DefaultAgentURL    = "http://localhost:8126"
	evpProxyV4         = "/evp_proxy/v4/"
	evpProxyV2         = "/evp_proxy/v2/"
)

var ErrMissingAPIKey = errors.New("api key is required in agentless mode")

// Setup creates connectors for the backend subdomains.
type Setup interface {
	ConnectorFor(subdomain string) *Connector
}

// AgentlessSetup talks to the backend directly, authenticating with an API key.
type AgentlessSetup struct {
	Site   string
	APIKey string
	Log    log.Logger
}

func NewAgentlessSetup(site, apiKey string, logger log.Logger) (*AgentlessSetup, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if site == "" {
		site = DefaultSite
	}
	return &AgentlessSetup{Site: site, APIKey: apiKey, Log: logger}, nil
}

func (s *AgentlessSetup) ConnectorFor(subdomain string) *Connector {
	return NewConnector(
		fmt.Sprintf("https://%s.%s", subdomain, s.Site),
		map[string]string{headerAPIKey: s.APIKey},
		true,
		WithLogger(s.Log),
	)
}

// EVPProxySetup routes requests through the agent's EVP proxy.
type EVPProxySetup struct {
	URL     string
	UseGzip bool
	Log     log.Logger
}

func (s *EVPProxySetup) ConnectorFor(subdomain string) *Connector {
	return NewConnector(s.URL, map[string]string{headerEVPSubdomain: subdomain}, s.UseGzip, WithLogger(s.Log))
}

type agentInfo struct {
	Endpoints []string `json:"endpoints"`
}

// DetectEVPProxySetup asks the agent which EVP proxy version it supports.
// v4 accepts gzipped payloads, v2 does not.
func DetectEVPProxySetup(ctx context.Context, agentURL string, logger log.Logger) (*EVPProxySetup, error) {
	if agentURL == "" {
		agentURL = DefaultAgentURL
	}
	agentURL = strings.TrimRight(agentURL, "/")

	var info agentInfo
	if err := NewConnector(agentURL, nil, false, WithLogger(logger)).GetJSON(ctx, "/info", &info); err != nil {
		return nil, fmt.Errorf("error connecting to agent at %s: %w", agentURL, err)
	}

	switch {
	case slices.Contains(info.Endpoints, evpProxyV4):
		return &EVPProxySetup{URL: agentURL + "/evp_proxy/v4", UseGzip: true, Log: logger}, nil
	case slices.Contains(info.Endpoints, evpProxyV2):
		return &EVPProxySetup{URL: agentURL + "/evp_proxy/v2", UseGzip: false, Log: logger}, nil
	}
	return nil, fmt.Errorf("agent at %s does not support EVP proxy mode", agentURL)
}
