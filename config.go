package testopt

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testopt/flags"
)

// Config holds the application configuration
type Config struct {
	TestDir       string
	Packages      []string
	GoBinary      string
	Timeout       time.Duration // Timeout of a single test execution
	Service       string        // Empty means derive it from the repository URL
	Env           string
	Site          string
	APIKey        string
	Agentless     bool
	AgentURL      string
	CatalogFile   string // Replaces the backend catalog when set
	EventsFile    string
	FlushInterval time.Duration

	ATREnabled           bool
	ATRMaxAttempts       int
	ATRSessionBudget     int
	EFDMaxAttempts       int
	AttemptToFixAttempts int

	ShowProgress bool
	Metrics      opmetrics.CLIConfig
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}
	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}

	if ctx.Bool(flags.Agentless.Name) && ctx.String(flags.APIKey.Name) == "" {
		return nil, fmt.Errorf("flag %s is required in agentless mode", flags.APIKey.Name)
	}

	catalogFile := ctx.String(flags.CatalogFile.Name)
	if catalogFile != "" {
		if catalogFile, err = filepath.Abs(catalogFile); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for catalog file: %w", err)
		}
	}

	for _, name := range []string{flags.ATRMaxAttempts.Name, flags.EFDMaxAttempts.Name, flags.ATRSessionBudget.Name, flags.AttemptToFixAttempts.Name} {
		if ctx.Int(name) < 0 {
			return nil, fmt.Errorf("flag %s must not be negative", name)
		}
	}

	return &Config{
		TestDir:              absTestDir,
		Packages:             ctx.StringSlice(flags.Packages.Name),
		GoBinary:             ctx.String(flags.GoBinary.Name),
		Timeout:              ctx.Duration(flags.Timeout.Name),
		Service:              ctx.String(flags.Service.Name),
		Env:                  ctx.String(flags.Env.Name),
		Site:                 ctx.String(flags.Site.Name),
		APIKey:               ctx.String(flags.APIKey.Name),
		Agentless:            ctx.Bool(flags.Agentless.Name),
		AgentURL:             ctx.String(flags.AgentURL.Name),
		CatalogFile:          catalogFile,
		EventsFile:           ctx.String(flags.EventsFile.Name),
		FlushInterval:        ctx.Duration(flags.FlushInterval.Name),
		ATREnabled:           ctx.Bool(flags.ATREnabled.Name),
		ATRMaxAttempts:       ctx.Int(flags.ATRMaxAttempts.Name),
		ATRSessionBudget:     ctx.Int(flags.ATRSessionBudget.Name),
		EFDMaxAttempts:       ctx.Int(flags.EFDMaxAttempts.Name),
		AttemptToFixAttempts: ctx.Int(flags.AttemptToFixAttempts.Name),
		ShowProgress:         ctx.Bool(flags.ShowProgress.Name),
		Metrics:              opmetrics.ReadCLIConfig(ctx),
		Log:                  log,
	}, nil
}
