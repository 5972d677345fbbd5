package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTOPT"

var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Path to the Go module from which to discover tests",
	}
	Packages = &cli.StringSliceFlag{
		Name:    "packages",
		Value:   cli.NewStringSlice("./..."),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGES"),
		Usage:   "Package patterns to test, relative to the test directory (eg. './...', './pkg/foo')",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout of a single test execution. Set to 0 to use the go test default.",
	}
	Service = &cli.StringFlag{
		Name:    "service",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVICE"),
		Usage:   "Service name reported with every event. Defaults to the repository name.",
	}
	Env = &cli.StringFlag{
		Name:    "env",
		Value:   "none",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENV"),
		Usage:   "Environment name reported with every event",
	}
	Site = &cli.StringFlag{
		Name:    "site",
		Value:   "datadoghq.com",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SITE"),
		Usage:   "Backend site used in agentless mode",
	}
	APIKey = &cli.StringFlag{
		Name:    "api-key",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_KEY"),
		Usage:   "API key used in agentless mode",
	}
	Agentless = &cli.BoolFlag{
		Name:    "agentless",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "AGENTLESS"),
		Usage:   "Send events directly to the backend instead of through an agent",
	}
	AgentURL = &cli.StringFlag{
		Name:    "agent-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "AGENT_URL"),
		Usage:   "URL of the agent whose EVP proxy receives events (eg. 'http://localhost:8126')",
	}
	CatalogFile = &cli.StringFlag{
		Name:    "catalog-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CATALOG_FILE"),
		Usage:   "YAML file with settings and test catalogs, used instead of the backend",
	}
	EventsFile = &cli.StringFlag{
		Name:    "events-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EVENTS_FILE"),
		Usage:   "File to append event payloads to as JSON lines",
	}
	FlushInterval = &cli.DurationFlag{
		Name:    "flush-interval",
		Value:   60 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FLUSH_INTERVAL"),
		Usage:   "Interval between event flushes",
	}
	ATREnabled = &cli.BoolFlag{
		Name:    "atr-enabled",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ATR_ENABLED"),
		Usage:   "Allow auto test retries when the backend enables them",
	}
	ATRMaxAttempts = &cli.IntFlag{
		Name:    "atr-max-attempts",
		Value:   6,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ATR_MAX_ATTEMPTS"),
		Usage:   "Maximum executions of a failing test under auto test retries",
	}
	ATRSessionBudget = &cli.IntFlag{
		Name:    "atr-session-budget",
		Value:   1000,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ATR_SESSION_BUDGET"),
		Usage:   "Maximum auto test retries across the session. Set to 0 for no limit.",
	}
	EFDMaxAttempts = &cli.IntFlag{
		Name:    "efd-max-attempts",
		Value:   6,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EFD_MAX_ATTEMPTS"),
		Usage:   "Executions of a new test under early flake detection",
	}
	AttemptToFixAttempts = &cli.IntFlag{
		Name:    "attempt-to-fix-attempts",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ATTEMPT_TO_FIX_ATTEMPTS"),
		Usage:   "Executions of an attempt-to-fix test. Set to 0 to use the backend setting.",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Print a line for every test report while tests run",
	}
)

var requiredFlags = []cli.Flag{
	TestDir,
}

var optionalFlags = []cli.Flag{
	Packages,
	GoBinary,
	Timeout,
	Service,
	Env,
	Site,
	APIKey,
	Agentless,
	AgentURL,
	CatalogFile,
	EventsFile,
	FlushInterval,
	ATREnabled,
	ATRMaxAttempts,
	ATRSessionBudget,
	EFDMaxAttempts,
	AttemptToFixAttempts,
	ShowProgress,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
