package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	testopt "github.com/ethereum-optimism/infra/op-testopt"
	"github.com/ethereum-optimism/infra/op-testopt/exitcodes"
	"github.com/ethereum-optimism/infra/op-testopt/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-testopt"
	app.Usage = "Test optimization for Go test suites"
	app.Description = "op-testopt runs go tests with flaky test retries, early flake detection and test management"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = exitErrHandler

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func exitErrHandler(c *cli.Context, err error) {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		// Use the exit code from the ExitCoder
		cli.HandleExitCoder(exitErr)
	} else if err != nil {
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}
}

// exitCode maps the error taxonomy to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case testopt.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case testopt.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		// For other unspecified errors, default to exit code 1
		return exitcodes.TestFailure
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := testopt.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, testopt.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc, err := testopt.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, testopt.NewRuntimeError(fmt.Errorf("failed to create testopt: %w", err))
	}

	return svc, nil
}
