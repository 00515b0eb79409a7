package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	cliverify "github.com/ethereum-optimism/infra/op-cliverify"
	"github.com/ethereum-optimism/infra/op-cliverify/flags"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

// otelEndpointEnv enables trace export when set
const otelEndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-cliverify"
	app.Usage = "Acceptance tests for SQL command-line interfaces"
	app.Description = "op-cliverify runs a suite of CLI invocations and checks their stdout and stderr"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	// Exit codes are decided in main from the error taxonomy
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func main() {
	app := newApp()

	ctx := context.Background()
	shutdown := func() {}
	if os.Getenv(otelEndpointEnv) != "" {
		var err error
		shutdown, err = otelconfig.ConfigureOpenTelemetry(
			otelconfig.WithServiceName(app.Name),
			otelconfig.WithServiceVersion(app.Version),
		)
		if err != nil {
			log.Crit("Failed to setup open telemetry", "message", err)
		}
	}

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err := app.RunContext(ctx, os.Args)
	shutdown()

	code := cliverify.ExitCode(err)
	if err != nil {
		log.Error("Application failed", "message", err, "exit_code", code)
	}
	os.Exit(code)
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := cliverify.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, cliverify.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	app, err := cliverify.New(cfg, Version, closeApp)
	if err != nil {
		return nil, cliverify.NewRuntimeError(fmt.Errorf("failed to create app: %w", err))
	}
	return app, nil
}
