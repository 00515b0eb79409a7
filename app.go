package cliverify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-cliverify/exitcodes"
	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/logging"
	"github.com/ethereum-optimism/infra/op-cliverify/runner"
	"github.com/ethereum-optimism/infra/op-cliverify/service"
	"github.com/ethereum-optimism/infra/op-cliverify/suite"
)

// App implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*App)(nil)

// App runs a suite file once, or repeatedly in continuous mode.
// All runs share one process runner, so the concurrency limit holds across runs.
type App struct {
	config    *Config
	version   string
	runner    *runner.Runner
	suiteCtx  *invocation.SuiteContext
	scheduler RunScheduler
	formatter ResultFormatter
	service   *service.Service

	lastReport atomic.Pointer[Report]

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the application. shutdownCallback is invoked once a run-once suite passed.
func New(config *Config, version string, shutdownCallback func(error)) (*App, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Check(); err != nil {
		return nil, err
	}

	config.Log.Debug("Creating app with config",
		"suite", config.SuitePath,
		"backend", config.SQLBackend,
		"concurrency", config.ConcurrencyLimit,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	r, err := runner.NewRunner(runner.Config{
		ConcurrencyLimit: config.ConcurrencyLimit,
		DefaultTimeout:   config.DefaultTimeout,
		MaxCaptureBytes:  config.MaxCaptureBytes,
		Log:              config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create process runner: %w", err)
	}

	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}
	a := &App{
		config:           config,
		version:          version,
		runner:           r,
		suiteCtx:         invocation.NewSuiteContext(config.ArtifactRoot),
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log, os.Stdout),
		shutdownCallback: shutdownCallback,
	}
	a.scheduler.RegisterCallback(a.runSuite)

	svcCfg := service.Config{HealthzAddr: config.HealthzAddr}
	if config.Metrics.Enabled {
		svcCfg.MetricsAddr = service.MetricsAddr(config.Metrics.ListenAddr, config.Metrics.ListenPort)
	}
	a.service = service.New(svcCfg, config.Log, func() bool { return a.LastReport() != nil })
	return a, nil
}

// Start runs the suite and, in continuous mode, schedules later runs.
// Start implements the cliapp.Lifecycle interface.
func (a *App) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	if err := a.service.Start(); err != nil {
		return NewRuntimeError(err)
	}

	if err := a.scheduler.Start(ctx); err != nil {
		a.config.Log.Error("Suite run failed to complete", "error", err)
		return err
	}

	if !a.config.RunOnce {
		a.config.Log.Debug("op-cliverify started successfully")
		return nil
	}

	report := a.LastReport()
	if err := report.Err(); err != nil {
		a.config.Log.Warn("Run-once suite completed with failures", "status", report.Status)
		return err
	}
	a.config.Log.Info("Suite passed, exiting (run-once mode)")
	go a.shutdownCallback(nil)
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (a *App) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping op-cliverify")
	defer a.service.Shutdown(ctx)
	if err := a.scheduler.Stop(); err != nil {
		return err
	}
	return a.scheduler.WaitForShutdown(ctx)
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *App) Stopped() bool {
	return a.scheduler.Stopped()
}

// LastReport returns the report of the most recent completed run
func (a *App) LastReport() *Report {
	return a.lastReport.Load()
}

// runSuite performs one run. It only fails when the run could not happen;
// failing actions are recorded in the report.
func (a *App) runSuite(ctx context.Context) error {
	s, err := suite.Load(a.config.SuitePath)
	if err != nil {
		return NewRuntimeError(err)
	}

	runID := NewRunID()
	opts := []LibraryOption{
		WithProcessRunner(a.runner),
		WithSuiteContext(a.suiteCtx),
	}
	var artifacts *logging.ArtifactWriter
	if a.config.LogDir != "" {
		artifacts, err = logging.NewArtifactWriter(a.config.LogDir, runID)
		if err != nil {
			return NewRuntimeError(err)
		}
		opts = append(opts, WithArtifactWriter(artifacts))
	}

	lib, err := NewLibrary(a.config, opts...)
	if err != nil {
		return NewRuntimeError(err)
	}
	defer func() {
		if err := lib.Close(); err != nil {
			a.config.Log.Warn("Failed to close backend clients", "err", err)
		}
	}()

	report, err := lib.RunSuite(ctx, runID, s)
	if err != nil {
		return NewRuntimeError(err)
	}
	a.lastReport.Store(report)

	if err := a.formatter.FormatResults(report); err != nil {
		a.config.Log.Error("Failed to print results", "err", err)
	}
	if artifacts != nil {
		summary := RenderReport(report, false) + "\n" + report.String() + "\n"
		if err := artifacts.WriteSummary(summary); err != nil {
			a.config.Log.Error("Failed to write summary", "err", err)
		}
	}
	a.config.Log.Info("Suite run completed", "run_id", runID, "status", report.Status)
	return nil
}
