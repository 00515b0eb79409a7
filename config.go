package cliverify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-cliverify/flags"
	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/runner"
	"github.com/ethereum-optimism/infra/op-cliverify/sqlclient"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the library and application configuration
type Config struct {
	SuitePath         string                  // Suite file, only used by the CLI
	ExecutionPlatform types.ExecutionPlatform // Where the CLI under test runs
	SQLBackend        types.SQLBackend        // Backend the CLI under test persists into
	ConcurrencyLimit  int                     // Maximum number of concurrent CLI processes
	DefaultTimeout    time.Duration           // Per-invocation timeout unless an action overrides it
	ArtifactRoot      string                  // Root of the test/.stackql cache
	PsqlExe           string
	SqliteExe         string
	QueryClient       sqlclient.Mode  // How backend queries reach the database
	LogDir            string          // Directory for per-action output artifacts, empty disables them
	MaxCaptureBytes   int             // Per-stream capture cap
	RunInterval       time.Duration   // Interval between suite runs
	RunOnce           bool            // Exit after one suite run
	HealthzAddr       string          // Empty disables the healthz server
	Metrics           opmetrics.CLIConfig
	Log               log.Logger
}

// DefaultConfig returns the configuration used when a library is created without a CLI.
// The client executables honor PSQL_EXE and SQLITE_EXE.
func DefaultConfig() *Config {
	return &Config{
		ExecutionPlatform: types.ExecutionPlatformNative,
		SQLBackend:        types.SQLBackendEmbedded,
		ConcurrencyLimit:  invocation.DefaultConcurrencyLimit,
		DefaultTimeout:    runner.DefaultTimeout,
		ArtifactRoot:      ".",
		PsqlExe:           envOr(invocation.EnvPsqlExe, invocation.DefaultPsqlExe),
		SqliteExe:         envOr(invocation.EnvSqliteExe, invocation.DefaultSqliteExe),
		QueryClient:       sqlclient.ModeDriver,
		MaxCaptureBytes:   runner.DefaultMaxCaptureBytes,
		RunOnce:           true,
		Log:               log.Root(),
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// Check validates the configuration
func (c *Config) Check() error {
	if c.Log == nil {
		return errors.New("logger is required")
	}
	if !c.SQLBackend.IsValid() {
		return types.NewConfigurationError("sql_backend", fmt.Errorf("unrecognized SQL backend %q", c.SQLBackend))
	}
	if c.ConcurrencyLimit < 1 {
		return types.NewConfigurationError("concurrency_limit", fmt.Errorf("must be positive, got %d", c.ConcurrencyLimit))
	}
	if c.DefaultTimeout < 0 {
		return types.NewConfigurationError("timeout", fmt.Errorf("cannot be negative, got %v", c.DefaultTimeout))
	}
	if !c.QueryClient.IsValid() {
		return types.NewConfigurationError("query_client", fmt.Errorf("unrecognized query client mode %q", c.QueryClient))
	}
	if c.RunInterval < 0 {
		return types.NewConfigurationError("run_interval", fmt.Errorf("cannot be negative, got %v", c.RunInterval))
	}
	return nil
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	// Parse flags
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	suitePath, err := filepath.Abs(ctx.String(flags.Suite.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for suite '%s': %w", ctx.String(flags.Suite.Name), err)
	}

	backend, err := types.ParseSQLBackend(ctx.String(flags.SQLBackend.Name))
	if err != nil {
		return nil, err
	}

	artifactRoot, err := filepath.Abs(ctx.String(flags.ArtifactRoot.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for artifact root '%s': %w", ctx.String(flags.ArtifactRoot.Name), err)
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	cfg := &Config{
		SuitePath:         suitePath,
		ExecutionPlatform: types.ExecutionPlatform(ctx.String(flags.ExecutionPlatform.Name)),
		SQLBackend:        backend,
		ConcurrencyLimit:  ctx.Int(flags.ConcurrencyLimit.Name),
		DefaultTimeout:    ctx.Duration(flags.Timeout.Name),
		ArtifactRoot:      artifactRoot,
		PsqlExe:           ctx.String(flags.PsqlExe.Name),
		SqliteExe:         ctx.String(flags.SqliteExe.Name),
		QueryClient:       sqlclient.Mode(ctx.String(flags.QueryClient.Name)),
		LogDir:            logDir,
		MaxCaptureBytes:   ctx.Int(flags.MaxCaptureBytes.Name),
		RunInterval:       runInterval,
		RunOnce:           runInterval == 0,
		HealthzAddr:       ctx.String(flags.HealthzAddr.Name),
		Metrics:           opmetrics.ReadCLIConfig(ctx),
		Log:               log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}
