package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

const EnvVarPrefix = "OP_CLIVERIFY"

var (
	Suite = &cli.StringFlag{
		Name:     "suite",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:    "Path to the suite file describing the actions to run (eg. 'suite.yaml')",
	}
	ExecutionPlatform = &cli.StringFlag{
		Name:    "execution-platform",
		Value:   string(types.ExecutionPlatformNative),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXECUTION_PLATFORM"),
		Usage:   "Where the CLI under test runs. Only 'native' is supported",
	}
	SQLBackend = &cli.StringFlag{
		Name:    "sql-backend",
		Value:   string(types.SQLBackendEmbedded),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SQL_BACKEND"),
		Usage:   fmt.Sprintf("SQL backend the CLI persists into (%s, %s)", types.SQLBackendEmbedded, types.SQLBackendNetwork),
		Action: func(_ *cli.Context, v string) error {
			_, err := types.ParseSQLBackend(v)
			return err
		},
	}
	ConcurrencyLimit = &cli.IntFlag{
		Name:    "concurrency-limit",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY_LIMIT"),
		Usage:   "Maximum number of CLI processes running at once",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   5 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Default timeout for a single CLI invocation, can be overridden per action",
	}
	ArtifactRoot = &cli.StringFlag{
		Name:    "artifact-root",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ARTIFACT_ROOT"),
		Usage:   "Directory under which the test/.stackql cache is created",
	}
	PsqlExe = &cli.StringFlag{
		Name:    "psql-exe",
		Value:   "psql",
		EnvVars: []string{"PSQL_EXE"},
		Usage:   "psql executable used by shell-mode backend queries",
	}
	SqliteExe = &cli.StringFlag{
		Name:    "sqlite-exe",
		Value:   "sqlite3",
		EnvVars: []string{"SQLITE_EXE"},
		Usage:   "sqlite3 executable used by shell-mode backend queries",
	}
	QueryClient = &cli.StringFlag{
		Name:    "query-client",
		Value:   "driver",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "QUERY_CLIENT"),
		Usage:   "How backend queries reach the database: 'driver' (in-process) or 'shell' (psql/sqlite3)",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store captured stdout/stderr of each action. Disabled when empty",
	}
	MaxCaptureBytes = &cli.IntFlag{
		Name:    "max-capture-bytes",
		Value:   5 * 1024 * 1024,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_CAPTURE_BYTES"),
		Usage:   "Per-stream cap on captured output held in memory",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address of the healthz server (e.g. '0.0.0.0:8080'). Disabled when empty",
	}
)

var requiredFlags = []cli.Flag{
	Suite,
}

var optionalFlags = []cli.Flag{
	ExecutionPlatform,
	SQLBackend,
	ConcurrencyLimit,
	Timeout,
	ArtifactRoot,
	PsqlExe,
	SqliteExe,
	QueryClient,
	LogDir,
	MaxCaptureBytes,
	RunInterval,
	HealthzAddr,
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
	return nil
}
