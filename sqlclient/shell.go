package sqlclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-cliverify/runner"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

var _ Client = (*ShellClient)(nil)

// ShellClient runs the database's own command-line client through a ProcessRunner,
// so shell queries share the concurrency budget with the CLI under test.
type ShellClient struct {
	runner  runner.ProcessRunner
	exe     string
	args    func(query string) []string
	backend types.SQLBackend
	timeout time.Duration
}

// NewPsqlClient queries dsn with psql in unaligned, tuples-only mode
func NewPsqlClient(r runner.ProcessRunner, psqlExe, dsn string, timeout time.Duration) *ShellClient {
	return &ShellClient{
		runner:  r,
		exe:     psqlExe,
		backend: types.SQLBackendNetwork,
		timeout: timeout,
		args: func(q string) []string {
			return []string{"-X", "-A", "-t", "-F", columnSeparator, "-d", dsn, "-c", q}
		},
	}
}

// NewSqlite3Client queries the database file at path with the sqlite3 shell
func NewSqlite3Client(r runner.ProcessRunner, sqliteExe, path string, timeout time.Duration) *ShellClient {
	return &ShellClient{
		runner:  r,
		exe:     sqliteExe,
		backend: types.SQLBackendEmbedded,
		timeout: timeout,
		args: func(q string) []string {
			return []string{"-readonly", "-separator", columnSeparator, path, q}
		},
	}
}

func (c *ShellClient) Query(ctx context.Context, q string) (string, error) {
	result, err := c.runner.Run(ctx, &types.InvocationSpec{
		Executable: c.exe,
		Args:       c.args(q),
		Backend:    c.backend,
		Query:      q,
	}, c.timeout)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("%s exited with code %d: %s", c.exe, result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}
	return string(result.Stdout), nil
}

func (c *ShellClient) Close() error {
	return nil
}
