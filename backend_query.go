package cliverify

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
	"github.com/ethereum-optimism/infra/op-cliverify/metrics"
	"github.com/ethereum-optimism/infra/op-cliverify/sqlclient"
	"github.com/ethereum-optimism/infra/op-cliverify/types"
)

// BackendQuery runs SQL directly against the backend the CLI persists into.
// Target is a DSN for postgres_tcp and a database file path for sqlite_embedded.
type BackendQuery struct {
	Name     string
	Target   string
	Query    string
	Expected string
	Options  types.ActionOptions
}

func (q BackendQuery) label() string {
	if q.Name != "" {
		return q.Name
	}
	return q.Query
}

// ShouldBackendQueryEqual runs the query and compares the rendered rows,
// one per line with tab separated columns, with Expected.
// The match and strip_ansi options apply as they do to CLI streams.
func (l *Library) ShouldBackendQueryEqual(ctx context.Context, q BackendQuery) (*types.VerificationOutcome, error) {
	opts := q.Options.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, NewActionError(q.label(), 0, err)
	}
	if q.Target == "" {
		return nil, NewActionError(q.label(), 0, types.NewConfigurationError("target", fmt.Errorf("backend query has no target")))
	}

	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("backend query %s", q.label()),
		trace.WithAttributes(attribute.String("backend", l.config.SQLBackend.String())))
	defer span.End()

	client, err := l.client(ctx, q.Target)
	if err != nil {
		span.RecordError(err)
		metrics.RecordVerification(q.label(), types.VerificationError)
		return nil, NewActionError(q.label(), 1, err)
	}

	queryCtx := ctx
	if l.config.QueryClient == sqlclient.ModeDriver {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = l.config.DefaultTimeout
		}
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := client.Query(queryCtx, q.Query)
	if err != nil {
		span.RecordError(err)
		metrics.RecordVerification(q.label(), types.VerificationError)
		return nil, NewActionError(q.label(), 1, fmt.Errorf("backend query failed: %w", err))
	}

	result := &types.ExecutionResult{Stdout: []byte(rows), Duration: time.Since(start)}
	outcome, err := l.verifier.Verify(result, q.Expected, "", opts.VerifyOptions())
	if err != nil {
		return nil, NewActionError(q.label(), 1, err)
	}
	outcome.Iteration = 1
	metrics.RecordVerification(q.label(), outcome.Status())
	if !outcome.Passed {
		l.log.Warn("Backend query failed", "query", q.label(), "mismatch", outcome.Message)
		return outcome, outcome.Err()
	}
	l.log.Info("Backend query passed", "query", q.label())
	return outcome, nil
}

// client returns the cached client for target, creating it on first use
func (l *Library) client(ctx context.Context, target string) (sqlclient.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.clients[target]; ok {
		return c, nil
	}

	var (
		c   sqlclient.Client
		err error
	)
	switch {
	case l.config.QueryClient == sqlclient.ModeShell && l.config.SQLBackend == types.SQLBackendNetwork:
		c = sqlclient.NewPsqlClient(l.runner, l.config.PsqlExe, target, l.config.DefaultTimeout)
	case l.config.QueryClient == sqlclient.ModeShell:
		c = sqlclient.NewSqlite3Client(l.runner, l.config.SqliteExe, target, l.config.DefaultTimeout)
	case l.config.SQLBackend == types.SQLBackendNetwork:
		c, err = sqlclient.NewPostgresClient(ctx, target)
	default:
		c, err = sqlclient.NewSQLiteClient(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open backend %s: %w", invocation.MaskDSN(target), err)
	}
	l.clients[target] = c
	return c, nil
}

// WaitForBackend blocks until the postgres_tcp backend at dsn answers or ctx is done.
// The embedded backend has nothing to wait for.
func (l *Library) WaitForBackend(ctx context.Context, dsn string, interval time.Duration) error {
	if l.config.SQLBackend != types.SQLBackendNetwork {
		return nil
	}
	return sqlclient.WaitForPostgres(ctx, dsn, interval, l.log)
}
