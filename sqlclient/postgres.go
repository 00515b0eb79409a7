package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethereum-optimism/infra/op-cliverify/invocation"
)

var _ Client = (*PostgresClient)(nil)

// PostgresClient queries a postgres_tcp backend through a pgx pool
type PostgresClient struct {
	pool *pgxpool.Pool
}

// NewPostgresClient connects to dsn and verifies the connection
func NewPostgresClient(ctx context.Context, dsn string) (*PostgresClient, error) {
	if err := invocation.ValidateDSN(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool for %s: %w", invocation.MaskDSN(dsn), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", invocation.MaskDSN(dsn), err)
	}
	return &PostgresClient{pool: pool}, nil
}

// Query runs q with the simple protocol so every value comes back in text form
func (c *PostgresClient) Query(ctx context.Context, q string) (string, error) {
	rows, err := c.pool.Query(ctx, q, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		raw := rows.RawValues()
		row := make([]string, len(raw))
		for i, v := range raw {
			// nil is NULL
			if v != nil {
				row[i] = string(v)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	return renderRows(out), nil
}

func (c *PostgresClient) Close() error {
	c.pool.Close()
	return nil
}

// WaitForPostgres polls dsn until the server answers a ping or ctx is done
func WaitForPostgres(ctx context.Context, dsn string, interval time.Duration, logger log.Logger) error {
	if err := invocation.ValidateDSN(dsn); err != nil {
		return err
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.Root()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = pingOnce(ctx, dsn)
		if lastErr == nil {
			logger.Info("Backend is ready", "dsn", invocation.MaskDSN(dsn), "attempts", attempt)
			return nil
		}
		logger.Debug("Backend not ready", "dsn", invocation.MaskDSN(dsn), "attempt", attempt, "err", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("backend %s not ready: %w", invocation.MaskDSN(dsn), errors.Join(ctx.Err(), lastErr))
		case <-time.After(interval):
		}
	}
}

func pingOnce(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}
