package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB opens a pgx pool with tuned defaults and query tracing.
func NewDB(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	// The worker issues one query at a time; a small pool is plenty.
	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// ConnectWithRetry calls NewDB with exponential backoff until it succeeds,
// maxElapsed passes, or ctx is cancelled.
func ConnectWithRetry(ctx context.Context, connString string, maxElapsed time.Duration, logger *slog.Logger) (*pgxpool.Pool, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = maxElapsed

	var pool *pgxpool.Pool
	operation := func() error {
		var err error
		pool, err = NewDB(ctx, connString)
		return err
	}
	notify := func(err error, next time.Duration) {
		if logger != nil {
			logger.Warn("database not ready, retrying", "error", err, "retry_in", next)
		}
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return nil, fmt.Errorf("connect to database after retries: %w", err)
	}
	return pool, nil
}
