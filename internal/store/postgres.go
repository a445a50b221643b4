// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package store owns the PostgreSQL connection pool and the schema
// migrations. Repositories live with their domain packages and take a
// Querier.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Querier is the subset of *pgxpool.Pool the repositories need. pgxmock's
// pool satisfies it too.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// PoolOptions tune the connection pool and the startup retry loop.
// Zero values keep the pgxpool defaults.
type PoolOptions struct {
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	ConnectRetries  uint64        `koanf:"connect_retries"`
	RetryBaseDelay  time.Duration `koanf:"retry_base_delay"`
}

// DefaultPoolOptions returns the options used when none are configured.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:       10,
		ConnectRetries: 5,
		RetryBaseDelay: 500 * time.Millisecond,
	}
}

const maxRetryDelay = 10 * time.Second

// openPool creates the pool and checks it answers. Replaced in tests.
var openPool = func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Connect
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err //nolint:wrapcheck // wrapped by Connect
	}
	return pool, nil
}

// Connect opens a pgx pool for databaseURL, retrying with exponential
// backoff while the database is unreachable. A malformed URL fails at once.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	base := opts.RetryBaseDelay
	if base <= 0 {
		base = DefaultPoolOptions().RetryBaseDelay
	}
	backoff := retry.WithMaxRetries(opts.ConnectRetries, retry.WithCappedDuration(maxRetryDelay, retry.NewExponential(base)))

	var (
		pool    *pgxpool.Pool
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := openPool(ctx, cfg)
		if err != nil {
			logger.WarnContext(ctx, "database not reachable",
				"attempt", attempt,
				"host", cfg.ConnConfig.Host,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}

	logger.InfoContext(ctx, "database connected", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)
	return pool, nil
}
