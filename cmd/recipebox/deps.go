// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/recipebox/recipebox/internal/httpapi"
	"github.com/recipebox/recipebox/internal/observability"
	"github.com/recipebox/recipebox/internal/ratelimit"
	"github.com/recipebox/recipebox/internal/store"
)

// Database is the pool surface the commands use. *pgxpool.Pool satisfies it.
type Database interface {
	store.Querier
	Ping(ctx context.Context) error
	Close()
}

// MigrationRunner wraps the methods used from store.Migrator.
type MigrationRunner interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Applied() ([]uint, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() prometheus.Registerer
}

// APIServer wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// RedisClient wraps what the limiter and shutdown need from *redis.Client.
type RedisClient interface {
	redis.Cmdable
	Close() error
}

// CommandDeps contains injectable dependencies for serve, sweep and
// migrate. Nil fields use their default implementations.
type CommandDeps struct {
	// ConnectDB opens the database pool.
	// Default: store.Connect
	ConnectDB func(ctx context.Context, url string, opts store.PoolOptions, logger *slog.Logger) (Database, error)

	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (MigrationRunner, error)

	// ConnectRedis opens a Redis client for the attempt limiter.
	// Default: ratelimit.NewRedisClient
	ConnectRedis func(ctx context.Context, addr string) (RedisClient, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// APIServerFactory creates the public API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler, cfg httpapi.ServerConfig, logger *slog.Logger) APIServer
}

func (d *CommandDeps) withDefaults() *CommandDeps {
	out := CommandDeps{}
	if d != nil {
		out = *d
	}
	if out.ConnectDB == nil {
		out.ConnectDB = func(ctx context.Context, url string, opts store.PoolOptions, logger *slog.Logger) (Database, error) {
			pool, err := store.Connect(ctx, url, opts, logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (MigrationRunner, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ConnectRedis == nil {
		out.ConnectRedis = func(ctx context.Context, addr string) (RedisClient, error) {
			client, err := ratelimit.NewRedisClient(ctx, addr)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checker, logger)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, cfg httpapi.ServerConfig, logger *slog.Logger) APIServer {
			return httpapi.NewServer(addr, handler, cfg, logger)
		}
	}
	return &out
}
