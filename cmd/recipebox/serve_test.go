// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebox/recipebox/internal/config"
	"github.com/recipebox/recipebox/internal/httpapi"
	"github.com/recipebox/recipebox/internal/observability"
	"github.com/recipebox/recipebox/internal/store"
)

type fakeDB struct {
	execs  atomic.Int32
	closed atomic.Bool
}

func (d *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	d.execs.Add(1)
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (d *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (d *fakeDB) Ping(context.Context) error { return nil }

func (d *fakeDB) Close() { d.closed.Store(true) }

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

type fakeAPIServer struct {
	onStart  func()
	startErr error
	errs     chan error
	stopped  bool
}

func (s *fakeAPIServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	if s.errs == nil {
		s.errs = make(chan error, 1)
	}
	if s.onStart != nil {
		s.onStart()
	}
	return s.errs, nil
}

func (s *fakeAPIServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeAPIServer) Addr() string { return "127.0.0.1:8080" }

type fakeObsServer struct {
	metrics  *observability.Metrics
	registry *prometheus.Registry
	started  bool
	stopped  bool
}

func newFakeObsServer() *fakeObsServer {
	reg := prometheus.NewRegistry()
	return &fakeObsServer{metrics: observability.NewMetrics(reg), registry: reg}
}

func (s *fakeObsServer) Start() (<-chan error, error) {
	s.started = true
	return make(chan error), nil
}

func (s *fakeObsServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func (s *fakeObsServer) Addr() string                     { return "127.0.0.1:9100" }
func (s *fakeObsServer) Metrics() *observability.Metrics  { return s.metrics }
func (s *fakeObsServer) Registry() prometheus.Registerer { return s.registry }

func serveConfig() config.Config {
	cfg := config.Default()
	cfg.Database.URL = "postgres://localhost/recipebox"
	cfg.Auth.SigningKey = "0123456789abcdef0123456789abcdef"
	cfg.Log.Format = "text"
	return cfg
}

func serveDeps(db *fakeDB, api *fakeAPIServer, obs *fakeObsServer) *CommandDeps {
	return &CommandDeps{
		ConnectDB: func(context.Context, string, store.PoolOptions, *slog.Logger) (Database, error) {
			return db, nil
		},
		ObservabilityServerFactory: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return obs
		},
		APIServerFactory: func(string, http.Handler, httpapi.ServerConfig, *slog.Logger) APIServer {
			return api
		},
	}
}

func outputCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	return cmd, out
}

func TestRunServe_StartsAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := &fakeDB{}
	api := &fakeAPIServer{onStart: cancel}
	obs := newFakeObsServer()
	cmd, out := outputCmd()

	err := runServeWithDeps(ctx, serveConfig(), cmd, serveDeps(db, api, obs))

	require.NoError(t, err)
	assert.Contains(t, out.String(), "RecipeBox started on 127.0.0.1:8080")
	assert.True(t, obs.started)
	assert.True(t, obs.stopped)
	assert.True(t, api.stopped)
	assert.True(t, db.closed.Load())
}

func TestRunServe_ServerErrorTriggersShutdown(t *testing.T) {
	errs := make(chan error, 1)
	errs <- errors.New("listener died")
	api := &fakeAPIServer{errs: errs}
	obs := newFakeObsServer()
	cmd, _ := outputCmd()

	err := runServeWithDeps(context.Background(), serveConfig(), cmd, serveDeps(&fakeDB{}, api, obs))

	require.NoError(t, err)
	assert.True(t, api.stopped)
	assert.True(t, obs.stopped)
}

func TestRunServe_APIStartFailure(t *testing.T) {
	api := &fakeAPIServer{startErr: errors.New("address in use")}
	obs := newFakeObsServer()
	cmd, out := outputCmd()

	err := runServeWithDeps(context.Background(), serveConfig(), cmd, serveDeps(&fakeDB{}, api, obs))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, obs.stopped, "observability server must be stopped")
	assert.NotContains(t, out.String(), "RecipeBox started")
}

func TestRunServe_WithoutMetricsListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := serveConfig()
	cfg.Metrics.Addr = ""
	api := &fakeAPIServer{onStart: cancel}
	obs := newFakeObsServer()
	cmd, _ := outputCmd()

	err := runServeWithDeps(ctx, cfg, cmd, serveDeps(&fakeDB{}, api, obs))

	require.NoError(t, err)
	assert.False(t, obs.started)
	assert.True(t, api.stopped)
}

func TestRunServe_ConnectFailure(t *testing.T) {
	deps := &CommandDeps{
		ConnectDB: func(context.Context, string, store.PoolOptions, *slog.Logger) (Database, error) {
			return nil, errors.New("connection refused")
		},
	}
	cmd, _ := outputCmd()

	err := runServeWithDeps(context.Background(), serveConfig(), cmd, deps)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunServe_AutoMigrate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := serveConfig()
	cfg.Database.AutoMigrate = true
	m := &fakeMigrator{latest: 3}
	deps := serveDeps(&fakeDB{}, &fakeAPIServer{onStart: cancel}, newFakeObsServer())
	deps.MigratorFactory = func(string) (MigrationRunner, error) { return m, nil }
	cmd, _ := outputCmd()

	require.NoError(t, runServeWithDeps(ctx, cfg, cmd, deps))
	assert.Equal(t, []string{"up"}, m.calls)
	assert.Equal(t, uint(3), m.version)
	assert.True(t, m.closed)
}

func TestMonitorServerErrors(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("cancels on error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error, 1)
		errs <- errors.New("boom")
		monitorServerErrors(ctx, cancel, errs, "api", logger)
		assert.Error(t, ctx.Err())
	})

	t.Run("closed channel leaves context alone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errs := make(chan error)
		close(errs)
		monitorServerErrors(ctx, cancel, errs, "api", logger)
		assert.NoError(t, ctx.Err())
	})
}
