// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/recipebox/recipebox/internal/config"
	"github.com/recipebox/recipebox/internal/httpapi"
	"github.com/recipebox/recipebox/internal/observability"
	"github.com/recipebox/recipebox/internal/sweep"
	"github.com/recipebox/recipebox/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the account API",
		Long: `Run the account API, the metrics and health endpoints, and the
background sweeper that removes expired sessions and reset codes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), false)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	fs := cmd.Flags()
	addDatabaseFlags(fs)
	fs.String("http-addr", "", "API listen address (default :8080)")
	fs.String("metrics-addr", "", "metrics/health listen address (empty string disables)")
	fs.String("redis-addr", "", "Redis address or URL for shared attempt limits")
	fs.String("auth-signing-key", "", "HMAC key for bearer tokens (at least 32 bytes)")
	return cmd
}

// runServeWithDeps runs until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *CommandDeps) error {
	deps = deps.withDefaults()

	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger.Info("starting recipebox", "version", version, "http_addr", cfg.HTTP.Addr)

	db, err := deps.ConnectDB(ctx, cfg.Database.URL, cfg.Database.Pool, logger)
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obsServer ObservabilityServer
		metrics   *observability.Metrics
		registry  prometheus.Registerer
	)
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, db.Ping, logger)
		metrics = obsServer.Metrics()
		registry = obsServer.Registry()
	} else {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		registry = reg
	}

	stack, err := buildAuth(ctx, cfg, db, deps, authOptions{
		recorder: metrics,
		registry: registry,
		mailOut:  cmd.OutOrStdout(),
	}, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	router := httpapi.NewRouter(httpapi.Options{
		Auth:           stack.orchestrator,
		Recorder:       metrics,
		Logger:         logger.With("component", "httpapi"),
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, router, httpapi.ServerConfig{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, logger)

	if obsServer != nil {
		obsErrs, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrs, "observability", logger)
	}

	apiErrs, err := apiServer.Start()
	if err != nil {
		stopQuietly(obsServer, cfg, logger)
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrs, "api", logger)

	sweeper := sweep.NewWorker(cfg.Sweep.Interval, stack.orchestrator,
		sweep.WithRecorder(metrics),
		sweep.WithLogger(logger.With("component", "sweep")),
	)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	cmd.Println("RecipeBox started on " + apiServer.Addr())
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "error stopping api server", err)
	}
	sweeper.Stop()
	stopQuietly(obsServer, cfg, logger)

	logger.Info("shutdown complete")
	return nil
}

func stopQuietly(obsServer ObservabilityServer, cfg config.Config, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		errutil.LogError(logger, "error stopping observability server", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// autoMigrate applies pending migrations before serving.
func autoMigrate(deps *CommandDeps, url string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(url)
	if err != nil {
		return oops.With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			errutil.LogError(logger, "failed to close migrator", err)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	v, _, err := m.Version()
	if err != nil {
		return oops.With("operation", "read schema version").Wrap(err)
	}
	logger.Info("database schema up to date", "version", v)
	return nil
}
