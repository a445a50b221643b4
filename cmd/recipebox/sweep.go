// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/recipebox/recipebox/internal/config"
	"github.com/recipebox/recipebox/internal/sweep"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and reset codes once",
		Long: `Run a single sweep of expired sessions and password reset codes.
Useful from cron when serve runs with a long sweep interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), false)
			if err != nil {
				return err
			}
			return runSweepWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	addDatabaseFlags(cmd.Flags())
	cmd.Flags().String("auth-signing-key", "", "HMAC key for bearer tokens (at least 32 bytes)")
	return cmd
}

func runSweepWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *CommandDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	db, err := deps.ConnectDB(ctx, cfg.Database.URL, cfg.Database.Pool, logger)
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()

	// Sweeping never sends mail or checks limits; keep both in process.
	cfg.Redis.Addr = ""
	cfg.SMTP.Host = ""
	stack, err := buildAuth(ctx, cfg, db, deps, authOptions{}, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	sessions, challenges, err := sweep.NewWorker(cfg.Sweep.Interval, stack.orchestrator, sweep.WithLogger(logger)).RunOnce(ctx)
	cmd.Printf("Removed %d expired sessions and %d expired reset codes\n", sessions, challenges)
	return err //nolint:wrapcheck // sweep errors carry their own codes
}
