// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/recipebox/recipebox/internal/store"
	"github.com/recipebox/recipebox/pkg/errutil"
)

// migrateDeps is replaced in tests.
var migrateDeps *CommandDeps

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL schema migrations.`,
		// Bare "migrate" applies everything, like "migrate up".
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigrationRunner) error {
				return runMigrateUp(cmd, m)
			})
		},
	}
	addDatabaseFlags(cmd.PersistentFlags())

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigrationRunner) error {
				return runMigrateUp(cmd, m)
			})
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long: `Roll back the most recent migration. With --all every migration is
rolled back and all account data is dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigrationRunner) error {
				return runMigrateDown(cmd, m, all)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m MigrationRunner) error {
				return runMigrateStatus(cmd, m)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use this after repairing a migration that failed halfway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Errorf("version must be an integer")
			}
			return withMigrator(cmd, func(m MigrationRunner) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // store errors carry their own codes
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads the database config, opens a migrator, runs fn and
// closes the migrator.
func withMigrator(cmd *cobra.Command, fn func(MigrationRunner) error) error {
	cfg, err := loadConfig(cmd.Flags(), true)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	deps := migrateDeps.withDefaults()
	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			errutil.LogError(logger, "failed to close migrator", err)
		}
	}()
	return fn(m)
}

func runMigrateUp(cmd *cobra.Command, m MigrationRunner) error {
	pending, err := m.Pending()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}
	if err := m.Up(); err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	for _, v := range pending {
		cmd.Println("Applied " + migrationLabel(v))
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, m MigrationRunner, all bool) error {
	applied, err := m.Applied()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	if len(applied) == 0 {
		cmd.Println("Nothing to roll back")
		return nil
	}
	if all {
		if err := m.Down(); err != nil {
			return err //nolint:wrapcheck // store errors carry their own codes
		}
		cmd.Printf("Rolled back %d migrations\n", len(applied))
		return nil
	}
	if err := m.Steps(-1); err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	cmd.Println("Rolled back " + migrationLabel(applied[len(applied)-1]))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, m MigrationRunner) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	latest, err := store.LatestVersion()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	pending, err := m.Pending()
	if err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}

	cmd.Printf("Current version: %d\n", version)
	cmd.Printf("Latest version:  %d\n", latest)
	if dirty {
		cmd.Println("State: DIRTY (run 'recipebox migrate force VERSION' after repairing)")
	}
	if len(pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	cmd.Printf("Pending (%d):\n", len(pending))
	for _, v := range pending {
		cmd.Println("  " + migrationLabel(v))
	}
	return nil
}

func migrationLabel(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}
