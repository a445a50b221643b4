// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/recipebox/recipebox/internal/config"
	"github.com/recipebox/recipebox/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the RecipeBox CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipebox",
		Short: "RecipeBox account and session service",
		Long: `RecipeBox serves registration, login, logout and password reset
for the recipe-sharing platform, backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (YAML, default $XDG_CONFIG_HOME/recipebox/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}

// addDatabaseFlags registers the flags shared by every command that talks
// to PostgreSQL.
func addDatabaseFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json or text)")
}

// loadConfig reads the config file, environment and the command's flags.
// Without --config the XDG config file is used when present.
func loadConfig(fs *pflag.FlagSet, databaseOnly bool) (config.Config, error) {
	path := configFile
	if path == "" {
		if found, ok := xdg.DefaultConfigFile(); ok {
			path = found
		}
	}
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.LoadOptions{File: path, Flags: fs, DatabaseOnly: databaseOnly})
}
