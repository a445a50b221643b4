// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package xdg resolves XDG Base Directory paths for RecipeBox.
package xdg

import (
	"os"
	"path/filepath"
)

const (
	appName        = "recipebox"
	configFileName = "config.yaml"
)

// ConfigDir returns the XDG config directory for recipebox.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns ConfigDir()/config.yaml when that file exists.
func DefaultConfigFile() (string, bool) {
	path := filepath.Join(ConfigDir(), configFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}
