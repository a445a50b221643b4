// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package config loads the service configuration. Sources are applied in
// order, later ones winning: built-in defaults, an optional YAML file,
// RECIPEBOX_* environment variables, then command-line flags.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/recipebox/recipebox/internal/auth"
	"github.com/recipebox/recipebox/internal/logging"
	"github.com/recipebox/recipebox/internal/notify"
	"github.com/recipebox/recipebox/internal/store"
)

// EnvPrefix prefixes every environment variable. Nested keys use a double
// underscore: RECIPEBOX_AUTH__SIGNING_KEY sets auth.signing_key.
const EnvPrefix = "RECIPEBOX_"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig        `koanf:"http"`
	Metrics  MetricsConfig     `koanf:"metrics"`
	Database DatabaseConfig    `koanf:"database"`
	Redis    RedisConfig       `koanf:"redis"`
	Auth     auth.Config       `koanf:"auth"`
	SMTP     notify.SMTPConfig `koanf:"smtp"`
	Log      LogConfig         `koanf:"log"`
	Sweep    SweepConfig       `koanf:"sweep"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL         string            `koanf:"url"`
	AutoMigrate bool              `koanf:"auto_migrate"`
	Pool        store.PoolOptions `koanf:"pool"`
}

// RedisConfig configures the shared attempt limiter. An empty Addr keeps
// limiting in process.
type RedisConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SweepConfig configures the expired-row sweeper in serve.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics:  MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{Pool: store.DefaultPoolOptions()},
		Auth:     auth.DefaultConfig(),
		SMTP:     notify.SMTPConfig{Port: 587},
		Log:      LogConfig{Level: "info", Format: "json"},
		Sweep:    SweepConfig{Interval: 10 * time.Minute},
	}
}

// Validate checks the configuration is complete.
func (c Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("field", "http.addr").Errorf("http address is required")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "http.request_timeout").Errorf("request timeout must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "sweep.interval").Errorf("sweep interval must be positive")
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.SMTP.Host != "" {
		if err := c.SMTP.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDatabase checks only what database maintenance commands need:
// the database URL and log settings.
func (c Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.url").Errorf("database url is required")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("field", "log.format").Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// LoadOptions select the sources Load reads.
type LoadOptions struct {
	// File is an optional YAML file path.
	File string
	// Flags, when set, override everything else for flags the user changed.
	Flags *pflag.FlagSet
	// DatabaseOnly validates with ValidateDatabase instead of Validate.
	DatabaseOnly bool
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode").Wrap(err)
	}
	validate := cfg.Validate
	if opts.DatabaseOnly {
		validate = cfg.ValidateDatabase
	}
	if err := validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps RECIPEBOX_AUTH__SIGNING_KEY to auth.signing_key.
func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
}

// flagKey maps a changed flag like --database-url to database.url. Flags
// the user did not set and the --config flag itself are skipped.
func flagKey(f *pflag.Flag) (string, any) {
	if !f.Changed || f.Name == "config" {
		return "", nil
	}
	section, rest, ok := strings.Cut(f.Name, "-")
	if !ok {
		return "", nil
	}
	return section + "." + strings.ReplaceAll(rest, "-", "_"), f.Value.String()
}
