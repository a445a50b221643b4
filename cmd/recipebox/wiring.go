// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
	authpg "github.com/recipebox/recipebox/internal/auth/postgres"
	"github.com/recipebox/recipebox/internal/config"
	"github.com/recipebox/recipebox/internal/logging"
	"github.com/recipebox/recipebox/internal/notify"
	"github.com/recipebox/recipebox/internal/ratelimit"
	"github.com/recipebox/recipebox/pkg/errutil"
)

// limiterCleanupInterval is how often the in-process limiter drops
// finished windows.
const limiterCleanupInterval = time.Minute

func setupLogging(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	//nolint:wrapcheck // logging errors carry their own codes
	return logging.SetDefault(logging.Options{
		Service: "recipebox",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  w,
	})
}

// authStack is the orchestrator plus the resources it holds open.
type authStack struct {
	orchestrator *auth.Orchestrator
	closers      []func()
}

func (s *authStack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// authOptions are the per-command choices buildAuth cannot read from config.
type authOptions struct {
	recorder auth.Recorder
	registry prometheus.Registerer
	// mailOut receives reset messages when no SMTP relay is configured.
	mailOut io.Writer
}

// buildAuth wires the repositories, limiter, notifier, hasher and token
// issuer into an Orchestrator. Redis is used for attempt limiting when
// configured; otherwise limits are kept in process.
func buildAuth(ctx context.Context, cfg config.Config, db Database, deps *CommandDeps, opts authOptions, logger *slog.Logger) (*authStack, error) {
	stack := &authStack{}

	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Hasher)
	if err != nil {
		return nil, oops.With("operation", "create password hasher").Wrap(err)
	}
	tokens, err := auth.NewJWTIssuer([]byte(cfg.Auth.SigningKey), cfg.Auth.Issuer, cfg.Auth.TokenTTLShort, cfg.Auth.TokenTTLLong)
	if err != nil {
		return nil, oops.With("operation", "create token issuer").Wrap(err)
	}

	var limiter auth.AttemptLimiter
	if cfg.Redis.Addr != "" {
		client, err := deps.ConnectRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, func() {
			if err := client.Close(); err != nil {
				errutil.LogError(logger, "failed to close redis client", err)
			}
		})
		limiter = ratelimit.NewRedisLimiter(client)
		logger.Info("attempt limiter using redis", "addr", cfg.Redis.Addr)
	} else {
		var limiterOpts []ratelimit.MemoryOption
		if opts.registry != nil {
			limiterOpts = append(limiterOpts, ratelimit.WithRegistry(opts.registry))
		}
		mem := ratelimit.NewMemoryLimiter(limiterCleanupInterval, limiterOpts...)
		stack.closers = append(stack.closers, mem.Close)
		limiter = mem
	}

	var notifier auth.Notifier
	if cfg.SMTP.Host != "" {
		smtpNotifier, err := notify.NewSMTPNotifier(cfg.SMTP, logger)
		if err != nil {
			stack.Close()
			return nil, err
		}
		notifier = smtpNotifier
	} else {
		out := opts.mailOut
		if out == nil {
			out = io.Discard
		}
		notifier = notify.NewLogNotifier(out, logger)
		logger.Warn("no smtp relay configured, reset codes are written to the console")
	}

	orchestrator, err := auth.NewOrchestrator(auth.Deps{
		Accounts:   authpg.NewAccountRepository(db),
		Sessions:   authpg.NewSessionRepository(db),
		Challenges: authpg.NewResetChallengeRepository(db),
		Hasher:     hasher,
		Tokens:     tokens,
		Notifier:   notifier,
		Limiter:    limiter,
		Recorder:   opts.recorder,
		Logger:     logger,
	}, cfg.Auth)
	if err != nil {
		stack.Close()
		return nil, err
	}
	stack.orchestrator = orchestrator
	return stack, nil
}
