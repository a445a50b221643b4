// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Recorder receives one observation per completed auth operation.
type Recorder interface {
	RecordAuthOperation(operation, outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthOperation(string, string, time.Duration) {}

// Deps are the collaborators shared by the auth services.
// Codes, Limiter, Recorder, Logger and Clock are optional.
type Deps struct {
	Accounts   CredentialStore
	Sessions   SessionStore
	Challenges ResetChallengeStore
	Hasher     PasswordHasher
	Tokens     TokenIssuer
	Notifier   Notifier
	Codes      CodeGenerator
	Limiter    AttemptLimiter
	Recorder   Recorder
	Logger     *slog.Logger
	Clock      func() time.Time
}

func (d *Deps) validate() error {
	switch {
	case d.Accounts == nil:
		return oops.Code("AUTH_INVALID_DEPS").Errorf("credential store is required")
	case d.Sessions == nil:
		return oops.Code("AUTH_INVALID_DEPS").Errorf("session store is required")
	case d.Challenges == nil:
		return oops.Code("AUTH_INVALID_DEPS").Errorf("reset challenge store is required")
	case d.Hasher == nil:
		return oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	case d.Tokens == nil:
		return oops.Code("AUTH_INVALID_DEPS").Errorf("token issuer is required")
	case d.Notifier == nil:
		return oops.Code("AUTH_INVALID_DEPS").Errorf("notifier is required")
	}
	return nil
}

func (d *Deps) applyDefaults() {
	if d.Codes == nil {
		d.Codes = RandomCodeGenerator{}
	}
	if d.Limiter == nil {
		d.Limiter = noLimit{}
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
}

// IssuedSession is returned by every flow that logs the caller in.
type IssuedSession struct {
	Token     string
	AccountID ulid.ULID
	SessionID ulid.ULID
	ExpiresAt time.Time
}

// SessionOptions carry per-request session attributes.
type SessionOptions struct {
	RememberMe bool
	UserAgent  string
	IPAddress  string
}

// mintSession issues a token and persists its session. Nothing is persisted
// when signing fails.
func mintSession(ctx context.Context, d *Deps, account *Account, opts SessionOptions) (*IssuedSession, error) {
	token, err := d.Tokens.Issue(account.ID, Claims{Username: account.Username}, TTLFor(opts.RememberMe))
	if err != nil {
		return nil, oops.With("operation", "issue token").With("account_id", account.ID.String()).Wrap(err)
	}

	session, err := NewSession(token, opts.RememberMe, opts.UserAgent, opts.IPAddress)
	if err != nil {
		return nil, oops.With("operation", "build session").Wrap(err)
	}

	if err := d.Sessions.Persist(ctx, session); err != nil {
		return nil, oops.With("operation", "persist session").With("account_id", account.ID.String()).Wrap(err)
	}

	return &IssuedSession{
		Token:     token.Value,
		AccountID: account.ID,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// outcomeOf turns an error into a low-cardinality metrics label.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	for _, c := range []struct {
		target error
		label  string
	}{
		{ErrValidation, CodeValidation},
		{ErrAccountNotFound, CodeAccountNotFound},
		{ErrIncorrectPassword, CodeIncorrectPassword},
		{ErrInvalidCredentials, CodeInvalidCredentials},
		{ErrAccountLocked, CodeAccountLocked},
		{ErrRateLimited, CodeRateLimited},
		{ErrTokenInvalid, CodeTokenInvalid},
		{ErrTokenExpired, CodeTokenExpired},
		{ErrInvalidResetCode, CodeInvalidResetCode},
		{ErrDeliveryFailed, CodeDeliveryFailed},
		{ErrStoreUnavailable, CodeStoreUnavailable},
	} {
		if errors.Is(err, c.target) {
			return strings.ToLower(c.label)
		}
	}
	if _, ok := IsDuplicateField(err); ok {
		return strings.ToLower(CodeDuplicateField)
	}
	return "error"
}

// isExpected reports whether err is a caller-facing outcome rather than a fault.
func isExpected(err error) bool {
	switch outcomeOf(err) {
	case "success", "error", strings.ToLower(CodeStoreUnavailable), strings.ToLower(CodeDeliveryFailed):
		return false
	}
	return true
}
