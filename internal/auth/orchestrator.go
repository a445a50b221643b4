// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/pkg/errutil"
)

// LoginInput is the login payload.
type LoginInput struct {
	Email    string
	Password string
	SessionOptions
}

// Principal is the authenticated caller behind a bearer token.
type Principal struct {
	AccountID ulid.ULID
	SessionID ulid.ULID
	Username  string
	ExpiresAt time.Time
}

// Orchestrator coordinates registration, login, logout and the reset flow.
// Each call is one independent request; the orchestrator holds no
// per-request state.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	resets *ResetCodeService

	// dummyDigest is verified against when an email is unknown so the
	// lookup miss costs the same as a wrong password.
	dummyDigest string
}

// NewOrchestrator validates deps and cfg and builds an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps.applyDefaults()

	resets, err := NewResetCodeService(deps, cfg)
	if err != nil {
		return nil, err
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "seed dummy digest").Wrap(err)
	}
	dummy, err := deps.Hasher.Hash(hex.EncodeToString(seed))
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "compute dummy digest").Wrap(err)
	}

	return &Orchestrator{deps: deps, cfg: cfg, resets: resets, dummyDigest: dummy}, nil
}

// Resets exposes the reset code service.
func (o *Orchestrator) Resets() *ResetCodeService {
	return o.resets
}

func (o *Orchestrator) observe(ctx context.Context, operation string, start time.Time, err error) {
	o.deps.Recorder.RecordAuthOperation(operation, outcomeOf(err), time.Since(start))
	if err != nil && !isExpected(err) {
		errutil.LogErrorContext(ctx, o.deps.Logger, operation+" failed", err)
	}
}

// Register validates in, hashes the password, creates the account and logs
// it in. Validation failures never reach the store; a failed create never
// produces a session.
func (o *Orchestrator) Register(ctx context.Context, in RegisterInput) (_ *IssuedSession, err error) {
	defer func(start time.Time) { o.observe(ctx, "register", start, err) }(time.Now())

	if err := in.Validate(); err != nil {
		return nil, err
	}

	digest, err := o.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").With("operation", "hash password").Wrap(err)
	}

	account := NewAccount(&in, digest)
	if err := o.deps.Accounts.Create(ctx, account); err != nil {
		return nil, oops.With("operation", "create account").Wrap(err)
	}

	o.deps.Logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"username", account.Username,
	)

	// The account stays even if minting fails; the caller can log in normally.
	return mintSession(ctx, &o.deps, account, in.SessionOptions())
}

// SessionOptions extracts the session attributes from a registration.
func (in *RegisterInput) SessionOptions() SessionOptions {
	return SessionOptions{RememberMe: in.RememberMe, UserAgent: in.UserAgent, IPAddress: in.IPAddress}
}

// Login verifies credentials and issues a session. With
// Config.UniformLoginErrors unset, unknown emails yield ErrAccountNotFound
// and wrong passwords ErrIncorrectPassword; when set, both yield
// ErrInvalidCredentials.
func (o *Orchestrator) Login(ctx context.Context, in LoginInput) (_ *IssuedSession, err error) {
	defer func(start time.Time) { o.observe(ctx, "login", start, err) }(time.Now())

	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, ValidationError(FieldEmail, "email is required")
	}
	if in.Password == "" {
		return nil, ValidationError("password", "password is required")
	}

	account, lookupErr := o.deps.Accounts.FindByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrAccountNotFound) {
		return nil, oops.With("operation", "find account by email").Wrap(lookupErr)
	}

	if account == nil {
		o.deps.Hasher.Verify(in.Password, o.dummyDigest)
		if o.cfg.UniformLoginErrors {
			return nil, oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code(CodeAccountNotFound).Wrap(ErrAccountNotFound)
	}

	// A locked account answers the same for every password so the lock
	// cannot confirm a guess, and guesses made while locked are not counted.
	now := o.deps.Clock()
	if account.IsLocked(now) {
		o.deps.Hasher.Verify(in.Password, o.dummyDigest)
		return nil, oops.Code(CodeAccountLocked).
			With("locked_until", account.LockedUntil).
			Wrap(ErrAccountLocked)
	}

	if !o.deps.Hasher.Verify(in.Password, account.PasswordHash) {
		o.recordLoginFailure(ctx, account.ID, now)
		if o.cfg.UniformLoginErrors {
			return nil, oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code(CodeIncorrectPassword).
			With("account_id", account.ID.String()).
			Wrap(ErrIncorrectPassword)
	}

	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := o.deps.Accounts.ClearFailedLogins(ctx, account.ID); err != nil {
			errutil.LogErrorContext(ctx, o.deps.Logger, "failed to clear login failures", err)
		}
		account.RecordSuccess()
	}

	if o.deps.Hasher.NeedsUpgrade(account.PasswordHash) {
		o.upgradeDigest(ctx, account, in.Password)
	}

	return mintSession(ctx, &o.deps, account, in.SessionOptions)
}

// recordLoginFailure counts a wrong password and locks the account once the
// stored count reaches the threshold. Store errors are logged; the caller
// still gets the credential error.
func (o *Orchestrator) recordLoginFailure(ctx context.Context, id ulid.ULID, now time.Time) {
	failures, err := o.deps.Accounts.IncrementFailedLogins(ctx, id, now)
	if err != nil {
		errutil.LogErrorContext(ctx, o.deps.Logger, "failed to record login failure", err)
		return
	}
	until := ComputeLockoutTime(failures, now)
	if until == nil {
		return
	}
	if err := o.deps.Accounts.LockUntil(ctx, id, *until); err != nil {
		errutil.LogErrorContext(ctx, o.deps.Logger, "failed to lock account", err)
		return
	}
	o.deps.Logger.WarnContext(ctx, "account locked after repeated login failures",
		"account_id", id.String(),
		"failed_attempts", failures,
		"locked_until", *until,
	)
}

func (o *Orchestrator) upgradeDigest(ctx context.Context, account *Account, password string) {
	digest, err := o.deps.Hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, o.deps.Logger, "failed to rehash password", err)
		return
	}
	if err := o.deps.Accounts.UpdatePassword(ctx, account.ID, digest); err != nil {
		errutil.LogErrorContext(ctx, o.deps.Logger, "failed to store upgraded password digest", err)
		return
	}
	account.PasswordHash = digest
	o.deps.Logger.InfoContext(ctx, "password digest upgraded", "account_id", account.ID.String())
}

// Authenticate checks token signature and expiry, then that its session is
// still live in the store. Both must pass.
func (o *Orchestrator) Authenticate(ctx context.Context, token string) (_ *Principal, err error) {
	defer func(start time.Time) { o.observe(ctx, "authenticate", start, err) }(time.Now())

	claims, err := o.deps.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	accountID, err := o.deps.Sessions.IsActive(ctx, token)
	if err != nil {
		return nil, err
	}
	if accountID.Compare(claims.AccountID) != 0 {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "session owner mismatch").Wrap(ErrTokenInvalid)
	}

	return &Principal{
		AccountID: claims.AccountID,
		SessionID: claims.SessionID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Logout revokes the session for token. Expired tokens are still revoked.
func (o *Orchestrator) Logout(ctx context.Context, token string) (err error) {
	defer func(start time.Time) { o.observe(ctx, "logout", start, err) }(time.Now())

	if _, err := o.deps.Tokens.Verify(token); err != nil && !errors.Is(err, ErrTokenExpired) {
		return err
	}
	if err := o.deps.Sessions.Invalidate(ctx, token); err != nil {
		return oops.With("operation", "invalidate session").Wrap(err)
	}
	return nil
}

// LogoutAll revokes every session of the token's account.
func (o *Orchestrator) LogoutAll(ctx context.Context, token string) (_ int64, err error) {
	defer func(start time.Time) { o.observe(ctx, "logout_all", start, err) }(time.Now())

	principal, err := o.Authenticate(ctx, token)
	if err != nil {
		return 0, err
	}
	n, err := o.deps.Sessions.InvalidateAll(ctx, principal.AccountID)
	if err != nil {
		return 0, oops.With("operation", "invalidate all sessions").Wrap(err)
	}
	o.deps.Logger.InfoContext(ctx, "all sessions revoked",
		"account_id", principal.AccountID.String(),
		"revoked_sessions", n,
	)
	return n, nil
}

// Me returns the account behind token.
func (o *Orchestrator) Me(ctx context.Context, token string) (*Account, error) {
	principal, err := o.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	account, err := o.deps.Accounts.FindByID(ctx, principal.AccountID)
	if err != nil {
		return nil, oops.With("operation", "find account by id").Wrap(err)
	}
	return account, nil
}

// RequestReset starts the reset flow for email.
func (o *Orchestrator) RequestReset(ctx context.Context, email string) (err error) {
	defer func(start time.Time) { o.observe(ctx, "reset_request", start, err) }(time.Now())
	return o.resets.RequestReset(ctx, email)
}

// VerifyReset checks a reset code without consuming it.
func (o *Orchestrator) VerifyReset(ctx context.Context, email, code string) (_ bool, err error) {
	defer func(start time.Time) { o.observe(ctx, "reset_verify", start, err) }(time.Now())
	return o.resets.VerifyCode(ctx, email, code)
}

// CompleteReset sets a new password with a reset code and logs the caller in.
func (o *Orchestrator) CompleteReset(ctx context.Context, in CompleteResetInput) (_ *IssuedSession, err error) {
	defer func(start time.Time) { o.observe(ctx, "reset_complete", start, err) }(time.Now())
	return o.resets.CompleteReset(ctx, in)
}

// Sweep removes expired sessions and reset challenges. Both deletes are
// attempted even if the first fails; errors are combined.
func (o *Orchestrator) Sweep(ctx context.Context) (sessions, challenges int64, err error) {
	var errs []error
	sessions, sessErr := o.deps.Sessions.DeleteExpired(ctx)
	if sessErr != nil {
		sessions = 0
		errs = append(errs, oops.With("operation", "delete expired sessions").Wrap(sessErr))
	}
	challenges, chalErr := o.resets.PurgeExpired(ctx)
	if chalErr != nil {
		challenges = 0
		errs = append(errs, chalErr)
	}
	return sessions, challenges, errors.Join(errs...)
}
