// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/samber/oops"

	"github.com/recipebox/recipebox/pkg/errutil"
)

// CompleteResetInput is the payload for finishing a password reset.
type CompleteResetInput struct {
	Email       string
	Code        string
	NewPassword string
	SessionOptions
}

// ResetCodeService runs the out-of-band password reset flow with short
// numeric codes.
type ResetCodeService struct {
	deps   Deps
	cfg    Config
	secret []byte
}

// NewResetCodeService creates a ResetCodeService.
func NewResetCodeService(deps Deps, cfg Config) (*ResetCodeService, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	deps.applyDefaults()
	return &ResetCodeService{deps: deps, cfg: cfg, secret: []byte(cfg.SigningKey)}, nil
}

func resetLimitKey(email string) string {
	return "reset:" + email
}

// RequestReset generates a code for the account with email, stores it
// (replacing any earlier one) and sends it through the Notifier. Unknown
// emails get the same result and the same rate limit as known ones, but
// skip the store write and the send, so response time still differs.
func (s *ResetCodeService) RequestReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}

	allowed, err := s.deps.Limiter.Allow(ctx, resetLimitKey(email), ResetRequestLimit, ResetRequestWindow)
	if err != nil {
		return StoreUnavailable("check reset rate limit", err)
	}
	if !allowed {
		return oops.Code(CodeRateLimited).
			With("window", ResetRequestWindow.String()).
			Wrap(ErrRateLimited)
	}

	code, err := s.deps.Codes.Generate(s.cfg.ResetCodeDigits)
	if err != nil {
		return oops.With("operation", "generate reset code").Wrap(err)
	}

	account, err := s.deps.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.deps.Logger.DebugContext(ctx, "reset requested for unknown email")
			return nil
		}
		return oops.With("operation", "find account by email").Wrap(err)
	}

	challenge, err := NewResetChallenge(account.ID, hashResetCode(s.secret, account.ID, code), s.deps.Clock(), s.cfg.ResetCodeTTL)
	if err != nil {
		return oops.With("operation", "build reset challenge").Wrap(err)
	}
	if err := s.deps.Challenges.Upsert(ctx, challenge); err != nil {
		return oops.With("operation", "store reset challenge").With("account_id", account.ID.String()).Wrap(err)
	}

	msg := Message{
		To:      account.Email,
		Subject: "Your RecipeBox password reset code",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour password reset code is %s. It expires in %d minutes.\n\nIf you did not ask to reset your password you can ignore this message.\n",
			account.Username, code, int(s.cfg.ResetCodeTTL.Minutes()),
		),
	}
	if sendErr := s.deps.Notifier.Send(ctx, msg); sendErr != nil {
		// A code the user can never receive must not stay redeemable.
		if delErr := s.deps.Challenges.Delete(ctx, account.ID); delErr != nil {
			errutil.LogError(s.deps.Logger, "failed to remove undelivered reset challenge", delErr)
		}
		return oops.Code(CodeDeliveryFailed).
			With("operation", "send reset code").
			With("account_id", account.ID.String()).
			Wrap(errors.Join(ErrDeliveryFailed, sendErr))
	}

	s.deps.Logger.InfoContext(ctx, "password reset code issued",
		"account_id", account.ID.String(),
		"expires_at", challenge.ExpiresAt,
	)
	return nil
}

// VerifyCode reports whether code is the live code for email. It does not
// consume the challenge. Wrong, expired and unknown cases all return false
// without error; only infrastructure failures return an error.
func (s *ResetCodeService) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	_, _, err := s.check(ctx, NormalizeEmail(email), code)
	if err != nil {
		if errors.Is(err, ErrInvalidResetCode) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CompleteReset re-validates the code, consumes the challenge and sets the
// new password together, revokes existing sessions and logs the caller in.
func (s *ResetCodeService) CompleteReset(ctx context.Context, in CompleteResetInput) (*IssuedSession, error) {
	email := NormalizeEmail(in.Email)
	if email == "" {
		return nil, ValidationError(FieldEmail, "email is required")
	}
	if in.Code == "" {
		return nil, ValidationError("code", "code is required")
	}
	if err := ValidatePassword(in.NewPassword); err != nil {
		return nil, err
	}

	account, codeHash, err := s.check(ctx, email, in.Code)
	if err != nil {
		return nil, err
	}

	digest, err := s.deps.Hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").With("operation", "hash new password").Wrap(err)
	}

	redeemed, err := s.deps.Challenges.Redeem(ctx, account.ID, codeHash, s.deps.Clock(), digest)
	if err != nil {
		return nil, oops.With("operation", "redeem reset code").With("account_id", account.ID.String()).Wrap(err)
	}
	if !redeemed {
		// Lost a race with a concurrent completion or the code just expired.
		return nil, invalidResetCode()
	}

	if revoked, err := s.deps.Sessions.InvalidateAll(ctx, account.ID); err != nil {
		errutil.LogError(s.deps.Logger, "failed to revoke sessions after password reset", err)
	} else {
		s.deps.Logger.InfoContext(ctx, "password reset completed",
			"account_id", account.ID.String(),
			"revoked_sessions", revoked,
		)
	}
	if err := s.deps.Limiter.Reset(ctx, resetLimitKey(email)); err != nil {
		errutil.LogError(s.deps.Logger, "failed to clear reset rate limit", err)
	}
	if account.FailedAttempts > 0 || account.LockedUntil != nil {
		if err := s.deps.Accounts.ClearFailedLogins(ctx, account.ID); err != nil {
			errutil.LogError(s.deps.Logger, "failed to clear lockout after password reset", err)
		}
	}

	return mintSession(ctx, &s.deps, account, in.SessionOptions)
}

// PurgeExpired removes expired challenges.
func (s *ResetCodeService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.deps.Challenges.DeleteExpired(ctx, s.deps.Clock())
	if err != nil {
		return 0, oops.With("operation", "purge expired reset challenges").Wrap(err)
	}
	return n, nil
}

// check resolves the account and validates code against its challenge.
// Every mismatch path yields the same invalidResetCode error. A wrong guess
// counts against the challenge and destroys it once MaxCodeAttempts is hit.
func (s *ResetCodeService) check(ctx context.Context, email, code string) (*Account, string, error) {
	if !isNumericCode(code, s.cfg.ResetCodeDigits) {
		return nil, "", invalidResetCode()
	}

	account, err := s.deps.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, "", invalidResetCode()
		}
		return nil, "", oops.With("operation", "find account by email").Wrap(err)
	}

	challenge, err := s.deps.Challenges.Get(ctx, account.ID)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return nil, "", invalidResetCode()
		}
		return nil, "", oops.With("operation", "get reset challenge").Wrap(err)
	}

	if challenge.IsExpiredAt(s.deps.Clock()) {
		return nil, "", invalidResetCode()
	}

	codeHash := hashResetCode(s.secret, account.ID, code)
	if subtle.ConstantTimeCompare([]byte(codeHash), []byte(challenge.CodeHash)) != 1 {
		s.recordWrongCode(ctx, account)
		return nil, "", invalidResetCode()
	}

	return account, codeHash, nil
}

func (s *ResetCodeService) recordWrongCode(ctx context.Context, account *Account) {
	attempts, err := s.deps.Challenges.IncrementAttempts(ctx, account.ID)
	if err != nil {
		errutil.LogError(s.deps.Logger, "failed to count wrong reset code", err)
		return
	}
	if attempts < s.cfg.MaxCodeAttempts {
		return
	}
	if err := s.deps.Challenges.Delete(ctx, account.ID); err != nil {
		errutil.LogError(s.deps.Logger, "failed to destroy exhausted reset challenge", err)
		return
	}
	s.deps.Logger.WarnContext(ctx, "reset challenge destroyed after too many wrong codes",
		"account_id", account.ID.String(),
		"attempts", attempts,
	)
}

func invalidResetCode() error {
	return oops.Code(CodeInvalidResetCode).Wrap(ErrInvalidResetCode)
}

