// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
	"github.com/recipebox/recipebox/internal/store"
)

// ResetChallengeRepository implements auth.ResetChallengeStore with one row
// per account.
type ResetChallengeRepository struct {
	db store.Querier
}

// NewResetChallengeRepository creates a new ResetChallengeRepository.
func NewResetChallengeRepository(db store.Querier) *ResetChallengeRepository {
	return &ResetChallengeRepository{db: db}
}

// Upsert stores challenge, overwriting the account's previous one and
// resetting its attempt counter.
func (r *ResetChallengeRepository) Upsert(ctx context.Context, challenge *auth.ResetChallenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reset_challenges (account_id, code_hash, attempts, generated_at, expires_at)
		VALUES ($1, $2, 0, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			attempts = 0,
			generated_at = EXCLUDED.generated_at,
			expires_at = EXCLUDED.expires_at
	`, challenge.AccountID.String(), challenge.CodeHash, challenge.GeneratedAt, challenge.ExpiresAt)
	if err != nil {
		return auth.StoreUnavailable("upsert reset challenge", err)
	}
	return nil
}

// Get returns the account's challenge.
func (r *ResetChallengeRepository) Get(ctx context.Context, accountID ulid.ULID) (*auth.ResetChallenge, error) {
	challenge := &auth.ResetChallenge{AccountID: accountID}
	err := r.db.QueryRow(ctx, `
		SELECT code_hash, attempts, generated_at, expires_at
		FROM reset_challenges
		WHERE account_id = $1
	`, accountID.String()).Scan(&challenge.CodeHash, &challenge.Attempts, &challenge.GeneratedAt, &challenge.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("account_id", accountID.String()).Wrap(auth.ErrChallengeNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("get reset challenge", err)
	}
	return challenge, nil
}

// IncrementAttempts counts one wrong code and returns the new total.
func (r *ResetChallengeRepository) IncrementAttempts(ctx context.Context, accountID ulid.ULID) (int, error) {
	var attempts int
	err := r.db.QueryRow(ctx, `
		UPDATE reset_challenges SET attempts = attempts + 1
		WHERE account_id = $1
		RETURNING attempts
	`, accountID.String()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.With("account_id", accountID.String()).Wrap(auth.ErrChallengeNotFound)
	}
	if err != nil {
		return 0, auth.StoreUnavailable("count wrong reset code", err)
	}
	return attempts, nil
}

// Redeem deletes the challenge if codeHash still matches and it is live at
// now, and sets the password digest in the same statement. Of two concurrent
// calls at most one sees true, and a failed update keeps the challenge.
func (r *ResetChallengeRepository) Redeem(ctx context.Context, accountID ulid.ULID, codeHash string, now time.Time, passwordHash string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		WITH consumed AS (
			DELETE FROM reset_challenges
			WHERE account_id = $1 AND code_hash = $2 AND expires_at > $3
			RETURNING account_id
		)
		UPDATE accounts SET password_hash = $4, updated_at = now()
		FROM consumed
		WHERE accounts.id = consumed.account_id
	`, accountID.String(), codeHash, now, passwordHash)
	if err != nil {
		return false, auth.StoreUnavailable("redeem reset code", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the account's challenge, if any.
func (r *ResetChallengeRepository) Delete(ctx context.Context, accountID ulid.ULID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM reset_challenges WHERE account_id = $1`, accountID.String()); err != nil {
		return auth.StoreUnavailable("delete reset challenge", err)
	}
	return nil
}

// DeleteExpired removes challenges that expired at or before now.
func (r *ResetChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reset_challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, auth.StoreUnavailable("delete expired reset challenges", err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.ResetChallengeStore = (*ResetChallengeRepository)(nil)
