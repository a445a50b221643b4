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

// SessionRepository implements auth.SessionStore. Tokens are looked up by
// their SHA-256 hash; raw tokens never reach the database.
type SessionRepository struct {
	db  store.Querier
	now func() time.Time
}

// SessionOption configures a SessionRepository.
type SessionOption func(*SessionRepository)

// WithSessionClock overrides the clock used for expiry checks.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(r *SessionRepository) { r.now = now }
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db store.Querier, opts ...SessionOption) *SessionRepository {
	r := &SessionRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Persist stores session.
func (r *SessionRepository) Persist(ctx context.Context, session *auth.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, remember_me, user_agent, ip_address, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		session.ID.String(),
		session.AccountID.String(),
		session.TokenHash,
		session.RememberMe,
		session.UserAgent,
		session.IPAddress,
		session.IssuedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return auth.StoreUnavailable("insert session", err)
	}
	return nil
}

// IsActive returns the owner of token's session.
func (r *SessionRepository) IsActive(ctx context.Context, token string) (ulid.ULID, error) {
	var (
		accountIDStr string
		expiresAt    time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT account_id, expires_at FROM sessions WHERE token_hash = $1
	`, auth.HashToken(token)).Scan(&accountIDStr, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code(auth.CodeTokenInvalid).With("reason", "session revoked").Wrap(auth.ErrTokenInvalid)
	}
	if err != nil {
		return ulid.ULID{}, auth.StoreUnavailable("look up session", err)
	}

	if !r.now().Before(expiresAt) {
		return ulid.ULID{}, oops.Code(auth.CodeTokenExpired).With("expires_at", expiresAt).Wrap(auth.ErrTokenExpired)
	}

	accountID, err := ulid.Parse(accountIDStr)
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_INVALID_ACCOUNT").With("account_id", accountIDStr).Wrap(err)
	}
	return accountID, nil
}

// Invalidate deletes the session for token. Unknown tokens are a no-op.
func (r *SessionRepository) Invalidate(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, auth.HashToken(token)); err != nil {
		return auth.StoreUnavailable("delete session", err)
	}
	return nil
}

// InvalidateAll deletes every session of accountID.
func (r *SessionRepository) InvalidateAll(ctx context.Context, accountID ulid.ULID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID.String())
	if err != nil {
		return 0, auth.StoreUnavailable("delete account sessions", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired deletes sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, auth.StoreUnavailable("delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.SessionStore = (*SessionRepository)(nil)
