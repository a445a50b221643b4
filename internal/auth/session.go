// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session is one issued bearer token tracked server-side. The raw token is
// never stored; TokenHash is its SHA-256.
type Session struct {
	ID         ulid.ULID
	AccountID  ulid.ULID
	TokenHash  string
	RememberMe bool
	UserAgent  string
	IPAddress  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// NewSession builds a Session for an issued token.
// UserAgent and IPAddress are optional.
func NewSession(token *Token, rememberMe bool, userAgent, ipAddress string) (*Session, error) {
	if token == nil || token.Value == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("token cannot be empty")
	}
	if isZeroID(token.Claims.AccountID) {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if isZeroID(token.Claims.SessionID) {
		return nil, oops.Code("SESSION_INVALID_ID").Errorf("session ID cannot be zero")
	}
	if !token.Claims.ExpiresAt.After(token.Claims.IssuedAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after issue time")
	}

	return &Session{
		ID:         token.Claims.SessionID,
		AccountID:  token.Claims.AccountID,
		TokenHash:  HashToken(token.Value),
		RememberMe: rememberMe,
		UserAgent:  truncate(userAgent, 512),
		IPAddress:  truncate(ipAddress, 64),
		IssuedAt:   token.Claims.IssuedAt,
		ExpiresAt:  token.Claims.ExpiresAt,
	}, nil
}

// IsExpiredAt returns true if the session is no longer valid at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// HashToken computes the SHA-256 hex digest used to look tokens up.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyTokenHash checks a raw token against a stored hash in constant time.
func VerifyTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}

// SessionStore persists issued tokens for revocation-capable auth.
type SessionStore interface {
	// Persist stores a new session.
	Persist(ctx context.Context, session *Session) error

	// IsActive returns the owning account if a session for token exists and
	// has not expired. Missing sessions yield ErrTokenInvalid, expired ones
	// ErrTokenExpired.
	IsActive(ctx context.Context, token string) (ulid.ULID, error)

	// Invalidate removes the session for token. Unknown tokens are not an error.
	Invalidate(ctx context.Context, token string) error

	// InvalidateAll removes every session of an account.
	InvalidateAll(ctx context.Context, accountID ulid.ULID) (int64, error)

	// DeleteExpired removes sessions whose expiry has passed.
	DeleteExpired(ctx context.Context) (int64, error)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
