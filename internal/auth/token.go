// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinSigningKeyLength is the minimum HMAC key size in bytes.
const MinSigningKeyLength = 32

// TTL selects the lifetime class of an issued token.
type TTL int

const (
	// TTLShort is the default lifetime (about an hour).
	TTLShort TTL = iota
	// TTLLong is the "remember me" lifetime (about a week).
	TTLLong
)

// TTLFor maps the "remember me" choice to a TTL class.
func TTLFor(rememberMe bool) TTL {
	if rememberMe {
		return TTLLong
	}
	return TTLShort
}

func (t TTL) String() string {
	if t == TTLLong {
		return "long"
	}
	return "short"
}

// Claims is the identity carried inside a signed token.
type Claims struct {
	AccountID ulid.ULID
	SessionID ulid.ULID
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is a signed bearer token and the claims it encodes.
type Token struct {
	Value  string
	Claims Claims
}

// TokenIssuer creates and verifies self-describing bearer tokens.
type TokenIssuer interface {
	// Issue signs a token for accountID. SessionID is generated when zero;
	// IssuedAt and ExpiresAt are always set by the issuer.
	Issue(accountID ulid.ULID, claims Claims, ttl TTL) (*Token, error)

	// Verify checks signature and expiry. Returns ErrTokenExpired for an
	// expired but otherwise valid token and ErrTokenInvalid for anything else.
	Verify(token string) (*Claims, error)
}

type jwtClaims struct {
	Username string `json:"usr,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer implements TokenIssuer with HS256 JWTs.
type JWTIssuer struct {
	key      []byte
	issuer   string
	shortTTL time.Duration
	longTTL  time.Duration
	now      func() time.Time
}

var _ TokenIssuer = (*JWTIssuer)(nil)

// JWTIssuerOption configures a JWTIssuer.
type JWTIssuerOption func(*JWTIssuer)

// WithClock overrides the issuer's time source.
func WithClock(now func() time.Time) JWTIssuerOption {
	return func(i *JWTIssuer) {
		i.now = now
	}
}

// NewJWTIssuer creates an issuer signing with key.
func NewJWTIssuer(key []byte, issuer string, shortTTL, longTTL time.Duration, opts ...JWTIssuerOption) (*JWTIssuer, error) {
	if len(key) < MinSigningKeyLength {
		return nil, oops.Code("TOKEN_ISSUER_INVALID").
			With("min_length", MinSigningKeyLength).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if shortTTL <= 0 || longTTL < shortTTL {
		return nil, oops.Code("TOKEN_ISSUER_INVALID").
			With("short_ttl", shortTTL).
			With("long_ttl", longTTL).
			Errorf("token TTLs must be positive and long >= short")
	}
	i := &JWTIssuer{
		key:      key,
		issuer:   issuer,
		shortTTL: shortTTL,
		longTTL:  longTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Lifetime returns the duration for a TTL class.
func (i *JWTIssuer) Lifetime(ttl TTL) time.Duration {
	if ttl == TTLLong {
		return i.longTTL
	}
	return i.shortTTL
}

// Issue signs a new token.
func (i *JWTIssuer) Issue(accountID ulid.ULID, claims Claims, ttl TTL) (*Token, error) {
	if isZeroID(accountID) {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").Errorf("account ID cannot be zero")
	}

	claims.AccountID = accountID
	if isZeroID(claims.SessionID) {
		claims.SessionID = ulid.Make()
	}
	// JWT NumericDate has second precision; truncate so the returned claims
	// round-trip exactly through Verify.
	claims.IssuedAt = i.now().UTC().Truncate(time.Second)
	claims.ExpiresAt = claims.IssuedAt.Add(i.Lifetime(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Username: claims.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   accountID.String(),
			ID:        claims.SessionID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(i.key)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("operation", "sign token").Wrap(err)
	}
	return &Token{Value: signed, Claims: claims}, nil
}

// Verify parses and validates a token.
func (i *JWTIssuer) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "empty").Wrap(ErrTokenInvalid)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(*jwt.Token) (any, error) {
		return i.key, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).Wrap(ErrTokenExpired)
		}
		return nil, oops.Code(CodeTokenInvalid).With("reason", err.Error()).Wrap(ErrTokenInvalid)
	}

	jc, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "claims").Wrap(ErrTokenInvalid)
	}

	accountID, err := ulid.ParseStrict(jc.Subject)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "subject").Wrap(ErrTokenInvalid)
	}
	sessionID, err := ulid.ParseStrict(jc.ID)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).With("reason", "jti").Wrap(ErrTokenInvalid)
	}

	claims := &Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Username:  jc.Username,
		ExpiresAt: jc.ExpiresAt.Time.UTC(),
	}
	if jc.IssuedAt != nil {
		claims.IssuedAt = jc.IssuedAt.Time.UTC()
	}
	return claims, nil
}
