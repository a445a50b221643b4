// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrChallengeNotFound is returned by ResetChallengeStore when an account
// has no live challenge. It never leaves this package unconverted.
var ErrChallengeNotFound = errors.New("reset challenge not found")

// ResetChallenge is the one-time code state for an account. At most one
// exists per account; a new request overwrites the previous one.
type ResetChallenge struct {
	AccountID   ulid.ULID
	CodeHash    string
	Attempts    int
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// NewResetChallenge builds a challenge valid for ttl from now.
func NewResetChallenge(accountID ulid.ULID, codeHash string, now time.Time, ttl time.Duration) (*ResetChallenge, error) {
	if isZeroID(accountID) {
		return nil, oops.Code("RESET_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if codeHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("code hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("ttl must be positive")
	}
	return &ResetChallenge{
		AccountID:   accountID,
		CodeHash:    codeHash,
		GeneratedAt: now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// IsExpiredAt returns true if the challenge is no longer valid at t.
func (c *ResetChallenge) IsExpiredAt(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}

// ResetChallengeStore persists reset challenges keyed by account.
type ResetChallengeStore interface {
	// Upsert stores challenge, replacing any existing one for the account.
	Upsert(ctx context.Context, challenge *ResetChallenge) error

	// Get returns ErrChallengeNotFound when the account has no challenge.
	Get(ctx context.Context, accountID ulid.ULID) (*ResetChallenge, error)

	// IncrementAttempts bumps the failed-attempt counter and returns its new value.
	IncrementAttempts(ctx context.Context, accountID ulid.ULID) (int, error)

	// Redeem deletes the challenge and sets the account's password digest in
	// one atomic step, only if codeHash matches and the challenge has not
	// expired at now. Reports whether the code was redeemed; on false or
	// error neither change is made.
	Redeem(ctx context.Context, accountID ulid.ULID, codeHash string, now time.Time, passwordHash string) (bool, error)

	// Delete removes the challenge for the account, if any.
	Delete(ctx context.Context, accountID ulid.ULID) error

	// DeleteExpired removes challenges that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CodeGenerator produces fixed-width numeric reset codes.
type CodeGenerator interface {
	Generate(digits int) (string, error)
}

// RandomCodeGenerator draws codes uniformly from crypto/rand.
type RandomCodeGenerator struct{}

var _ CodeGenerator = RandomCodeGenerator{}

// Generate returns a zero-padded code of the given width.
func (RandomCodeGenerator) Generate(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", oops.Code("RESET_CODE_INVALID_WIDTH").With("digits", digits).Errorf("code width must be between 4 and 10")
	}
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", oops.Code("RESET_CODE_GENERATE_FAILED").With("operation", "crypto/rand.Int").Wrap(err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// Message is an outbound notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages out of band.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// hashResetCode keys the code digest by account and a server secret so a
// leaked table cannot be brute-forced across the small code space offline.
func hashResetCode(secret []byte, accountID ulid.ULID, code string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(accountID.String()))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func isNumericCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
