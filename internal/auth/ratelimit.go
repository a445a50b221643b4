// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"time"
)

// Login lockout policy.
const (
	// LockoutDuration is the time an account is locked after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of consecutive failures that triggers a lockout.
	LockoutThreshold = 7
)

// Reset request throttling policy.
const (
	// ResetRequestLimit is the number of reset requests allowed per email per window.
	ResetRequestLimit = 5

	// ResetRequestWindow is the throttling window for reset requests.
	ResetRequestWindow = 15 * time.Minute
)

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// ComputeLockoutTime returns the lockout deadline for the given failure count,
// or nil below the threshold.
func ComputeLockoutTime(failures int, now time.Time) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := now.Add(LockoutDuration)
	return &lockout
}

// ResetOnSuccess returns the values to store after a successful login.
func ResetOnSuccess() (int, *time.Time) {
	return 0, nil
}

// AttemptLimiter counts attempts per key inside a fixed window.
// Implementations live in internal/ratelimit (in-memory and Redis).
type AttemptLimiter interface {
	// Allow records one attempt for key and reports whether it is within
	// limit attempts per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// Reset forgets all attempts recorded for key.
	Reset(ctx context.Context, key string) error
}

// noLimit allows everything. Used when no limiter is configured.
type noLimit struct{}

func (noLimit) Allow(context.Context, string, int, time.Duration) (bool, error) { return true, nil }
func (noLimit) Reset(context.Context, string) error                           { return nil }
