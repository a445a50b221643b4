// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Sentinel errors for the auth domain. Every error returned by this package
// wraps exactly one of these (or a DuplicateFieldError) so callers can match
// with errors.Is / errors.As regardless of the surrounding oops context.
var (
	ErrValidation         = errors.New("validation failed")
	ErrAccountNotFound    = errors.New("account not found")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrRateLimited        = errors.New("too many attempts, try again later")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
	ErrDeliveryFailed     = errors.New("reset code delivery failed")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// Error codes attached to the sentinels via oops.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeDuplicateField     = "DUPLICATE_FIELD"
	CodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	CodeIncorrectPassword  = "INCORRECT_PASSWORD"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidResetCode   = "INVALID_RESET_CODE"
	CodeDeliveryFailed     = "DELIVERY_FAILED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
)

// Fields that may collide on registration.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
	FieldPhone    = "phone"
)

// DuplicateFieldError reports which unique field collided on account creation.
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s is already registered", e.Field)
}

// DuplicateField builds a coded error for a unique-field collision.
func DuplicateField(field string) error {
	return oops.Code(CodeDuplicateField).
		With("field", field).
		Wrap(&DuplicateFieldError{Field: field})
}

// ValidationError builds a coded validation error for the given field.
func ValidationError(field, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return oops.Code(CodeValidation).
		With("field", field).
		Public(msg).
		Wrapf(ErrValidation, "%s", msg)
}

// StoreUnavailable wraps an infrastructure failure. The original error is kept
// in the chain for logging but never reaches API responses.
func StoreUnavailable(operation string, err error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Wrap(errors.Join(ErrStoreUnavailable, err))
}

// IsDuplicateField reports whether err is a DuplicateFieldError and returns the field.
func IsDuplicateField(err error) (string, bool) {
	var dup *DuplicateFieldError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}

// FieldOf extracts the "field" context value from a coded error, if present.
func FieldOf(err error) string {
	if field, ok := IsDuplicateField(err); ok {
		return field
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if field, ok := oopsErr.Context()["field"].(string); ok {
			return field
		}
	}
	return ""
}
