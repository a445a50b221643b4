// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipebox/recipebox/internal/auth"
	"github.com/recipebox/recipebox/pkg/errutil"
)

func TestDuplicateField(t *testing.T) {
	err := oops.With("operation", "create account").Wrap(auth.DuplicateField(auth.FieldUsername))

	field, ok := auth.IsDuplicateField(err)
	require.True(t, ok)
	assert.Equal(t, auth.FieldUsername, field)
	assert.Equal(t, auth.FieldUsername, auth.FieldOf(err))
	errutil.AssertErrorCode(t, err, auth.CodeDuplicateField)
	assert.Contains(t, err.Error(), "username is already registered")
}

func TestValidationError(t *testing.T) {
	err := auth.ValidationError("cooking_level", "cooking level must be one of %s", "a, b")

	require.ErrorIs(t, err, auth.ErrValidation)
	errutil.AssertErrorCode(t, err, auth.CodeValidation)
	assert.Equal(t, "cooking_level", auth.FieldOf(err))

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "cooking level must be one of a, b", oopsErr.Public())
}

func TestStoreUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := auth.StoreUnavailable("find account", cause)

	require.ErrorIs(t, err, auth.ErrStoreUnavailable)
	require.ErrorIs(t, err, cause)
	errutil.AssertErrorCode(t, err, auth.CodeStoreUnavailable)
	errutil.AssertErrorContext(t, err, "operation", "find account")
}

func TestFieldOf_NoField(t *testing.T) {
	assert.Empty(t, auth.FieldOf(errors.New("plain")))
	assert.Empty(t, auth.FieldOf(auth.ErrTokenInvalid))
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*auth.Config)
		field  string
	}{
		{"missing signing key", func(c *auth.Config) { c.SigningKey = "" }, "auth.signing_key"},
		{"zero short ttl", func(c *auth.Config) { c.TokenTTLShort = 0 }, "auth.token_ttl"},
		{"long below short", func(c *auth.Config) { c.TokenTTLLong = time.Minute }, "auth.token_ttl"},
		{"reset ttl over an hour", func(c *auth.Config) { c.ResetCodeTTL = 2 * time.Hour }, "auth.reset_code_ttl"},
		{"three digit codes", func(c *auth.Config) { c.ResetCodeDigits = 3 }, "auth.reset_code_digits"},
		{"zero attempts", func(c *auth.Config) { c.MaxCodeAttempts = 0 }, "auth.max_code_attempts"},
		{"bad hasher", func(c *auth.Config) { c.Hasher.KeyLen = 1 }, "auth.hasher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := auth.DefaultConfig()
	assert.Equal(t, time.Hour, cfg.TokenTTLShort)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTLLong)
	assert.Equal(t, 15*time.Minute, cfg.ResetCodeTTL)
	assert.Equal(t, 4, cfg.ResetCodeDigits)
	assert.False(t, cfg.UniformLoginErrors)
	assert.Empty(t, cfg.SigningKey, "signing key has no default")
}
