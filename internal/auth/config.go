// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"time"

	"github.com/samber/oops"
)

// Config holds the auth policy. The database pool is not part of it; the
// composition root builds repositories from the pool and passes them in Deps.
type Config struct {
	SigningKey         string        `koanf:"signing_key"`
	Issuer             string        `koanf:"issuer"`
	TokenTTLShort      time.Duration `koanf:"token_ttl_short"`
	TokenTTLLong       time.Duration `koanf:"token_ttl_long"`
	ResetCodeTTL       time.Duration `koanf:"reset_code_ttl"`
	ResetCodeDigits    int           `koanf:"reset_code_digits"`
	MaxCodeAttempts    int           `koanf:"max_code_attempts"`
	UniformLoginErrors bool          `koanf:"uniform_login_errors"`
	Hasher             HasherParams  `koanf:"hasher"`
}

// DefaultConfig returns the default policy. SigningKey must still be set.
func DefaultConfig() Config {
	return Config{
		Issuer:          "recipebox",
		TokenTTLShort:   time.Hour,
		TokenTTLLong:    7 * 24 * time.Hour,
		ResetCodeTTL:    15 * time.Minute,
		ResetCodeDigits: 4,
		MaxCodeAttempts: 5,
		Hasher:          DefaultHasherParams(),
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if len(c.SigningKey) < MinSigningKeyLength {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.signing_key").
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if c.TokenTTLShort <= 0 || c.TokenTTLLong < c.TokenTTLShort {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.token_ttl").
			Errorf("token TTLs must be positive and long >= short")
	}
	if c.ResetCodeTTL <= 0 || c.ResetCodeTTL > time.Hour {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.reset_code_ttl").
			Errorf("reset code TTL must be between 0 and 1h, got %s", c.ResetCodeTTL)
	}
	if c.ResetCodeDigits < 4 || c.ResetCodeDigits > 10 {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.reset_code_digits").
			Errorf("reset code width must be between 4 and 10")
	}
	if c.MaxCodeAttempts < 1 {
		return oops.Code("CONFIG_INVALID").
			With("field", "auth.max_code_attempts").
			Errorf("max code attempts must be positive")
	}
	if err := c.Hasher.Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "auth.hasher").Errorf("invalid hasher parameters: %v", err)
	}
	return nil
}
