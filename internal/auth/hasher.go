// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// HasherParams is the argon2id work factor.
type HasherParams struct {
	Time    uint32 `koanf:"time"`    // iterations
	Memory  uint32 `koanf:"memory"`  // KiB
	Threads uint8  `koanf:"threads"` // parallelism
	SaltLen uint32 `koanf:"salt_len"`
	KeyLen  uint32 `koanf:"key_len"`
}

// DefaultHasherParams returns the OWASP-recommended argon2id parameters.
func DefaultHasherParams() HasherParams {
	return HasherParams{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate rejects parameters argon2 cannot use.
func (p HasherParams) Validate() error {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return oops.Code("HASHER_INVALID_PARAMS").Errorf("argon2 time, memory and threads must be positive")
	}
	if p.SaltLen < 8 || p.KeyLen < 16 {
		return oops.Code("HASHER_INVALID_PARAMS").Errorf("argon2 salt must be >= 8 bytes and key >= 16 bytes")
	}
	return nil
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. Malformed digests
	// never match.
	Verify(password, digest string) bool

	// NeedsUpgrade reports whether digest should be re-hashed with the
	// current algorithm and parameters.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id, and verifies
// legacy bcrypt digests carried over from the previous service.
type Argon2idHasher struct {
	params HasherParams
}

var _ PasswordHasher = (*Argon2idHasher)(nil)

// NewArgon2idHasher creates a hasher with the given parameters.
func NewArgon2idHasher(params HasherParams) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces a PHC-format argon2id digest:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ValidationError("password", "password is required")
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("HASHER_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id or bcrypt digest.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}

	parsed, ok := parseArgon2id(digest)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.params.Time, parsed.params.Memory,
		parsed.params.Threads, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(computed, parsed.key) == 1
}

// NeedsUpgrade is true for bcrypt digests and for argon2id digests weaker
// than the configured parameters.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	parsed, ok := parseArgon2id(digest)
	if !ok {
		return true
	}
	p := parsed.params
	return p.Time < h.params.Time || p.Memory < h.params.Memory || p.Threads < h.params.Threads
}

type argon2idDigest struct {
	params HasherParams
	salt   []byte
	key    []byte
}

func parseArgon2id(digest string) (argon2idDigest, bool) {
	var out argon2idDigest

	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return out, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return out, false
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return out, false
	}
	if threads == 0 || threads > 255 || iterations == 0 || memory == 0 {
		return out, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return out, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > 1024 {
		return out, false
	}

	out.params = HasherParams{Time: iterations, Memory: memory, Threads: uint8(threads)}
	out.salt = salt
	out.key = key
	return out, true
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}
