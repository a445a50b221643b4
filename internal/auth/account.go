// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth

import (
	"context"
	"net/mail"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Username and profile constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxEmailLength    = 254
	MaxPasswordLength = 256
	MaxFullNameLength = 100
	MaxCountryLength  = 64
	MaxGenderLength   = 32
)

// DateOfBirthLayout is the wire format for Account.DateOfBirth.
const DateOfBirthLayout = "2006-01-02"

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	phoneRegex    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// CookingLevels lists the accepted cooking_level values.
var CookingLevels = []string{"beginner", "intermediate", "advanced", "professional"}

// FoodPreferences lists the accepted dietary/food preference tags.
var FoodPreferences = []string{
	"salad", "egg", "soup", "meat", "chicken", "seafood", "burger", "pizza",
	"sushi", "rice", "bread", "fruit", "vegetarian", "vegan", "gluten_free",
	"nut_free", "dairy_free", "low_carb", "peanut_free", "keto", "soy_free",
	"raw_food", "low_fat", "halal",
}

// Account is a registered user identity.
type Account struct {
	ID                ulid.ULID
	Username          string
	Email             string
	Phone             *string
	PasswordHash      string
	FullName          string
	Gender            string
	DateOfBirth       *time.Time
	Country           string
	ProfilePictureURL string
	FoodPreferences   []string
	CookingLevel      string
	FailedAttempts    int
	LockedUntil       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLocked returns true if the account is locked out at now.
func (a *Account) IsLocked(now time.Time) bool {
	return IsLockedOut(a.LockedUntil, now)
}

// RecordFailure counts one failed login at now and sets the lockout once the
// threshold is reached. A lockout that already ran out restarts the count.
func (a *Account) RecordFailure(now time.Time) {
	if a.LockedUntil != nil && !a.LockedUntil.After(now) {
		a.FailedAttempts, a.LockedUntil = ResetOnSuccess()
	}
	a.FailedAttempts++
	a.LockedUntil = ComputeLockoutTime(a.FailedAttempts, now)
}

// RecordSuccess clears the failure counter and lockout.
func (a *Account) RecordSuccess() {
	a.FailedAttempts, a.LockedUntil = ResetOnSuccess()
}

// CredentialStore persists accounts. Implementations enforce uniqueness of
// email, username and phone atomically and report collisions with
// DuplicateField.
type CredentialStore interface {
	// Create stores a new account. Returns a DuplicateFieldError on collision.
	Create(ctx context.Context, account *Account) error

	// FindByID returns ErrAccountNotFound when no account has the id.
	FindByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByUsername matches case-insensitively.
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// UpdatePassword replaces the password digest.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// IncrementFailedLogins atomically adds one failed login and returns the
	// new count. A lockout that ended at or before now is cleared first and
	// the count restarts at one.
	IncrementFailedLogins(ctx context.Context, id ulid.ULID, now time.Time) (int, error)

	// LockUntil sets the lockout deadline.
	LockUntil(ctx context.Context, id ulid.ULID, until time.Time) error

	// ClearFailedLogins resets the failure counter and removes any lockout.
	ClearFailedLogins(ctx context.Context, id ulid.ULID) error
}

// NormalizeEmail trims and lower-cases an email address. Email matching is
// case-insensitive everywhere in this package.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks length and character rules.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return ValidationError(FieldUsername, "username is required")
	case len(username) < MinUsernameLength:
		return ValidationError(FieldUsername, "username must be at least %d characters", MinUsernameLength)
	case len(username) > MaxUsernameLength:
		return ValidationError(FieldUsername, "username must be at most %d characters", MaxUsernameLength)
	case !usernameRegex.MatchString(username):
		return ValidationError(FieldUsername, "username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return ValidationError(FieldEmail, "email is required")
	}
	if len(email) > MaxEmailLength {
		return ValidationError(FieldEmail, "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ValidationError(FieldEmail, "email is not a valid address")
	}
	return nil
}

// ValidatePassword checks presence and an upper bound that keeps hashing cheap to refuse.
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError("password", "password is required")
	}
	if len(password) > MaxPasswordLength {
		return ValidationError("password", "password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// RegisterInput is the registration payload. Username, Email and Password
// are required; everything else is optional profile data.
type RegisterInput struct {
	Username          string
	Email             string
	Password          string
	Phone             string
	FullName          string
	Gender            string
	DateOfBirth       string
	Country           string
	ProfilePictureURL string
	FoodPreferences   []string
	CookingLevel      string
	RememberMe        bool
	UserAgent         string
	IPAddress         string
}

// Validate checks every field and returns the first violation.
func (in *RegisterInput) Validate() error {
	if err := ValidateUsername(in.Username); err != nil {
		return err
	}
	if err := ValidateEmail(NormalizeEmail(in.Email)); err != nil {
		return err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	if in.Phone != "" && !phoneRegex.MatchString(normalizePhone(in.Phone)) {
		return ValidationError(FieldPhone, "phone number must contain 7 to 15 digits")
	}
	if len(in.FullName) > MaxFullNameLength {
		return ValidationError("full_name", "full name must be at most %d characters", MaxFullNameLength)
	}
	if len(in.Gender) > MaxGenderLength {
		return ValidationError("gender", "gender must be at most %d characters", MaxGenderLength)
	}
	if len(in.Country) > MaxCountryLength {
		return ValidationError("country", "country must be at most %d characters", MaxCountryLength)
	}
	if in.DateOfBirth != "" {
		dob, err := time.Parse(DateOfBirthLayout, in.DateOfBirth)
		if err != nil {
			return ValidationError("date_of_birth", "date of birth must use YYYY-MM-DD")
		}
		if !dob.Before(time.Now()) {
			return ValidationError("date_of_birth", "date of birth must be in the past")
		}
	}
	if in.ProfilePictureURL != "" {
		u, err := url.Parse(in.ProfilePictureURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ValidationError("profile_picture_url", "profile picture URL must be an absolute http(s) URL")
		}
	}
	if in.CookingLevel != "" && !slices.Contains(CookingLevels, in.CookingLevel) {
		return ValidationError("cooking_level", "cooking level must be one of %s", strings.Join(CookingLevels, ", "))
	}
	for _, pref := range in.FoodPreferences {
		if !slices.Contains(FoodPreferences, pref) {
			return ValidationError("food_preferences", "unknown food preference %q", pref)
		}
	}
	return nil
}

// NewAccount builds an Account from validated input and a password digest.
func NewAccount(in *RegisterInput, passwordHash string) *Account {
	now := time.Now().UTC()
	account := &Account{
		ID:                ulid.Make(),
		Username:          in.Username,
		Email:             NormalizeEmail(in.Email),
		PasswordHash:      passwordHash,
		FullName:          in.FullName,
		Gender:            in.Gender,
		Country:           in.Country,
		ProfilePictureURL: in.ProfilePictureURL,
		FoodPreferences:   dedupe(in.FoodPreferences),
		CookingLevel:      in.CookingLevel,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Phone != "" {
		phone := normalizePhone(in.Phone)
		account.Phone = &phone
	}
	if in.DateOfBirth != "" {
		if dob, err := time.Parse(DateOfBirthLayout, in.DateOfBirth); err == nil {
			account.DateOfBirth = &dob
		}
	}
	return account
}

func isZeroID(id ulid.ULID) bool {
	return id.Compare(ulid.ULID{}) == 0
}

func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
