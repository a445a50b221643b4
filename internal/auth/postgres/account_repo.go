// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
	"github.com/recipebox/recipebox/internal/store"
)

// uniqueIndexFields maps the unique indexes on accounts to the field they guard.
var uniqueIndexFields = map[string]string{
	"accounts_email_key":    auth.FieldEmail,
	"accounts_username_key": auth.FieldUsername,
	"accounts_phone_key":    auth.FieldPhone,
}

const accountColumns = `id, username, email, phone, password_hash, full_name, gender,
	date_of_birth, country, profile_picture_url, food_preferences, cooking_level,
	failed_attempts, locked_until, created_at, updated_at`

// AccountRepository implements auth.CredentialStore.
type AccountRepository struct {
	db store.Querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db store.Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts account. A unique index collision is reported as a
// DuplicateFieldError naming the field; two concurrent registrations with
// the same email cannot both succeed.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	prefs := account.FoodPreferences
	if prefs == nil {
		prefs = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.Phone,
		account.PasswordHash,
		account.FullName,
		account.Gender,
		account.DateOfBirth,
		account.Country,
		account.ProfilePictureURL,
		prefs,
		account.CookingLevel,
		account.FailedAttempts,
		account.LockedUntil,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if field, ok := uniqueIndexFields[pgErr.ConstraintName]; ok {
			return auth.DuplicateField(field)
		}
	}
	return auth.StoreUnavailable("insert account", err)
}

// FindByID returns the account with id.
func (r *AccountRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).With("account_id", id.String()).Wrap(auth.ErrAccountNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("find account by id", err)
	}
	return account, nil
}

// FindByEmail returns the account with email, ignoring case.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("find account by email", err)
	}
	return account, nil
}

// FindByUsername returns the account with username, ignoring case.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(username) = LOWER($1)`, username)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeAccountNotFound).With("username", username).Wrap(auth.ErrAccountNotFound)
	}
	if err != nil {
		return nil, auth.StoreUnavailable("find account by username", err)
	}
	return account, nil
}

// UpdatePassword replaces the stored digest.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), passwordHash)
	if err != nil {
		return auth.StoreUnavailable("update password", err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeAccountNotFound).With("account_id", id.String()).Wrap(auth.ErrAccountNotFound)
	}
	return nil
}

// IncrementFailedLogins adds one failure in a single statement so
// concurrent wrong guesses cannot overwrite each other. A lockout that ended
// at or before now is cleared and the count restarts at one.
func (r *AccountRepository) IncrementFailedLogins(ctx context.Context, id ulid.ULID, now time.Time) (int, error) {
	var failures int
	err := r.db.QueryRow(ctx, `
		UPDATE accounts SET
			failed_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2
				THEN 1 ELSE failed_attempts + 1 END,
			locked_until = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2
				THEN NULL ELSE locked_until END,
			updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts
	`, id.String(), now).Scan(&failures)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code(auth.CodeAccountNotFound).With("account_id", id.String()).Wrap(auth.ErrAccountNotFound)
	}
	if err != nil {
		return 0, auth.StoreUnavailable("increment failed logins", err)
	}
	return failures, nil
}

// LockUntil sets the lockout deadline.
func (r *AccountRepository) LockUntil(ctx context.Context, id ulid.ULID, until time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET locked_until = $2, updated_at = now()
		WHERE id = $1
	`, id.String(), until)
	if err != nil {
		return auth.StoreUnavailable("lock account", err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeAccountNotFound).With("account_id", id.String()).Wrap(auth.ErrAccountNotFound)
	}
	return nil
}

// ClearFailedLogins resets the failure counter and lockout.
func (r *AccountRepository) ClearFailedLogins(ctx context.Context, id ulid.ULID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, id.String())
	if err != nil {
		return auth.StoreUnavailable("clear failed logins", err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(auth.CodeAccountNotFound).With("account_id", id.String()).Wrap(auth.ErrAccountNotFound)
	}
	return nil
}

// scanAccount reads one accounts row. pgx.ErrNoRows is returned unwrapped.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr   string
		account auth.Account
	)
	err := row.Scan(
		&idStr,
		&account.Username,
		&account.Email,
		&account.Phone,
		&account.PasswordHash,
		&account.FullName,
		&account.Gender,
		&account.DateOfBirth,
		&account.Country,
		&account.ProfilePictureURL,
		&account.FoodPreferences,
		&account.CookingLevel,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}
	return &account, nil
}

var _ auth.CredentialStore = (*AccountRepository)(nil)
