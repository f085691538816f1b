// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides the PostgreSQL AccountRepository.
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

	"github.com/holomush/accounts/internal/auth"
)

// DBTX is the subset of pgxpool.Pool used by the repository.
// pgxmock.PgxPoolIface satisfies it for unit tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const accountColumns = `id, display_name, email, credential_hash, verified,
		       email_otp_code, email_otp_expires_at,
		       reset_otp_code, reset_otp_expires_at,
		       version, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	if account.Version == 0 {
		account.Version = 1
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (
			id, display_name, email, credential_hash, verified,
			email_otp_code, email_otp_expires_at,
			reset_otp_code, reset_otp_expires_at,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		account.ID.String(),
		account.DisplayName,
		account.Email,
		account.CredentialHash,
		account.Verified,
		account.EmailOTP.Code,
		expiryArg(account.EmailOTP),
		account.ResetOTP.Code,
		expiryArg(account.ResetOTP),
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE_EMAIL").
				With("email", account.Email).
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by exact email. No case folding is applied.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// Save writes account guarded by its version. The verified flag is OR-ed
// with the stored value so it can never be cleared.
func (r *AccountRepository) Save(ctx context.Context, account *auth.Account) error {
	var (
		version  int64
		verified bool
	)
	err := r.db.QueryRow(ctx, `
		UPDATE accounts SET
			display_name = $3,
			credential_hash = $4,
			verified = verified OR $5,
			email_otp_code = $6,
			email_otp_expires_at = $7,
			reset_otp_code = $8,
			reset_otp_expires_at = $9,
			version = version + 1,
			updated_at = $10
		WHERE id = $1 AND version = $2
		RETURNING version, verified
	`,
		account.ID.String(),
		account.Version,
		account.DisplayName,
		account.CredentialHash,
		account.Verified,
		account.EmailOTP.Code,
		expiryArg(account.EmailOTP),
		account.ResetOTP.Code,
		expiryArg(account.ResetOTP),
		account.UpdatedAt,
	).Scan(&version, &verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missedSave(ctx, account)
	}
	if err != nil {
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "update account").
			With("id", account.ID.String()).
			Wrap(err)
	}

	account.Version = version
	account.Verified = verified
	return nil
}

// missedSave explains why a guarded update matched no row.
func (r *AccountRepository) missedSave(ctx context.Context, account *auth.Account) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`,
		account.ID.String()).Scan(&exists)
	if err != nil {
		return oops.Code("ACCOUNT_SAVE_FAILED").
			With("operation", "check account exists").
			With("id", account.ID.String()).
			Wrap(err)
	}
	if !exists {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return oops.Code("ACCOUNT_VERSION_CONFLICT").
		With("id", account.ID.String()).
		With("expected_version", account.Version).
		Wrap(auth.ErrConflict)
}

// Ping checks database connectivity.
func (r *AccountRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return oops.Code("ACCOUNT_STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr          string
		account        auth.Account
		emailOTPExpiry *time.Time
		resetOTPExpiry *time.Time
	)

	err := row.Scan(
		&idStr,
		&account.DisplayName,
		&account.Email,
		&account.CredentialHash,
		&account.Verified,
		&account.EmailOTP.Code,
		&emailOTPExpiry,
		&account.ResetOTP.Code,
		&resetOTPExpiry,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").
			With("operation", "scan account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("operation", "parse account id").
			With("id", idStr).
			Wrap(err)
	}
	account.ID = id

	if emailOTPExpiry != nil {
		account.EmailOTP.ExpiresAt = emailOTPExpiry.UTC()
	}
	if resetOTPExpiry != nil {
		account.ResetOTP.ExpiresAt = resetOTPExpiry.UTC()
	}
	return &account, nil
}

// expiryArg stores an empty slot's expiry as NULL.
func expiryArg(otp auth.OTP) *time.Time {
	if otp.IsEmpty() {
		return nil
	}
	t := otp.ExpiresAt
	return &t
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
