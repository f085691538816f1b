// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// emailRegex is a syntactic sanity check only: one @, no whitespace, a dot in the domain.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MaxDisplayNameLength bounds the display name in bytes.
const MaxDisplayNameLength = 128

// OTP is a pending one-time passcode. The zero value is an empty slot.
type OTP struct {
	Code      string
	ExpiresAt time.Time
}

// IsEmpty returns true if no code is pending.
func (o OTP) IsEmpty() bool {
	return o.Code == ""
}

// Matches compares code against the pending value in constant time.
// An empty slot never matches.
func (o OTP) Matches(code string) bool {
	if o.IsEmpty() || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(o.Code), []byte(code)) == 1
}

// Expired reports whether the code is no longer usable at now.
// A code is valid strictly before ExpiresAt.
func (o OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Account is the durable record of one registered identity.
type Account struct {
	ID             ulid.ULID
	DisplayName    string
	Email          string
	CredentialHash string
	Verified       bool
	EmailOTP       OTP
	ResetOTP       OTP
	// Version is bumped by every successful Save and guards concurrent writers.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount creates an unverified Account with a fresh ID.
// The credential hash must already be computed.
func NewAccount(displayName, email, credentialHash string, now time.Time) (*Account, error) {
	if err := ValidateDisplayName(displayName); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if credentialHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("credential hash cannot be empty")
	}
	return &Account{
		ID:             ulid.Make(),
		DisplayName:    displayName,
		Email:          email,
		CredentialHash: credentialHash,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ValidateEmail checks the basic syntactic shape of an address.
// The address is not normalized.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("invalid email format")
	}
	return nil
}

// ValidateDisplayName checks that a display name is present and bounded.
func ValidateDisplayName(name string) error {
	if name == "" {
		return oops.Code(CodeInvalidInput).With("field", "name").Errorf("name cannot be empty")
	}
	if len(name) > MaxDisplayNameLength {
		return oops.Code(CodeInvalidInput).
			With("field", "name").
			With("max", MaxDisplayNameLength).
			Errorf("name must be at most %d bytes", MaxDisplayNameLength)
	}
	return nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	// Returns ErrNotFound if no account has the given ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by exact email match.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Save writes account if the stored version still equals account.Version,
	// then increments account.Version. Returns ErrConflict otherwise.
	// Stores never let Verified go from true back to false.
	Save(ctx context.Context, account *Account) error

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
