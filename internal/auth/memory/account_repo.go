// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process AccountRepository for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// AccountRepository implements auth.AccountRepository in memory.
// Accounts are copied on the way in and out so callers never share state.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]auth.Account
	byEmail map[string]ulid.ULID
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[ulid.ULID]auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new account.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[account.Email]; exists {
		return oops.Code("ACCOUNT_DUPLICATE_EMAIL").
			With("email", account.Email).
			Wrap(auth.ErrDuplicateEmail)
	}
	if _, exists := r.byID[account.ID]; exists {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("id", account.ID.String()).
			Errorf("account id already exists")
	}
	if account.Version == 0 {
		account.Version = 1
	}

	r.byID[account.ID] = *account
	r.byEmail[account.Email] = account.ID
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return &account, nil
}

// GetByEmail retrieves an account by exact email.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	account := r.byID[id]
	return &account, nil
}

// Save replaces the stored account if its version still matches.
func (r *AccountRepository) Save(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[account.ID]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	if stored.Version != account.Version {
		return oops.Code("ACCOUNT_VERSION_CONFLICT").
			With("id", account.ID.String()).
			With("expected_version", account.Version).
			With("stored_version", stored.Version).
			Wrap(auth.ErrConflict)
	}

	next := *account
	next.Verified = stored.Verified || account.Verified
	next.Email = stored.Email
	next.CreatedAt = stored.CreatedAt
	next.Version = stored.Version + 1

	r.byID[account.ID] = next
	account.Version = next.Version
	account.Verified = next.Verified
	return nil
}

// Ping always succeeds.
func (r *AccountRepository) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
