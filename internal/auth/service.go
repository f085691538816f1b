// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultConflictRetries bounds how often a transition is re-run after losing
// an optimistic write.
const DefaultConflictRetries = 5

// dummyPasswordHash is verified when the email is unknown so that login time
// does not reveal whether an account exists. It never matches any password.
//
//nolint:gosec // G101: not a credential
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Session is the result of a successful register or login.
type Session struct {
	AccountID ulid.ULID
	Token     string
	ExpiresAt time.Time
}

// Profile is the public view of an account.
type Profile struct {
	Name     string
	Verified bool
}

// ServiceDeps are the collaborators of CredentialService.
type ServiceDeps struct {
	Accounts AccountRepository
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	OTPs     OTPGenerator
	Notifier Notifier
	Clock    Clock
	Logger   *slog.Logger
}

// ServiceConfig tunes CredentialService behavior.
type ServiceConfig struct {
	// Product names the service in notification messages.
	Product string
	// RevealUnknownAccounts makes Login report an unknown email as
	// UnknownAccount instead of BadCredential.
	RevealUnknownAccounts bool
	// ConflictRetries bounds re-runs after ErrConflict. Zero means DefaultConflictRetries.
	ConflictRetries uint64
}

// CredentialService implements the account credential and OTP lifecycle.
// It is the only writer of Account state.
type CredentialService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	otps     OTPGenerator
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
	messages Messages

	revealUnknown   bool
	conflictRetries uint64
}

// NewCredentialService creates a CredentialService.
// Returns an error if a required dependency is missing.
func NewCredentialService(deps ServiceDeps, cfg ServiceConfig) (*CredentialService, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Errorf("account repository is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("token issuer is required")
	case deps.OTPs == nil:
		return nil, oops.Errorf("otp generator is required")
	case deps.Notifier == nil:
		return nil, oops.Errorf("notifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	product := cfg.Product
	if product == "" {
		product = "Accounts"
	}
	retries := cfg.ConflictRetries
	if retries == 0 {
		retries = DefaultConflictRetries
	}

	return &CredentialService{
		accounts:        deps.Accounts,
		hasher:          deps.Hasher,
		tokens:          deps.Tokens,
		otps:            deps.OTPs,
		notifier:        deps.Notifier,
		clock:           clock,
		logger:          logger,
		messages:        Messages{Product: product},
		revealUnknown:   cfg.RevealUnknownAccounts,
		conflictRetries: retries,
	}, nil
}

// Register creates an unverified account and signs the caller in.
// If the welcome message cannot be sent the session is still returned,
// together with a NotificationFailed error for which IsPartial is true.
func (s *CredentialService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	if err := ValidateDisplayName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, oops.Code(CodeInvalidInput).With("field", "password").Errorf("password cannot be empty")
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, duplicateAccount(email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeUnavailable("get account by email", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(name, email, hash, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateAccount(email)
		}
		return nil, storeUnavailable("create account", err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())

	session, err := s.issue(account.ID)
	if err != nil {
		return nil, err
	}

	if err := s.notify(ctx, account.Email, s.messages.Welcome(account)); err != nil {
		return session, notificationFailed(TemplateWelcome, true, err)
	}
	return session, nil
}

// Login verifies the password for email and issues a session token.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("email and password are required")
	}

	account, lookupErr := s.accounts.GetByEmail(ctx, email)
	exists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, storeUnavailable("get account by email", lookupErr)
	}

	target := dummyPasswordHash
	if exists {
		target = account.CredentialHash
	}

	// Always verify so that response time does not depend on whether the account exists.
	valid, verifyErr := s.hasher.Verify(password, target)
	if verifyErr != nil {
		if exists {
			s.logger.WarnContext(ctx, "stored credential hash is malformed",
				"account_id", account.ID.String(),
				"error", verifyErr)
		}
		valid = false
	}

	if !exists {
		if s.revealUnknown {
			return nil, oops.Code(CodeUnknownAccount).With("email", email).Errorf("invalid email")
		}
		return nil, oops.Code(CodeBadCredential).Errorf("invalid email or password")
	}
	if !valid {
		if s.revealUnknown {
			return nil, oops.Code(CodeBadCredential).
				With("account_id", account.ID.String()).
				Errorf("invalid password")
		}
		return nil, oops.Code(CodeBadCredential).
			With("account_id", account.ID.String()).
			Errorf("invalid email or password")
	}

	return s.issue(account.ID)
}

// Logout acknowledges the end of a session. Tokens are stateless, so the
// caller discards the credential; an absent or invalid token is not an error.
func (s *CredentialService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if accountID, err := s.tokens.Validate(token); err == nil {
		s.logger.DebugContext(ctx, "session ended", "account_id", accountID.String())
	}
	return nil
}

// Authenticate returns the account a session token was issued to.
func (s *CredentialService) Authenticate(_ context.Context, token string) (ulid.ULID, error) {
	return s.tokens.Validate(token)
}

// Profile returns the public view of an account.
func (s *CredentialService) Profile(ctx context.Context, accountID ulid.ULID) (*Profile, error) {
	account, err := s.loadByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Profile{Name: account.DisplayName, Verified: account.Verified}, nil
}

// RequestEmailOTP stores a fresh verification code, replacing any pending one,
// and mails it to the account.
func (s *CredentialService) RequestEmailOTP(ctx context.Context, accountID ulid.ULID) error {
	var otp OTP
	account, err := s.update(ctx, "request email otp", func(ctx context.Context) (*Account, error) {
		account, err := s.loadByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if account.Verified {
			return nil, oops.Code(CodeAlreadyVerified).
				With("account_id", accountID.String()).
				Errorf("account is already verified")
		}
		if otp, err = s.otps.Generate(); err != nil {
			return nil, err
		}
		account.EmailOTP = otp
		return account, nil
	})
	if err != nil {
		return err
	}

	if err := s.notify(ctx, account.Email, s.messages.VerifyOTP(otp)); err != nil {
		return notificationFailed(TemplateVerifyOTP, false, err)
	}
	return nil
}

// ConsumeEmailOTP verifies the account if code matches the pending
// verification code and has not expired. The code is single use.
// A failed confirmation message yields a partial NotificationFailed error.
func (s *CredentialService) ConsumeEmailOTP(ctx context.Context, accountID ulid.ULID, code string) error {
	if code == "" {
		return oops.Code(CodeInvalidInput).With("field", "otp").Errorf("otp is required")
	}

	account, err := s.update(ctx, "consume email otp", func(ctx context.Context) (*Account, error) {
		account, err := s.loadByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if err := s.checkOTP(account.EmailOTP, code, accountID); err != nil {
			return nil, err
		}
		account.Verified = true
		account.EmailOTP = OTP{}
		return account, nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "account verified", "account_id", accountID.String())

	if err := s.notify(ctx, account.Email, s.messages.Verified(account)); err != nil {
		return notificationFailed(TemplateVerified, true, err)
	}
	return nil
}

// RequestPasswordResetOTP stores a fresh reset code for the account with
// email, replacing any pending one, and mails it.
func (s *CredentialService) RequestPasswordResetOTP(ctx context.Context, email string) error {
	if email == "" {
		return oops.Code(CodeInvalidInput).With("field", "email").Errorf("email is required")
	}

	var otp OTP
	account, err := s.update(ctx, "request reset otp", func(ctx context.Context) (*Account, error) {
		account, err := s.loadByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if otp, err = s.otps.Generate(); err != nil {
			return nil, err
		}
		account.ResetOTP = otp
		return account, nil
	})
	if err != nil {
		return err
	}

	if err := s.notify(ctx, account.Email, s.messages.ResetOTP(otp)); err != nil {
		return notificationFailed(TemplateResetOTP, false, err)
	}
	return nil
}

// ConsumePasswordReset replaces the credential if code matches the pending
// reset code and has not expired. The code is single use.
func (s *CredentialService) ConsumePasswordReset(ctx context.Context, email, code, newPassword string) error {
	if email == "" || code == "" || newPassword == "" {
		return oops.Code(CodeInvalidInput).Errorf("email, otp and new password are required")
	}

	// Hash before the read-modify-write so retries stay cheap.
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := s.update(ctx, "consume password reset", func(ctx context.Context) (*Account, error) {
		account, err := s.loadByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if err := s.checkOTP(account.ResetOTP, code, account.ID); err != nil {
			return nil, err
		}
		account.CredentialHash = hash
		account.ResetOTP = OTP{}
		return account, nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID.String())
	return nil
}

// checkOTP rejects an empty or mismatched code before considering expiry.
func (s *CredentialService) checkOTP(pending OTP, code string, accountID ulid.ULID) error {
	if !pending.Matches(code) {
		return oops.Code(CodeInvalidOTP).
			With("account_id", accountID.String()).
			Errorf("invalid otp")
	}
	if pending.Expired(s.clock.Now()) {
		return oops.Code(CodeOTPExpired).
			With("account_id", accountID.String()).
			With("expired_at", pending.ExpiresAt).
			Errorf("otp expired")
	}
	return nil
}

// update runs apply and saves the account it returns. A lost optimistic
// write re-runs apply against fresh state, so every precondition is
// re-evaluated after a concurrent change.
func (s *CredentialService) update(
	ctx context.Context,
	operation string,
	apply func(ctx context.Context) (*Account, error),
) (*Account, error) {
	var saved *Account
	backoff := retry.WithMaxRetries(s.conflictRetries, retry.WithJitter(time.Millisecond, retry.NewConstant(time.Millisecond)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		account, err := apply(ctx)
		if err != nil {
			return err
		}
		account.UpdatedAt = s.clock.Now()
		if err := s.accounts.Save(ctx, account); err != nil {
			if errors.Is(err, ErrConflict) {
				s.logger.DebugContext(ctx, "optimistic write lost, retrying",
					"operation", operation,
					"account_id", account.ID.String())
				return retry.RetryableError(err)
			}
			return storeUnavailable(operation, err)
		}
		saved = account
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, storeUnavailable(operation, err)
		}
		return nil, err
	}
	return saved, nil
}

func (s *CredentialService) loadByID(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUnknownAccount).With("account_id", id.String()).Errorf("account not found")
		}
		return nil, storeUnavailable("get account by id", err)
	}
	return account, nil
}

func (s *CredentialService) loadByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUnknownAccount).With("email", email).Errorf("account not found")
		}
		return nil, storeUnavailable("get account by email", err)
	}
	return account, nil
}

func (s *CredentialService) issue(accountID ulid.ULID) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(accountID)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return &Session{AccountID: accountID, Token: token, ExpiresAt: expiresAt}, nil
}

// notify sends msg after the state change is committed. Failures are logged
// and returned; they never undo the change.
func (s *CredentialService) notify(ctx context.Context, to string, msg Message) error {
	if err := s.notifier.Send(ctx, to, msg.Subject, msg.Body); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			"template", msg.Template,
			"error", err)
		return err
	}
	return nil
}

func duplicateAccount(email string) error {
	return oops.Code(CodeDuplicateAccount).With("email", email).Errorf("account already exists")
}
