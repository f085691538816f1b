// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/accounts/internal/auth"
)

// Operation names, used for spans, logs and metric labels.
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpLogout        = "logout"
	OpIsAuth        = "is_auth"
	OpUserData      = "user_data"
	OpSendVerifyOTP = "send_verify_otp"
	OpVerifyAccount = "verify_account"
	OpSendResetOTP  = "send_reset_otp"
	OpResetPassword = "reset_password"
)

// RegisterRequest creates an account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest signs in with email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionRequest carries only the caller's session token.
type SessionRequest struct {
	Token string `json:"-"`
}

// VerifyAccountRequest submits an email verification code.
type VerifyAccountRequest struct {
	Token string `json:"-"`
	OTP   string `json:"otp"`
}

// ResetOTPRequest asks for a password reset code.
type ResetOTPRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest replaces a password using a reset code.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// SessionData is returned by Register and Login.
type SessionData struct {
	AccountID string    `json:"account_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthData is returned by IsAuthenticated.
type AuthData struct {
	AccountID string `json:"account_id"`
}

// ProfileData is returned by UserData.
type ProfileData struct {
	Name              string `json:"name"`
	IsAccountVerified bool   `json:"is_account_verified"`
}

var otpSendFailures = map[auth.Kind]string{
	auth.KindNotificationFailed: "An error occurred while sending OTP",
}

func sessionData(s *auth.Session) any {
	if s == nil {
		return nil
	}
	return SessionData{AccountID: s.AccountID.String(), Token: s.Token, ExpiresAt: s.ExpiresAt}
}

// Register creates an account and signs the caller in.
func (h *Handler) Register(ctx context.Context, req RegisterRequest) Result {
	return h.run(ctx, OpRegister, messages{
		success: "User registered successfully",
		partial: "User registered, but email could not be sent",
	}, func(ctx context.Context) (any, error) {
		session, err := h.svc.Register(ctx, req.Name, req.Email, req.Password)
		return sessionData(session), err
	})
}

// Login signs the caller in.
func (h *Handler) Login(ctx context.Context, req LoginRequest) Result {
	failures := map[auth.Kind]string{
		auth.KindUnknownAccount: "Invalid email",
	}
	if h.revealCredentials {
		failures[auth.KindBadCredential] = "Invalid password"
	}
	return h.run(ctx, OpLogin, messages{
		success:  "Login successful",
		failures: failures,
	}, func(ctx context.Context) (any, error) {
		session, err := h.svc.Login(ctx, req.Email, req.Password)
		if err != nil {
			return nil, err
		}
		return sessionData(session), nil
	})
}

// Logout ends the caller's session. It succeeds without a token.
func (h *Handler) Logout(ctx context.Context, req SessionRequest) Result {
	return h.run(ctx, OpLogout, messages{
		success: "Logged out successfully",
	}, func(ctx context.Context) (any, error) {
		return nil, h.svc.Logout(ctx, req.Token)
	})
}

// IsAuthenticated reports whether the token is a valid session.
func (h *Handler) IsAuthenticated(ctx context.Context, req SessionRequest) Result {
	return h.run(ctx, OpIsAuth, messages{
		success: "Authenticated",
	}, h.authenticated(req.Token, func(_ context.Context, accountID ulid.ULID) (any, error) {
		return AuthData{AccountID: accountID.String()}, nil
	}))
}

// UserData returns the public profile of the signed-in account.
func (h *Handler) UserData(ctx context.Context, req SessionRequest) Result {
	return h.run(ctx, OpUserData, messages{
		success: "User data retrieved",
	}, h.authenticated(req.Token, func(ctx context.Context, accountID ulid.ULID) (any, error) {
		profile, err := h.svc.Profile(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return ProfileData{Name: profile.Name, IsAccountVerified: profile.Verified}, nil
	}))
}

// SendVerifyOTP mails a verification code to the signed-in account.
func (h *Handler) SendVerifyOTP(ctx context.Context, req SessionRequest) Result {
	return h.run(ctx, OpSendVerifyOTP, messages{
		success:  "Verification OTP sent to your email",
		failures: otpSendFailures,
	}, h.authenticated(req.Token, func(ctx context.Context, accountID ulid.ULID) (any, error) {
		return nil, h.svc.RequestEmailOTP(ctx, accountID)
	}))
}

// VerifyAccount marks the signed-in account verified.
func (h *Handler) VerifyAccount(ctx context.Context, req VerifyAccountRequest) Result {
	return h.run(ctx, OpVerifyAccount, messages{
		success: "Email verified successfully",
		partial: "Email verified, but confirmation email could not be sent",
	}, h.authenticated(req.Token, func(ctx context.Context, accountID ulid.ULID) (any, error) {
		return nil, h.svc.ConsumeEmailOTP(ctx, accountID, req.OTP)
	}))
}

// SendResetOTP mails a password reset code.
func (h *Handler) SendResetOTP(ctx context.Context, req ResetOTPRequest) Result {
	return h.run(ctx, OpSendResetOTP, messages{
		success:  "OTP sent to your email",
		failures: otpSendFailures,
	}, func(ctx context.Context) (any, error) {
		return nil, h.svc.RequestPasswordResetOTP(ctx, req.Email)
	})
}

// ResetPassword replaces the password of the account with req.Email.
func (h *Handler) ResetPassword(ctx context.Context, req ResetPasswordRequest) Result {
	return h.run(ctx, OpResetPassword, messages{
		success: "Password has been reset successfully",
	}, func(ctx context.Context) (any, error) {
		return nil, h.svc.ConsumePasswordReset(ctx, req.Email, req.OTP, req.NewPassword)
	})
}
