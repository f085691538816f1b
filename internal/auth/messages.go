// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"time"
)

// Notifier delivers a message to an email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Message is a rendered notification.
type Message struct {
	Template string
	Subject  string
	Body     string
}

// Template names, used in logs and metrics.
const (
	TemplateWelcome   = "welcome"
	TemplateVerifyOTP = "verify_otp"
	TemplateVerified  = "verified"
	TemplateResetOTP  = "reset_otp"
)

// Messages renders the notification bodies sent by CredentialService.
type Messages struct {
	Product string
}

// Welcome is sent after registration.
func (m Messages) Welcome(account *Account) Message {
	return Message{
		Template: TemplateWelcome,
		Subject:  "Welcome to " + m.Product,
		Body: fmt.Sprintf("Welcome to %s! Your account has been created with email %s.\n\nThank you for joining us.\n",
			m.Product, account.Email),
	}
}

// VerifyOTP carries the email verification code.
func (m Messages) VerifyOTP(otp OTP) Message {
	return Message{
		Template: TemplateVerifyOTP,
		Subject:  "Verify your account",
		Body: fmt.Sprintf("Your verification code is %s.\n\nIt expires in %s.\n",
			otp.Code, formatTTL(OTPExpiry)),
	}
}

// Verified confirms a completed verification.
func (m Messages) Verified(account *Account) Message {
	return Message{
		Template: TemplateVerified,
		Subject:  "Your account is verified",
		Body: fmt.Sprintf("Dear %s,\n\nYour %s account has been successfully verified.\n",
			account.DisplayName, m.Product),
	}
}

// ResetOTP carries the password reset code.
func (m Messages) ResetOTP(otp OTP) Message {
	return Message{
		Template: TemplateResetOTP,
		Subject:  "Password reset code",
		Body: fmt.Sprintf("Your password reset code is %s.\n\nIt expires in %s. If you did not request a reset, ignore this message.\n",
			otp.Code, formatTTL(OTPExpiry)),
	}
}

func formatTTL(d time.Duration) string {
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}
