// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository sentinels. Implementations wrap these so callers can branch with errors.Is.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by Create when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrConflict is returned by Save when the stored version no longer matches.
	ErrConflict = errors.New("account modified concurrently")
)

// Error codes carried by errors returned from CredentialService.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeDuplicateAccount   = "AUTH_DUPLICATE_ACCOUNT"
	CodeUnknownAccount     = "AUTH_UNKNOWN_ACCOUNT"
	CodeBadCredential      = "AUTH_BAD_CREDENTIAL"
	CodeInvalidOTP         = "AUTH_INVALID_OTP"
	CodeOTPExpired         = "AUTH_OTP_EXPIRED"
	CodeAlreadyVerified    = "AUTH_ALREADY_VERIFIED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeNotificationFailed = "AUTH_NOTIFICATION_FAILED"
	CodeStoreUnavailable   = "AUTH_STORE_UNAVAILABLE"
)

// Kind classifies a failure for the boundary layer.
type Kind string

// Failure kinds.
const (
	KindNone               Kind = ""
	KindInvalidInput       Kind = "InvalidInput"
	KindDuplicateAccount   Kind = "DuplicateAccount"
	KindUnknownAccount     Kind = "UnknownAccount"
	KindBadCredential      Kind = "BadCredential"
	KindInvalidOTP         Kind = "InvalidOtp"
	KindOTPExpired         Kind = "OtpExpired"
	KindAlreadyVerified    Kind = "AlreadyVerified"
	KindInvalidToken       Kind = "InvalidToken"
	KindNotificationFailed Kind = "NotificationFailed"
	KindStoreUnavailable   Kind = "StoreUnavailable"
)

var kindsByCode = map[string]Kind{
	CodeInvalidInput:       KindInvalidInput,
	CodeDuplicateAccount:   KindDuplicateAccount,
	CodeUnknownAccount:     KindUnknownAccount,
	CodeBadCredential:      KindBadCredential,
	CodeInvalidOTP:         KindInvalidOTP,
	CodeOTPExpired:         KindOTPExpired,
	CodeAlreadyVerified:    KindAlreadyVerified,
	CodeInvalidToken:       KindInvalidToken,
	CodeNotificationFailed: KindNotificationFailed,
	CodeStoreUnavailable:   KindStoreUnavailable,
}

// KindOf classifies err. Errors without a known code, such as raw driver or
// context failures, are reported as KindStoreUnavailable.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			if kind, found := kindsByCode[code]; found {
				return kind
			}
		}
	}
	return KindStoreUnavailable
}

// IsPartial reports whether err is a notification failure that followed a
// committed state change.
func IsPartial(err error) bool {
	if KindOf(err) != KindNotificationFailed {
		return false
	}
	oopsErr, _ := oops.AsOops(err)
	committed, _ := oopsErr.Context()["committed"].(bool)
	return committed
}

func storeUnavailable(operation string, err error) error {
	return oops.Code(CodeStoreUnavailable).
		With("operation", operation).
		Wrap(err)
}

func notificationFailed(template string, committed bool, err error) error {
	return oops.Code(CodeNotificationFailed).
		With("template", template).
		With("committed", committed).
		Wrap(err)
}
