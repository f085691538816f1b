// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the account credential lifecycle: password
// hashing, session tokens, and the email verification and password reset
// one-time passcode (OTP) workflows.
//
// # Domain Types
//
// Account is created with NewAccount, which validates the display name and
// email. Each account holds two independent OTP slots, EmailOTP and
// ResetOTP. Requesting a code replaces whatever the slot held. A code is
// cleared only when it is successfully used; mismatched or expired
// submissions leave it in place.
//
// # Services
//
// CredentialService is the only writer of Account state. Every mutation is
// a read-validate-save cycle against AccountRepository.Save, which is a
// compare-and-swap on Account.Version. A lost race re-runs the cycle, so two
// concurrent uses of one code cannot both succeed.
//
// Errors returned by the service carry oops codes (Code* constants); KindOf
// maps them onto the failure taxonomy used by the api package.
package auth
