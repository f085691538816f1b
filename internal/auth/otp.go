// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/samber/oops"
)

// OTP configuration.
const (
	OTPDigits = 6
	OTPExpiry = 10 * time.Minute
)

var otpSpace = big.NewInt(1_000_000)

// OTPGenerator produces one-time passcodes.
type OTPGenerator interface {
	Generate() (OTP, error)
}

// RandomOTPGenerator draws codes uniformly from 000000-999999.
type RandomOTPGenerator struct {
	clock  Clock
	random io.Reader
	ttl    time.Duration
}

// NewRandomOTPGenerator creates a generator using crypto/rand and the given clock.
func NewRandomOTPGenerator(clock Clock) *RandomOTPGenerator {
	return &RandomOTPGenerator{clock: clock, random: rand.Reader, ttl: OTPExpiry}
}

// Generate returns a fresh code expiring OTPExpiry from now.
func (g *RandomOTPGenerator) Generate() (OTP, error) {
	n, err := rand.Int(g.random, otpSpace)
	if err != nil {
		return OTP{}, oops.Code("AUTH_OTP_GENERATE_FAILED").Wrap(err)
	}
	return OTP{
		Code:      fmt.Sprintf("%0*d", OTPDigits, n.Int64()),
		ExpiresAt: g.clock.Now().Add(g.ttl),
	}, nil
}
