// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenExpiry = time.Hour
	MinTokenSecretLen  = 32
)

// TokenIssuer creates and validates signed session tokens.
type TokenIssuer interface {
	// Issue signs a token for accountID. Returns the token and its expiry.
	Issue(accountID ulid.ULID) (string, time.Time, error)

	// Validate returns the account the token was issued to.
	Validate(token string) (ulid.ULID, error)
}

// JWTIssuer issues HS256 JWTs with sub, iat and exp claims.
type JWTIssuer struct {
	secret []byte
	clock  Clock
	ttl    time.Duration
}

// NewJWTIssuer creates an issuer signing with secret.
func NewJWTIssuer(secret []byte, clock Clock) (*JWTIssuer, error) {
	if len(secret) < MinTokenSecretLen {
		return nil, oops.Code("AUTH_TOKEN_SECRET_INVALID").
			With("min", MinTokenSecretLen).
			Errorf("token secret must be at least %d bytes", MinTokenSecretLen)
	}
	if clock == nil {
		return nil, oops.Errorf("clock is required")
	}
	return &JWTIssuer{secret: secret, clock: clock, ttl: SessionTokenExpiry}, nil
}

// Issue signs a token valid for SessionTokenExpiry.
func (i *JWTIssuer) Issue(accountID ulid.ULID) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, algorithm and expiry, and returns the subject.
func (i *JWTIssuer) Validate(token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("token cannot be empty")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("invalid token: %v", err)
	}
	if !parsed.Valid {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).Errorf("invalid token")
	}

	accountID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidToken).
			With("subject", claims.Subject).
			Errorf("token subject is not an account id")
	}
	return accountID, nil
}
