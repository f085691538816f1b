// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or (false, err) on a malformed digest.
	Verify(password, digest string) (bool, error)
}

// Upper bounds on argon2 cost. Stored digests beyond them are rejected
// before any key derivation runs.
const (
	maxArgon2Memory = 4 << 20 // KiB, 4 GiB
	maxArgon2Time   = 64
)

// Argon2Params are the argon2id cost parameters used for new hashes.
type Argon2Params struct {
	Time    uint32 `koanf:"time" yaml:"time"`
	Memory  uint32 `koanf:"memory" yaml:"memory"` // KiB
	Threads uint8  `koanf:"threads" yaml:"threads"`
	SaltLen uint32 `koanf:"salt_len" yaml:"salt_len"`
	KeyLen  uint32 `koanf:"key_len" yaml:"key_len"`
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Validate rejects parameters argon2 would panic on or that are trivially weak.
func (p Argon2Params) Validate() error {
	switch {
	case p.Time == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 time must be positive")
	case p.Time > maxArgon2Time:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 time must be at most %d", maxArgon2Time)
	case p.Memory < 8*uint32(p.Threads) || p.Memory == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 memory must be at least 8 KiB per thread")
	case p.Memory > maxArgon2Memory:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 memory must be at most %d KiB", maxArgon2Memory)
	case p.Threads == 0:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 threads must be positive")
	case p.SaltLen < 8:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 salt must be at least 8 bytes")
	case p.KeyLen < 16:
		return oops.Code("AUTH_INVALID_HASH_PARAMS").Errorf("argon2 key must be at least 16 bytes")
	}
	return nil
}

// Argon2idHasher hashes with argon2id and verifies argon2id or legacy bcrypt digests.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with the given parameters.
func NewArgon2idHasher(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces a PHC-formatted argon2id digest:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id or bcrypt digest.
func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	if isBcrypt(digest) {
		return verifyBcrypt(password, digest)
	}
	return verifyArgon2id(password, digest)
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func verifyBcrypt(password, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
}

func verifyArgon2id(password, digest string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 || time == 0 || time > maxArgon2Time {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid argon2 parameters")
	}
	if memory == 0 || memory > maxArgon2Memory {
		return false, oops.Code("AUTH_INVALID_HASH").With("memory", memory).Errorf("argon2 memory out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<10 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
