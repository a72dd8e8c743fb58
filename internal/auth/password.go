// Package auth holds the credential primitives of the account lifecycle:
// password hashing, verification tokens, and the signed session credential.
//
// PASSWORD DIGEST FORMAT:
// The plaintext is first reduced to a SHA-256 hex string (64 ASCII bytes) and
// that string is fed to bcrypt. bcrypt only looks at the first 72 bytes of its
// input, so hashing the pre-digest lets passwords of any length count in full.
// The stored value is the plain bcrypt output:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost
//	 version
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used in production.
const DefaultCost = 12

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("auth: password must not be empty")

// PasswordService provides salted one-way hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests. Cost 4 makes tests run in milliseconds.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultCost}
}

// NewPasswordServiceWithCost creates a PasswordService with a custom cost.
// Values outside bcrypt's range fall back to the default.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns the salted digest of plaintext. Two calls with the same input
// produce different digests because bcrypt draws a fresh salt each time.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	hashed, err := bcrypt.GenerateFromPassword(preDigest(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches digest.
//
// Returns (true, nil) on match, (false, nil) on mismatch, and an error only
// when digest is not a bcrypt hash at all. bcrypt.CompareHashAndPassword does
// the comparison in constant time.
func (p *PasswordService) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), preDigest(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("auth: comparing password hash: %w", err)
}

func preDigest(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return []byte(hex.EncodeToString(sum[:]))
}
