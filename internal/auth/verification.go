package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// DefaultVerificationTTL is how long an emailed verification link stays valid.
	DefaultVerificationTTL = 24 * time.Hour

	verificationTokenBytes = 32
)

// VerificationTokenIssuer mints single-use email verification tokens.
//
// A token is 32 bytes from crypto/rand encoded as unpadded base64url, so it
// can go straight into a query string. Single use is enforced by the store,
// which clears the token when the account is verified.
type VerificationTokenIssuer struct {
	ttl time.Duration
	now func() time.Time
}

// NewVerificationTokenIssuer creates an issuer whose tokens expire ttl after
// issuance. A non-positive ttl means DefaultVerificationTTL.
func NewVerificationTokenIssuer(ttl time.Duration) *VerificationTokenIssuer {
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return &VerificationTokenIssuer{ttl: ttl, now: time.Now}
}

// WithClock returns a copy of the issuer that reads the current time from now.
func (i *VerificationTokenIssuer) WithClock(now func() time.Time) *VerificationTokenIssuer {
	return &VerificationTokenIssuer{ttl: i.ttl, now: now}
}

// Issue returns a fresh token and the instant it stops being accepted.
func (i *VerificationTokenIssuer) Issue() (string, time.Time, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generating verification token: %w", err)
	}

	expiresAt := i.now().UTC().Add(i.ttl)
	return base64.RawURLEncoding.EncodeToString(buf), expiresAt, nil
}

// TTL reports the validity window of issued tokens.
func (i *VerificationTokenIssuer) TTL() time.Duration {
	return i.ttl
}
