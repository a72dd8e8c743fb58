package auth

// SESSION CREDENTIAL:
// A session is a signed claim that "this browser logged in as <username>".
// There is no server-side session table: the credential is an HS256 JWT
// whose "sub" claim is the username, stored in an HttpOnly cookie.
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"iss":"study-tracker","sub":"alice","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// Tampering with the payload breaks the signature, so a client cannot log in
// as someone else by editing its cookie.

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSessionTTL is the lifetime of a session credential.
	DefaultSessionTTL = 30 * 24 * time.Hour

	sessionIssuer = "study-tracker"
)

// ErrSessionExpired is returned by Parse for a well-signed but expired credential.
var ErrSessionExpired = errors.New("auth: session expired")

// SessionService signs and verifies session credentials.
type SessionService struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionService creates a SessionService. The secret must be at least 16
// characters. A non-positive ttl means DefaultSessionTTL.
func NewSessionService(secret string, ttl time.Duration) (*SessionService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL reports how long issued credentials stay valid.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a credential for username using the configured TTL.
func (s *SessionService) Issue(username string) (string, error) {
	return s.IssueWithDuration(username, s.ttl)
}

// IssueWithDuration signs a credential with a custom lifetime.
// Used in tests to produce already-expired credentials.
func (s *SessionService) IssueWithDuration(username string, d time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("auth: session subject must not be empty")
	}

	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    sessionIssuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Parse verifies a credential and returns the username it carries.
//
// The signing method is pinned to HS256 so a token claiming "alg":"none"
// or an asymmetric algorithm is rejected before the signature is checked.
func (s *SessionService) Parse(credential string) (string, error) {
	token, err := jwt.ParseWithClaims(
		credential,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", fmt.Errorf("auth: invalid session: %w", err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("auth: invalid session claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: session has no subject")
	}

	return c.Subject, nil
}
