// Package model defines the data structures used throughout the application.
package model

import "time"

// Account is a registered user.
//
// Username is the external key: it never changes after registration and every
// owned row (profile, assignments, lessons) references it. ID is an internal
// xid used as the primary key.
//
// VERIFICATION STATE:
// IsVerified moves false → true exactly once. While unverified the account
// usually holds a VerificationToken and its TokenExpiresAt; both are cleared
// together when the account is verified.
type Account struct {
	ID                string     `json:"-"          db:"id"`
	Username          string     `json:"username"   db:"username"`
	Email             string     `json:"email"      db:"email"`
	CredentialDigest  string     `json:"-"          db:"credential_digest"`
	CreatedAt         time.Time  `json:"createdAt"  db:"created_at"`
	IsVerified        bool       `json:"isVerified" db:"is_verified"`
	VerificationToken *string    `json:"-"          db:"verification_token"`
	TokenExpiresAt    *time.Time `json:"-"          db:"token_expires_at"`
}

// Summary strips the secrets from a so it can leave the service layer.
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		Username:   a.Username,
		Email:      a.Email,
		CreatedAt:  a.CreatedAt,
		IsVerified: a.IsVerified,
	}
}

// AccountSummary is the public view of an account, returned by
// /api/current-user and stored in the request context.
type AccountSummary struct {
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	CreatedAt  time.Time `json:"createdAt"`
	IsVerified bool      `json:"isVerified"`
}
