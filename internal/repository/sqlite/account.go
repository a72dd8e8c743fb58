package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

const accountColumns = `id, username, email, credential_digest, created_at,
	is_verified, verification_token, token_expires_at`

// Create inserts a new account.
//
// There is no "does this username exist?" pre-check. Two concurrent
// registrations for the same name would both pass such a check; the UNIQUE
// constraints decide instead, and exactly one INSERT wins.
func (db *DB) Create(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = xid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.Email,
		account.CredentialDigest,
		account.CreatedAt,
		account.IsVerified,
		account.VerificationToken,
		account.TokenExpiresAt,
	)
	if err != nil {
		if msg, ok := uniqueViolation(err); ok {
			return accountConflict(msg)
		}
		return fmt.Errorf("sqlite: creating account %s: %w", account.Username, err)
	}

	return nil
}

// GetByUsername looks an account up by its exact (case-sensitive) username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting account %s: %w", username, err)
	}
	return account, nil
}

// GetByEmail looks an account up by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("account", email)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting account by email: %w", err)
	}
	return account, nil
}

// GetByVerificationToken finds the account currently holding token.
func (db *DB) GetByVerificationToken(ctx context.Context, token string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE verification_token = ?`, token)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		// the token itself is a secret, keep it out of the message
		return nil, apperror.NotFound("account", "for verification token")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting account by verification token: %w", err)
	}
	return account, nil
}

// MarkVerified is the verification transition in a single statement.
//
// The WHERE clause repeats the precondition (token still held, account still
// unverified), so two concurrent calls with the same token cannot both
// succeed: the second one matches zero rows.
func (db *DB) MarkVerified(ctx context.Context, token string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET is_verified = 1, verification_token = NULL, token_expires_at = NULL
		 WHERE verification_token = ? AND is_verified = 0`,
		token,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: marking account verified: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ReplaceVerificationToken installs a new token on an unverified account.
func (db *DB) ReplaceVerificationToken(ctx context.Context, username, token string, expiresAt time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET verification_token = ?, token_expires_at = ?
		 WHERE username = ? AND is_verified = 0`,
		token, expiresAt, username,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: replacing verification token for %s: %w", username, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		a         model.Account
		token     sql.NullString
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.CredentialDigest,
		&a.CreatedAt,
		&a.IsVerified,
		&token,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if token.Valid {
		a.VerificationToken = &token.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		a.TokenExpiresAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func accountConflict(msg string) error {
	switch {
	case strings.Contains(msg, "accounts.email"):
		return apperror.AlreadyExists("email", "email already registered")
	default:
		return apperror.AlreadyExists("username", "username already taken")
	}
}
