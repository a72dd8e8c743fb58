package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"
	"github.com/samber/oops"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

const accountColumns = `id, username, email, credential_digest, created_at,
	is_verified, verification_token, token_expires_at`

// Create inserts a new account. The unique constraints decide collisions.
func (db *DB) Create(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = xid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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
		if constraint, ok := uniqueViolation(err); ok {
			return oops.Code("ACCOUNT_EXISTS").
				With("username", account.Username).
				With("constraint", constraint).
				Wrap(accountConflict(constraint))
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("username", account.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername looks an account up by its exact (case-sensitive) username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("username", username).
			Wrap(apperror.NotFound("account", username))
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by username").
			With("username", username).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail looks an account up by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(apperror.NotFound("account", email))
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// GetByVerificationToken finds the account currently holding token.
func (db *DB) GetByVerificationToken(ctx context.Context, token string) (*model.Account, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE verification_token = $1`, token)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			Wrap(apperror.NotFound("account", "for verification token"))
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by verification token").
			Wrap(err)
	}
	return account, nil
}

// MarkVerified flips the account holding token to verified in one
// conditional UPDATE; a concurrent second call matches zero rows.
func (db *DB) MarkVerified(ctx context.Context, token string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE accounts
		 SET is_verified = TRUE, verification_token = NULL, token_expires_at = NULL
		 WHERE verification_token = $1 AND is_verified = FALSE`,
		token,
	)
	if err != nil {
		return false, oops.Code("ACCOUNT_VERIFY_FAILED").
			With("operation", "mark account verified").
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReplaceVerificationToken installs a new token on an unverified account.
func (db *DB) ReplaceVerificationToken(ctx context.Context, username, token string, expiresAt time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE accounts
		 SET verification_token = $1, token_expires_at = $2
		 WHERE username = $3 AND is_verified = FALSE`,
		token, expiresAt, username,
	)
	if err != nil {
		return false, oops.Code("ACCOUNT_TOKEN_REPLACE_FAILED").
			With("operation", "replace verification token").
			With("username", username).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.CredentialDigest,
		&a.CreatedAt,
		&a.IsVerified,
		&a.VerificationToken,
		&a.TokenExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if a.TokenExpiresAt != nil {
		t := a.TokenExpiresAt.UTC()
		a.TokenExpiresAt = &t
	}
	return &a, nil
}

func accountConflict(constraint string) error {
	if constraint == "accounts_email_key" {
		return apperror.AlreadyExists("email", "email already registered")
	}
	return apperror.AlreadyExists("username", "username already taken")
}
