package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

var accountRowColumns = []string{
	"id", "username", "email", "credential_digest", "created_at",
	"is_verified", "verification_token", "token_expires_at",
}

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return New(mock), mock
}

// anyArgs matches n positional arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestAccount_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		wantField string
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(pgxmock.AnyArg(), "alice", "a@x.com", "digest",
						pgxmock.AnyArg(), false, pgxmock.AnyArg(), pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "duplicate username",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(anyArgs(8)...).
					WillReturnError(&pgconn.PgError{
						Code:           pgerrcode.UniqueViolation,
						ConstraintName: "accounts_username_key",
					})
			},
			wantErr:   apperror.ErrConflict,
			wantField: "username",
		},
		{
			name: "duplicate email",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO accounts`).
					WithArgs(anyArgs(8)...).
					WillReturnError(&pgconn.PgError{
						Code:           pgerrcode.UniqueViolation,
						ConstraintName: "accounts_email_key",
					})
			},
			wantErr:   apperror.ErrConflict,
			wantField: "email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.setupMock(mock)

			account := &model.Account{
				Username:          "alice",
				Email:             "a@x.com",
				CredentialDigest:  "digest",
				VerificationToken: strPtr("tok"),
				TokenExpiresAt:    timePtr(time.Now().Add(24 * time.Hour)),
			}
			err := db.Create(context.Background(), account)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var appErr *apperror.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.wantField, appErr.Field)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, account.ID)
				assert.False(t, account.CreatedAt.IsZero())
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestAccount_Create_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs(anyArgs(8)...).
		WillReturnError(errors.New("connection refused"))

	err := db.Create(context.Background(), &model.Account{Username: "alice", Email: "a@x.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotErrorIs(t, err, apperror.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccount_GetByUsername(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		want      *model.Account
		wantErr   error
	}{
		{
			name: "found unverified",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(accountRowColumns).
					AddRow("id1", "alice", "a@x.com", "digest", created, false, strPtr("tok"), timePtr(expires))
				mock.ExpectQuery(`SELECT .* FROM accounts WHERE username = \$1`).
					WithArgs("alice").
					WillReturnRows(rows)
			},
			want: &model.Account{
				ID: "id1", Username: "alice", Email: "a@x.com", CredentialDigest: "digest",
				CreatedAt: created, VerificationToken: strPtr("tok"), TokenExpiresAt: timePtr(expires),
			},
		},
		{
			name: "found verified",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(accountRowColumns).
					AddRow("id1", "alice", "a@x.com", "digest", created, true, (*string)(nil), (*time.Time)(nil))
				mock.ExpectQuery(`SELECT .* FROM accounts WHERE username = \$1`).
					WithArgs("alice").
					WillReturnRows(rows)
			},
			want: &model.Account{
				ID: "id1", Username: "alice", Email: "a@x.com", CredentialDigest: "digest",
				CreatedAt: created, IsVerified: true,
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .* FROM accounts WHERE username = \$1`).
					WithArgs("alice").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: apperror.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			tt.setupMock(mock)

			got, err := db.GetByUsername(context.Background(), "alice")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestAccount_GetByVerificationToken_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT .* FROM accounts WHERE verification_token = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := db.GetByVerificationToken(context.Background(), "missing")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccount_MarkVerified(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "first use flips the account", affected: 1, want: true},
		{name: "token already consumed", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(`UPDATE accounts\s+SET is_verified = TRUE`).
				WithArgs("tok").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			got, err := db.MarkVerified(context.Background(), "tok")

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAccount_ReplaceVerificationToken(t *testing.T) {
	db, mock := newMockDB(t)
	expires := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE accounts\s+SET verification_token = \$1`).
		WithArgs("fresh", expires, "alice").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := db.ReplaceVerificationToken(context.Background(), "alice", "fresh", expires)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUniqueViolation(t *testing.T) {
	name, ok := uniqueViolation(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "x"})
	assert.True(t, ok)
	assert.Equal(t, "x", name)

	_, ok = uniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation})
	assert.False(t, ok)

	_, ok = uniqueViolation(errors.New("plain"))
	assert.False(t, ok)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgres://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("pgx5://u@h/db"))
}

func TestPing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	err := db.Ping(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.NoError(t, mock.ExpectationsWereMet())
}
