// Package postgres implements the repository interfaces on PostgreSQL via pgx.
//
// Errors are wrapped with samber/oops so each carries a stable code and the
// operation context; domain errors (apperror.*) stay reachable through
// errors.Is and errors.As.
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/sakif/study-tracker/internal/repository"
)

// poolIface is the subset of *pgxpool.Pool the repositories use.
// pgxmock.PgxPoolIface satisfies it, which is how the unit tests run
// without a database.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ repository.Store = (*DB)(nil)

// DB implements repository.Store on a pgx connection pool.
type DB struct {
	pool poolIface
}

// New wraps an existing pool.
func New(pool poolIface) *DB {
	return &DB{pool: pool}
}

// ConnectOptions tunes how Open waits for the database to come up.
type ConnectOptions struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultConnectOptions retries for roughly half a minute, which covers a
// database container that starts alongside the app.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{MaxRetries: 6, BaseDelay: 500 * time.Millisecond}
}

// Open creates a pool for databaseURL and pings it with exponential backoff
// until it answers or the retries run out.
func Open(ctx context.Context, databaseURL string, opts ConnectOptions, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(opts.BaseDelay))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempt).
			Wrap(err)
	}

	return New(pool), nil
}

// Ping checks that the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// uniqueViolation returns the violated constraint name when err is a
// unique_violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
