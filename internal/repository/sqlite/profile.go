package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

// GetProfile returns the saved profile with its subjects sorted by name.
func (db *DB) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	p := model.Profile{Username: username}
	err := db.conn.QueryRowContext(ctx,
		`SELECT full_name, age, school, grade, stream, contact_info, address
		 FROM profiles WHERE username = ?`,
		username,
	).Scan(&p.FullName, &p.Age, &p.School, &p.Grade, &p.Stream, &p.ContactInfo, &p.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("profile", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", username, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT subject FROM subjects WHERE username = ? ORDER BY subject`, username)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subjects for %s: %w", username, err)
	}
	defer rows.Close()

	p.Subjects = []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite: scanning subject: %w", err)
		}
		p.Subjects = append(p.Subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subjects: %w", err)
	}

	return &p, nil
}

// SaveProfile upserts the profile row and replaces the subject set in one
// transaction, so a reader never sees the old profile with the new subjects.
func (db *DB) SaveProfile(ctx context.Context, p *model.Profile) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning profile transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (username, full_name, age, school, grade, stream, contact_info, address)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (username) DO UPDATE SET
		     full_name = excluded.full_name,
		     age = excluded.age,
		     school = excluded.school,
		     grade = excluded.grade,
		     stream = excluded.stream,
		     contact_info = excluded.contact_info,
		     address = excluded.address`,
		p.Username, p.FullName, p.Age, p.School, p.Grade, p.Stream, p.ContactInfo, p.Address,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting profile %s: %w", p.Username, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE username = ?`, p.Username); err != nil {
		return fmt.Errorf("sqlite: clearing subjects for %s: %w", p.Username, err)
	}

	for _, s := range p.Subjects {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subjects (username, subject) VALUES (?, ?)`, p.Username, s,
		); err != nil {
			return fmt.Errorf("sqlite: inserting subject %q: %w", s, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing profile %s: %w", p.Username, err)
	}
	return nil
}
