package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

// GetProfile returns the saved profile with its subjects sorted by name.
func (db *DB) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	p := model.Profile{Username: username}
	err := db.pool.QueryRow(ctx,
		`SELECT full_name, age, school, grade, stream, contact_info, address
		 FROM profiles WHERE username = $1`,
		username,
	).Scan(&p.FullName, &p.Age, &p.School, &p.Grade, &p.Stream, &p.ContactInfo, &p.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PROFILE_NOT_FOUND").
			With("username", username).
			Wrap(apperror.NotFound("profile", username))
	}
	if err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").With("username", username).Wrap(err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT subject FROM subjects WHERE username = $1 ORDER BY subject`, username)
	if err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").With("operation", "list subjects").Wrap(err)
	}
	defer rows.Close()

	p.Subjects = []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, oops.Code("PROFILE_GET_FAILED").With("operation", "scan subject").Wrap(err)
		}
		p.Subjects = append(p.Subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PROFILE_GET_FAILED").With("operation", "iterate subjects").Wrap(err)
	}
	return &p, nil
}

// SaveProfile upserts the profile and replaces the subject set in one transaction.
func (db *DB) SaveProfile(ctx context.Context, p *model.Profile) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return oops.Code("PROFILE_SAVE_FAILED").With("operation", "begin").Wrap(err)
	}

	if err := saveProfileTx(ctx, tx, p); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("PROFILE_SAVE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

func saveProfileTx(ctx context.Context, tx pgx.Tx, p *model.Profile) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO profiles (username, full_name, age, school, grade, stream, contact_info, address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (username) DO UPDATE SET
		     full_name = EXCLUDED.full_name,
		     age = EXCLUDED.age,
		     school = EXCLUDED.school,
		     grade = EXCLUDED.grade,
		     stream = EXCLUDED.stream,
		     contact_info = EXCLUDED.contact_info,
		     address = EXCLUDED.address`,
		p.Username, p.FullName, p.Age, p.School, p.Grade, p.Stream, p.ContactInfo, p.Address,
	)
	if err != nil {
		return oops.Code("PROFILE_SAVE_FAILED").
			With("operation", "upsert profile").
			With("username", p.Username).
			Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM subjects WHERE username = $1`, p.Username); err != nil {
		return oops.Code("PROFILE_SAVE_FAILED").With("operation", "clear subjects").Wrap(err)
	}

	for _, s := range p.Subjects {
		if _, err := tx.Exec(ctx,
			`INSERT INTO subjects (username, subject) VALUES ($1, $2)`, p.Username, s,
		); err != nil {
			return oops.Code("PROFILE_SAVE_FAILED").
				With("operation", "insert subject").
				With("subject", s).
				Wrap(err)
		}
	}
	return nil
}
