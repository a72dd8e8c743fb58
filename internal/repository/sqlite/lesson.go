package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

// CreateLesson inserts l. The (username, name) constraint rejects a second
// lesson with the same name for the same user.
func (db *DB) CreateLesson(ctx context.Context, l *model.Lesson) error {
	l.ID = xid.New().String()
	l.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO lessons (id, username, name, created_at, last_studied_at, review_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.Username, l.Name, l.CreatedAt, l.LastStudiedAt, l.ReviewCount,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return apperror.AlreadyExists("name", fmt.Sprintf("lesson %q already exists", l.Name))
		}
		return fmt.Errorf("sqlite: creating lesson: %w", err)
	}
	return nil
}

// ListLessons returns the user's lessons ordered by name.
func (db *DB) ListLessons(ctx context.Context, username string) ([]model.Lesson, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, name, created_at, last_studied_at, review_count
		 FROM lessons
		 WHERE username = ?
		 ORDER BY name ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing lessons: %w", err)
	}
	defer rows.Close()

	lessons := []model.Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning lesson: %w", err)
		}
		lessons = append(lessons, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating lessons: %w", err)
	}
	return lessons, nil
}

// MarkLessonStudied records a review at time at and returns the updated lesson.
func (db *DB) MarkLessonStudied(ctx context.Context, username, id string, at time.Time) (*model.Lesson, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE lessons
		 SET last_studied_at = ?, review_count = review_count + 1
		 WHERE id = ? AND username = ?`,
		at.UTC(), id, username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marking lesson %s studied: %w", id, err)
	}
	if err := expectOneRow(res, "lesson", id); err != nil {
		return nil, err
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, username, name, created_at, last_studied_at, review_count
		 FROM lessons WHERE id = ? AND username = ?`,
		id, username,
	)
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		// deleted between the two statements
		return nil, apperror.NotFound("lesson", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading lesson %s: %w", id, err)
	}
	return l, nil
}

// DeleteLesson removes one of username's lessons.
func (db *DB) DeleteLesson(ctx context.Context, username, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM lessons WHERE id = ? AND username = ?`, id, username)
	if err != nil {
		return fmt.Errorf("sqlite: deleting lesson %s: %w", id, err)
	}
	return expectOneRow(res, "lesson", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLesson(s scanner) (*model.Lesson, error) {
	var (
		l       model.Lesson
		studied sql.NullTime
	)
	if err := s.Scan(&l.ID, &l.Username, &l.Name, &l.CreatedAt, &studied, &l.ReviewCount); err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	if studied.Valid {
		t := studied.Time.UTC()
		l.LastStudiedAt = &t
	}
	return &l, nil
}
