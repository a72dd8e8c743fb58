package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"
	"github.com/samber/oops"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

const lessonColumns = `id, username, name, created_at, last_studied_at, review_count`

// CreateLesson inserts l; a second lesson with the same name for the same
// user violates lessons_username_name_key.
func (db *DB) CreateLesson(ctx context.Context, l *model.Lesson) error {
	l.ID = xid.New().String()
	l.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO lessons (`+lessonColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.Username, l.Name, l.CreatedAt, l.LastStudiedAt, l.ReviewCount,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return oops.Code("LESSON_EXISTS").
				With("name", l.Name).
				Wrap(apperror.AlreadyExists("name", fmt.Sprintf("lesson %q already exists", l.Name)))
		}
		return oops.Code("LESSON_CREATE_FAILED").With("username", l.Username).Wrap(err)
	}
	return nil
}

// ListLessons returns the user's lessons ordered by name.
func (db *DB) ListLessons(ctx context.Context, username string) ([]model.Lesson, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE username = $1 ORDER BY name ASC`,
		username,
	)
	if err != nil {
		return nil, oops.Code("LESSON_LIST_FAILED").With("username", username).Wrap(err)
	}
	defer rows.Close()

	lessons := []model.Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, oops.Code("LESSON_LIST_FAILED").With("operation", "scan").Wrap(err)
		}
		lessons = append(lessons, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("LESSON_LIST_FAILED").With("operation", "iterate").Wrap(err)
	}
	return lessons, nil
}

// MarkLessonStudied records a review and returns the updated lesson.
func (db *DB) MarkLessonStudied(ctx context.Context, username, id string, at time.Time) (*model.Lesson, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE lessons
		 SET last_studied_at = $1, review_count = review_count + 1
		 WHERE id = $2 AND username = $3
		 RETURNING `+lessonColumns,
		at.UTC(), id, username,
	)

	l, err := scanLesson(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("LESSON_NOT_FOUND").With("id", id).Wrap(apperror.NotFound("lesson", id))
	}
	if err != nil {
		return nil, oops.Code("LESSON_STUDY_FAILED").With("id", id).Wrap(err)
	}
	return l, nil
}

// DeleteLesson removes one of username's lessons.
func (db *DB) DeleteLesson(ctx context.Context, username, id string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM lessons WHERE id = $1 AND username = $2`, id, username)
	if err != nil {
		return oops.Code("LESSON_DELETE_FAILED").With("id", id).Wrap(err)
	}
	return expectOneRow(tag, "lesson", id)
}

func scanLesson(row pgx.Row) (*model.Lesson, error) {
	var l model.Lesson
	if err := row.Scan(&l.ID, &l.Username, &l.Name, &l.CreatedAt, &l.LastStudiedAt, &l.ReviewCount); err != nil {
		return nil, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	if l.LastStudiedAt != nil {
		t := l.LastStudiedAt.UTC()
		l.LastStudiedAt = &t
	}
	return &l, nil
}
