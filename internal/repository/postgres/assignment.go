package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"
	"github.com/samber/oops"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

// CreateAssignment inserts a, filling in ID, CreatedAt and a default status.
func (db *DB) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	a.ID = xid.New().String()
	a.CreatedAt = time.Now().UTC()
	if a.Status == "" {
		a.Status = model.AssignmentPending
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO assignments (id, username, title, status, created_at, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Username, a.Title, string(a.Status), a.CreatedAt, a.DueDate,
	)
	if err != nil {
		return oops.Code("ASSIGNMENT_CREATE_FAILED").With("username", a.Username).Wrap(err)
	}
	return nil
}

// ListAssignments returns the user's assignments, oldest first.
func (db *DB) ListAssignments(ctx context.Context, username string) ([]model.Assignment, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, username, title, status, created_at, due_date
		 FROM assignments
		 WHERE username = $1
		 ORDER BY created_at ASC, id ASC`,
		username,
	)
	if err != nil {
		return nil, oops.Code("ASSIGNMENT_LIST_FAILED").With("username", username).Wrap(err)
	}
	defer rows.Close()

	assignments := []model.Assignment{}
	for rows.Next() {
		var (
			a      model.Assignment
			status string
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.Title, &status, &a.CreatedAt, &a.DueDate); err != nil {
			return nil, oops.Code("ASSIGNMENT_LIST_FAILED").With("operation", "scan").Wrap(err)
		}
		a.Status = model.AssignmentStatus(status)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ASSIGNMENT_LIST_FAILED").With("operation", "iterate").Wrap(err)
	}
	return assignments, nil
}

// UpdateAssignmentStatus changes the status of one of username's assignments.
func (db *DB) UpdateAssignmentStatus(ctx context.Context, username, id string, status model.AssignmentStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE assignments SET status = $1 WHERE id = $2 AND username = $3`,
		string(status), id, username,
	)
	if err != nil {
		return oops.Code("ASSIGNMENT_UPDATE_FAILED").With("id", id).Wrap(err)
	}
	return expectOneRow(tag, "assignment", id)
}

// DeleteAssignment removes one of username's assignments.
func (db *DB) DeleteAssignment(ctx context.Context, username, id string) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM assignments WHERE id = $1 AND username = $2`, id, username)
	if err != nil {
		return oops.Code("ASSIGNMENT_DELETE_FAILED").With("id", id).Wrap(err)
	}
	return expectOneRow(tag, "assignment", id)
}

func expectOneRow(tag pgconn.CommandTag, resource, id string) error {
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
