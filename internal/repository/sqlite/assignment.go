package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

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

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO assignments (id, username, title, status, created_at, due_date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Title, string(a.Status), a.CreatedAt, a.DueDate,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating assignment: %w", err)
	}
	return nil
}

// ListAssignments returns the user's assignments, oldest first.
func (db *DB) ListAssignments(ctx context.Context, username string) ([]model.Assignment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, title, status, created_at, due_date
		 FROM assignments
		 WHERE username = ?
		 ORDER BY created_at ASC, id ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing assignments: %w", err)
	}
	defer rows.Close()

	assignments := []model.Assignment{}
	for rows.Next() {
		var (
			a      model.Assignment
			status string
			due    sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.Title, &status, &a.CreatedAt, &due); err != nil {
			return nil, fmt.Errorf("sqlite: scanning assignment: %w", err)
		}
		a.Status = model.AssignmentStatus(status)
		if due.Valid {
			t := due.Time.UTC()
			a.DueDate = &t
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating assignments: %w", err)
	}
	return assignments, nil
}

// UpdateAssignmentStatus changes the status of one of username's assignments.
func (db *DB) UpdateAssignmentStatus(ctx context.Context, username, id string, status model.AssignmentStatus) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE assignments SET status = ? WHERE id = ? AND username = ?`,
		string(status), id, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating assignment %s: %w", id, err)
	}
	return expectOneRow(res, "assignment", id)
}

// DeleteAssignment removes one of username's assignments.
func (db *DB) DeleteAssignment(ctx context.Context, username, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM assignments WHERE id = ? AND username = ?`, id, username)
	if err != nil {
		return fmt.Errorf("sqlite: deleting assignment %s: %w", id, err)
	}
	return expectOneRow(res, "assignment", id)
}

// expectOneRow turns "zero rows affected" into a NotFound. A row that exists
// but belongs to someone else is indistinguishable from a missing one.
func expectOneRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
