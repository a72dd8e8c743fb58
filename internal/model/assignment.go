package model

import "time"

// AssignmentStatus is the progress of an assignment.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentDone       AssignmentStatus = "done"
)

// Valid reports whether s is one of the known statuses.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentPending, AssignmentInProgress, AssignmentDone:
		return true
	}
	return false
}

// Assignment is a piece of homework owned by Username.
type Assignment struct {
	ID        string           `json:"id"`
	Username  string           `json:"-"`
	Title     string           `json:"title"`
	Status    AssignmentStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	DueDate   *time.Time       `json:"dueDate,omitempty"`
}
