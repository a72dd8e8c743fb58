// Package repository declares the storage contracts the services depend on.
// internal/repository/sqlite and internal/repository/postgres implement them.
//
// Every write is a single atomic statement (or one transaction), so the
// uniqueness and single-use rules hold under concurrent requests without any
// locking in the service layer.
package repository

import (
	"context"
	"time"

	"github.com/sakif/study-tracker/internal/model"
)

// AccountRepository is the Account Store.
type AccountRepository interface {
	// Create inserts a new account. A username or email that is already taken
	// yields an apperror.AlreadyExists and nothing is written.
	Create(ctx context.Context, account *model.Account) error

	// GetByUsername returns apperror.ErrNotFound when no account matches.
	GetByUsername(ctx context.Context, username string) (*model.Account, error)

	// GetByEmail returns apperror.ErrNotFound when no account matches.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)

	// GetByVerificationToken returns apperror.ErrNotFound when no account
	// currently holds token.
	GetByVerificationToken(ctx context.Context, token string) (*model.Account, error)

	// MarkVerified flips the account holding token to verified and clears the
	// token, in one conditional update. It reports false when no unverified
	// account held the token at the time of the update.
	MarkVerified(ctx context.Context, token string) (bool, error)

	// ReplaceVerificationToken swaps in a fresh token for an unverified account.
	// It reports false when the account is missing or already verified.
	ReplaceVerificationToken(ctx context.Context, username, token string, expiresAt time.Time) (bool, error)
}

// ProfileRepository stores profiles and their subject sets.
type ProfileRepository interface {
	// GetProfile returns apperror.ErrNotFound when the user never saved one.
	GetProfile(ctx context.Context, username string) (*model.Profile, error)

	// SaveProfile upserts the profile and replaces the subject set atomically.
	SaveProfile(ctx context.Context, profile *model.Profile) error
}

// AssignmentRepository stores assignments. Every method is scoped to the
// owning username, so one user can never touch another's rows.
type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, a *model.Assignment) error
	ListAssignments(ctx context.Context, username string) ([]model.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, username, id string, status model.AssignmentStatus) error
	DeleteAssignment(ctx context.Context, username, id string) error
}

// LessonRepository stores lessons.
type LessonRepository interface {
	// CreateLesson yields apperror.AlreadyExists when the user already has a
	// lesson with the same name.
	CreateLesson(ctx context.Context, l *model.Lesson) error
	ListLessons(ctx context.Context, username string) ([]model.Lesson, error)
	// MarkLessonStudied sets last_studied_at and bumps review_count.
	MarkLessonStudied(ctx context.Context, username, id string, at time.Time) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, username, id string) error
}

// Store is everything the server needs from one backend.
type Store interface {
	AccountRepository
	ProfileRepository
	AssignmentRepository
	LessonRepository

	Ping(ctx context.Context) error
	Close() error
}
