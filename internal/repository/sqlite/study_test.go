package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
)

// =========================================================================
// ASSIGNMENT TESTS
// =========================================================================

func TestAssignments_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestAccount(t, db, "alice", "a@x.com", "tok", time.Now().Add(time.Hour))

	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	a := &model.Assignment{Username: "alice", Title: "Essay", DueDate: &due}
	if err := db.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("CreateAssignment() error = %v", err)
	}
	if a.ID == "" || a.Status != model.AssignmentPending {
		t.Fatalf("CreateAssignment() = %+v, want ID and pending status", a)
	}

	if err := db.UpdateAssignmentStatus(ctx, "alice", a.ID, model.AssignmentDone); err != nil {
		t.Fatalf("UpdateAssignmentStatus() error = %v", err)
	}

	list, err := db.ListAssignments(ctx, "alice")
	if err != nil {
		t.Fatalf("ListAssignments() error = %v", err)
	}
	if len(list) != 1 || list[0].Status != model.AssignmentDone {
		t.Fatalf("ListAssignments() = %+v, want one done assignment", list)
	}
	if list[0].DueDate == nil || !list[0].DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", list[0].DueDate, due)
	}

	if err := db.DeleteAssignment(ctx, "alice", a.ID); err != nil {
		t.Fatalf("DeleteAssignment() error = %v", err)
	}
	if err := db.DeleteAssignment(ctx, "alice", a.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteAssignment() error = %v, want ErrNotFound", err)
	}
}

func TestAssignments_ScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestAccount(t, db, "alice", "a@x.com", "tok-a", time.Now().Add(time.Hour))
	createTestAccount(t, db, "bob", "b@x.com", "tok-b", time.Now().Add(time.Hour))

	a := &model.Assignment{Username: "alice", Title: "Essay"}
	if err := db.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("CreateAssignment() error = %v", err)
	}

	if err := db.UpdateAssignmentStatus(ctx, "bob", a.ID, model.AssignmentDone); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("bob updating alice's assignment error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteAssignment(ctx, "bob", a.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("bob deleting alice's assignment error = %v, want ErrNotFound", err)
	}

	list, _ := db.ListAssignments(ctx, "bob")
	if len(list) != 0 {
		t.Errorf("bob sees %d assignments, want 0", len(list))
	}
}

// =========================================================================
// LESSON TESTS
// =========================================================================

func TestLessons_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestAccount(t, db, "alice", "a@x.com", "tok", time.Now().Add(time.Hour))

	l := &model.Lesson{Username: "alice", Name: "Photosynthesis"}
	if err := db.CreateLesson(ctx, l); err != nil {
		t.Fatalf("CreateLesson() error = %v", err)
	}

	studiedAt := time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)
	updated, err := db.MarkLessonStudied(ctx, "alice", l.ID, studiedAt)
	if err != nil {
		t.Fatalf("MarkLessonStudied() error = %v", err)
	}
	if updated.ReviewCount != 1 {
		t.Errorf("ReviewCount = %d, want 1", updated.ReviewCount)
	}
	if updated.LastStudiedAt == nil || !updated.LastStudiedAt.Equal(studiedAt) {
		t.Errorf("LastStudiedAt = %v, want %v", updated.LastStudiedAt, studiedAt)
	}

	list, err := db.ListLessons(ctx, "alice")
	if err != nil {
		t.Fatalf("ListLessons() error = %v", err)
	}
	if len(list) != 1 || list[0].ReviewCount != 1 {
		t.Fatalf("ListLessons() = %+v, want one lesson reviewed once", list)
	}

	if err := db.DeleteLesson(ctx, "alice", l.ID); err != nil {
		t.Fatalf("DeleteLesson() error = %v", err)
	}
	if _, err := db.MarkLessonStudied(ctx, "alice", l.ID, studiedAt); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("MarkLessonStudied() on deleted lesson error = %v, want ErrNotFound", err)
	}
}

func TestCreateLesson_DuplicateNamePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestAccount(t, db, "alice", "a@x.com", "tok-a", time.Now().Add(time.Hour))
	createTestAccount(t, db, "bob", "b@x.com", "tok-b", time.Now().Add(time.Hour))

	if err := db.CreateLesson(ctx, &model.Lesson{Username: "alice", Name: "Algebra"}); err != nil {
		t.Fatalf("CreateLesson() error = %v", err)
	}

	err := db.CreateLesson(ctx, &model.Lesson{Username: "alice", Name: "Algebra"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("duplicate CreateLesson() error = %v, want ErrConflict", err)
	}

	// Same name for a different user is fine.
	if err := db.CreateLesson(ctx, &model.Lesson{Username: "bob", Name: "Algebra"}); err != nil {
		t.Fatalf("CreateLesson() for bob error = %v", err)
	}
}
