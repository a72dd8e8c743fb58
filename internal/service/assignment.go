package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/repository"
)

const MaxAssignmentTitleLength = 200

// AssignmentService manages a user's homework list.
type AssignmentService struct {
	repo   repository.AssignmentRepository
	logger *slog.Logger
}

func NewAssignmentService(repo repository.AssignmentRepository, logger *slog.Logger) *AssignmentService {
	return &AssignmentService{repo: repo, logger: logger}
}

// CreateAssignmentRequest is the input for CreateAssignment.
type CreateAssignmentRequest struct {
	Title   string
	Status  model.AssignmentStatus
	DueDate *time.Time
}

func (s *AssignmentService) CreateAssignment(ctx context.Context, username string, req CreateAssignmentRequest) (*model.Assignment, error) {
	ctx, span := tracer.Start(ctx, "AssignmentService.CreateAssignment")
	defer span.End()

	title := sanitize(req.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxAssignmentTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or fewer", MaxAssignmentTitleLength))
	}

	status := req.Status
	if status == "" {
		status = model.AssignmentPending
	}
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}

	a := &model.Assignment{
		Username: username,
		Title:    title,
		Status:   status,
		DueDate:  req.DueDate,
	}
	if a.DueDate != nil {
		d := a.DueDate.UTC()
		a.DueDate = &d
	}

	if err := s.repo.CreateAssignment(ctx, a); err != nil {
		return nil, fail(span, fmt.Errorf("service/assignment: creating for %q: %w", username, err))
	}

	s.logger.InfoContext(ctx, "assignment created",
		slog.String("username", username),
		slog.String("id", a.ID),
	)
	return a, nil
}

func (s *AssignmentService) ListAssignments(ctx context.Context, username string) ([]model.Assignment, error) {
	ctx, span := tracer.Start(ctx, "AssignmentService.ListAssignments")
	defer span.End()

	list, err := s.repo.ListAssignments(ctx, username)
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/assignment: listing for %q: %w", username, err))
	}
	return list, nil
}

// UpdateStatus moves an assignment to status. Any status may follow any
// other, so a finished assignment can be reopened.
func (s *AssignmentService) UpdateStatus(ctx context.Context, username, id string, status model.AssignmentStatus) error {
	ctx, span := tracer.Start(ctx, "AssignmentService.UpdateStatus")
	defer span.End()

	if !status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}
	if err := s.repo.UpdateAssignmentStatus(ctx, username, id, status); err != nil {
		return fail(span, fmt.Errorf("service/assignment: updating %s: %w", id, err))
	}
	return nil
}

func (s *AssignmentService) DeleteAssignment(ctx context.Context, username, id string) error {
	ctx, span := tracer.Start(ctx, "AssignmentService.DeleteAssignment")
	defer span.End()

	if err := s.repo.DeleteAssignment(ctx, username, id); err != nil {
		return fail(span, fmt.Errorf("service/assignment: deleting %s: %w", id, err))
	}
	return nil
}
