package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/repository"
)

const (
	MaxProfileFieldLength = 200
	MaxSubjects           = 50
	MaxAge                = 150
)

// ProfileService reads and saves the profile page.
type ProfileService struct {
	repo   repository.ProfileRepository
	logger *slog.Logger
}

func NewProfileService(repo repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, logger: logger}
}

// GetProfile returns the user's profile. A user who never saved one gets an
// empty profile rather than an error, so the page can render blank fields.
func (s *ProfileService) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	ctx, span := tracer.Start(ctx, "ProfileService.GetProfile")
	defer span.End()

	p, err := s.repo.GetProfile(ctx, username)
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.Profile{Username: username, Subjects: []string{}}, nil
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/profile: loading %q: %w", username, err))
	}
	p.SubjectCount = len(p.Subjects)
	return p, nil
}

// SaveProfile validates and stores p, replacing the subject set.
// Subjects are trimmed; blanks and duplicates are dropped.
func (s *ProfileService) SaveProfile(ctx context.Context, p *model.Profile) error {
	ctx, span := tracer.Start(ctx, "ProfileService.SaveProfile")
	defer span.End()

	p.FullName = sanitize(p.FullName)
	p.School = sanitize(p.School)
	p.Grade = sanitize(p.Grade)
	p.Stream = sanitize(p.Stream)
	p.ContactInfo = sanitize(p.ContactInfo)
	p.Address = sanitize(p.Address)
	p.Subjects = cleanSubjects(p.Subjects)

	if err := validateProfile(p); err != nil {
		return err
	}

	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return fail(span, fmt.Errorf("service/profile: saving %q: %w", p.Username, err))
	}

	s.logger.InfoContext(ctx, "profile saved",
		slog.String("username", p.Username),
		slog.Int("subjects", len(p.Subjects)),
	)
	return nil
}

func cleanSubjects(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = sanitize(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func validateProfile(p *model.Profile) error {
	if p.FullName == "" {
		return apperror.ValidationFailed("full_name", "full name is required")
	}
	if p.Age < 1 || p.Age > MaxAge {
		return apperror.ValidationFailed("age", fmt.Sprintf("age must be between 1 and %d", MaxAge))
	}

	fields := map[string]string{
		"full_name":    p.FullName,
		"school":       p.School,
		"grade":        p.Grade,
		"stream":       p.Stream,
		"contact_info": p.ContactInfo,
		"address":      p.Address,
	}
	for name, v := range fields {
		if len(v) > MaxProfileFieldLength {
			return apperror.ValidationFailed(name,
				fmt.Sprintf("%s must be %d characters or fewer", strings.ReplaceAll(name, "_", " "), MaxProfileFieldLength))
		}
	}

	if len(p.Subjects) > MaxSubjects {
		return apperror.ValidationFailed("subjects", fmt.Sprintf("at most %d subjects", MaxSubjects))
	}
	for _, s := range p.Subjects {
		if len(s) > MaxProfileFieldLength {
			return apperror.ValidationFailed("subjects", "subject name too long")
		}
	}
	return nil
}
