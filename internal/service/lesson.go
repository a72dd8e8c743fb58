package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/repository"
)

const (
	MaxLessonNameLength = 120

	// CurveDays is how many days past the last study the curve covers.
	CurveDays = 30

	// maxStabilityExponent caps stability at 2^8 = 256 days.
	maxStabilityExponent = 8
)

// LessonService tracks lessons and estimates how much of each is retained.
type LessonService struct {
	repo   repository.LessonRepository
	now    Clock
	logger *slog.Logger
}

func NewLessonService(repo repository.LessonRepository, logger *slog.Logger) *LessonService {
	return &LessonService{repo: repo, now: time.Now, logger: logger}
}

// WithClock replaces the clock used for study timestamps and retention.
func (s *LessonService) WithClock(now Clock) *LessonService {
	s.now = now
	return s
}

func (s *LessonService) CreateLesson(ctx context.Context, username, name string) (*model.Lesson, error) {
	ctx, span := tracer.Start(ctx, "LessonService.CreateLesson")
	defer span.End()

	name = sanitize(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "lesson name is required")
	}
	if len(name) > MaxLessonNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("lesson name must be %d characters or fewer", MaxLessonNameLength))
	}

	l := &model.Lesson{Username: username, Name: name}
	if err := s.repo.CreateLesson(ctx, l); err != nil {
		return nil, fail(span, fmt.Errorf("service/lesson: creating %q: %w", name, err))
	}

	s.logger.InfoContext(ctx, "lesson created", slog.String("username", username), slog.String("id", l.ID))
	return l, nil
}

func (s *LessonService) ListLessons(ctx context.Context, username string) ([]model.Lesson, error) {
	ctx, span := tracer.Start(ctx, "LessonService.ListLessons")
	defer span.End()

	lessons, err := s.repo.ListLessons(ctx, username)
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/lesson: listing for %q: %w", username, err))
	}
	return lessons, nil
}

// MarkStudied records a review now, which resets the curve and makes it
// decay more slowly.
func (s *LessonService) MarkStudied(ctx context.Context, username, id string) (*model.Lesson, error) {
	ctx, span := tracer.Start(ctx, "LessonService.MarkStudied")
	defer span.End()

	l, err := s.repo.MarkLessonStudied(ctx, username, id, s.now().UTC())
	if err != nil {
		return nil, fail(span, fmt.Errorf("service/lesson: marking %s studied: %w", id, err))
	}
	return l, nil
}

func (s *LessonService) DeleteLesson(ctx context.Context, username, id string) error {
	ctx, span := tracer.Start(ctx, "LessonService.DeleteLesson")
	defer span.End()

	if err := s.repo.DeleteLesson(ctx, username, id); err != nil {
		return fail(span, fmt.Errorf("service/lesson: deleting %s: %w", id, err))
	}
	return nil
}

// ForgettingCurves returns one retention curve per lesson.
func (s *LessonService) ForgettingCurves(ctx context.Context, username string) ([]model.ForgettingCurve, error) {
	lessons, err := s.ListLessons(ctx, username)
	if err != nil {
		return nil, err
	}

	now := s.now()
	curves := make([]model.ForgettingCurve, 0, len(lessons))
	for _, l := range lessons {
		curves = append(curves, ForgettingCurve(l, now))
	}
	return curves, nil
}

// ForgettingCurve estimates retention with an exponential decay
// R(t) = e^(-t/S), where t is days since the last study and the stability
// S = 2^reviews days doubles with every review (capped at 256 days).
// A lesson never studied decays from its creation time.
func ForgettingCurve(l model.Lesson, now time.Time) model.ForgettingCurve {
	stability := Stability(l.ReviewCount)

	anchor := l.CreatedAt
	if l.LastStudiedAt != nil {
		anchor = *l.LastStudiedAt
	}
	elapsed := max(now.Sub(anchor).Hours()/24, 0)

	points := make([]model.CurvePoint, 0, CurveDays+1)
	for day := 0; day <= CurveDays; day++ {
		points = append(points, model.CurvePoint{X: day, Y: retention(float64(day), stability)})
	}

	return model.ForgettingCurve{
		LessonID:  l.ID,
		Name:      l.Name,
		Retention: retention(elapsed, stability),
		Curve:     points,
	}
}

// Stability is the number of days it takes retention to fall to 1/e.
func Stability(reviews int) float64 {
	return math.Exp2(float64(min(max(reviews, 0), maxStabilityExponent)))
}

// retention is the percentage retained after days, rounded to one decimal.
func retention(days, stability float64) float64 {
	return math.Round(math.Exp(-days/stability)*1000) / 10
}
