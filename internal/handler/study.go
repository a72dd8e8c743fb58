package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/study-tracker/internal/apperror"
	"github.com/sakif/study-tracker/internal/auth"
	"github.com/sakif/study-tracker/internal/model"
	"github.com/sakif/study-tracker/internal/service"
)

// ProfileService is the part of service.ProfileService the HTTP layer calls.
type ProfileService interface {
	GetProfile(ctx context.Context, username string) (*model.Profile, error)
	SaveProfile(ctx context.Context, p *model.Profile) error
}

// AssignmentService is the part of service.AssignmentService the HTTP layer calls.
type AssignmentService interface {
	CreateAssignment(ctx context.Context, username string, req service.CreateAssignmentRequest) (*model.Assignment, error)
	ListAssignments(ctx context.Context, username string) ([]model.Assignment, error)
	UpdateStatus(ctx context.Context, username, id string, status model.AssignmentStatus) error
	DeleteAssignment(ctx context.Context, username, id string) error
}

// LessonService is the part of service.LessonService the HTTP layer calls.
type LessonService interface {
	CreateLesson(ctx context.Context, username, name string) (*model.Lesson, error)
	ListLessons(ctx context.Context, username string) ([]model.Lesson, error)
	MarkStudied(ctx context.Context, username, id string) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, username, id string) error
	ForgettingCurves(ctx context.Context, username string) ([]model.ForgettingCurve, error)
}

// StudyHandler serves the per-user study data: profile, assignments, and
// lessons. Every route sits behind auth.RequireUser and only ever touches
// the logged-in user's rows.
type StudyHandler struct {
	profiles    ProfileService
	assignments AssignmentService
	lessons     LessonService
	logger      *slog.Logger
}

// NewStudyHandler creates a StudyHandler.
func NewStudyHandler(profiles ProfileService, assignments AssignmentService, lessons LessonService, logger *slog.Logger) *StudyHandler {
	return &StudyHandler{
		profiles:    profiles,
		assignments: assignments,
		lessons:     lessons,
		logger:      logger,
	}
}

// =========================================================================
// Profile
// =========================================================================

// HandleGetProfile returns the user's profile, empty if never saved.
//
// HTTP: GET /api/profile
func (h *StudyHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), username)
	if err != nil {
		h.fail(w, r, "loading profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleSaveProfile replaces the user's profile.
//
// HTTP: POST /profile
// FORM: full_name, age, school, grade, stream, contact_info, address,
// and subjects repeated once per subject.
func (h *StudyHandler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}
	if err := parseForm(w, r); err != nil {
		writeError(w, err)
		return
	}

	age, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("age")))
	if err != nil {
		writeError(w, apperror.ValidationFailed("age", "age must be a whole number"))
		return
	}

	profile := &model.Profile{
		Username:    username,
		FullName:    r.PostFormValue("full_name"),
		Age:         age,
		School:      r.PostFormValue("school"),
		Grade:       r.PostFormValue("grade"),
		Stream:      r.PostFormValue("stream"),
		ContactInfo: r.PostFormValue("contact_info"),
		Address:     r.PostFormValue("address"),
		Subjects:    r.PostForm["subjects"],
	}
	if err := h.profiles.SaveProfile(r.Context(), profile); err != nil {
		h.fail(w, r, "saving profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// =========================================================================
// Assignments
// =========================================================================

type createAssignmentBody struct {
	Title  string `json:"title"`
	Status string `json:"status"`
	// DueDate accepts RFC 3339 or a bare YYYY-MM-DD.
	DueDate string `json:"dueDate"`
}

type updateAssignmentBody struct {
	Status string `json:"status"`
}

// HandleListAssignments returns the user's assignments.
//
// HTTP: GET /api/assignments
func (h *StudyHandler) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	list, err := h.assignments.ListAssignments(r.Context(), username)
	if err != nil {
		h.fail(w, r, "listing assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateAssignment adds an assignment.
//
// HTTP: POST /api/assignments
// BODY: {"title": "Essay", "status": "pending", "dueDate": "2026-04-01"}
func (h *StudyHandler) HandleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	var body createAssignmentBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	due, err := parseDueDate(body.DueDate)
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.assignments.CreateAssignment(r.Context(), username, service.CreateAssignmentRequest{
		Title:   body.Title,
		Status:  model.AssignmentStatus(body.Status),
		DueDate: due,
	})
	if err != nil {
		h.fail(w, r, "creating assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleUpdateAssignment changes an assignment's status.
//
// HTTP: PATCH /api/assignments/{id}
// BODY: {"status": "done"}
func (h *StudyHandler) HandleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	var body updateAssignmentBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.assignments.UpdateStatus(r.Context(), username, id, model.AssignmentStatus(body.Status)); err != nil {
		h.fail(w, r, "updating assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

// HandleDeleteAssignment removes an assignment.
//
// HTTP: DELETE /api/assignments/{id}
func (h *StudyHandler) HandleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	if err := h.assignments.DeleteAssignment(r.Context(), username, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "deleting assignment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// Lessons
// =========================================================================

type createLessonBody struct {
	Name string `json:"name"`
}

// HandleListLessons returns the user's lessons.
//
// HTTP: GET /api/lessons
func (h *StudyHandler) HandleListLessons(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	lessons, err := h.lessons.ListLessons(r.Context(), username)
	if err != nil {
		h.fail(w, r, "listing lessons", err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}

// HandleCreateLesson adds a lesson. Names are unique per user.
//
// HTTP: POST /api/lessons
// BODY: {"name": "Algebra"}
func (h *StudyHandler) HandleCreateLesson(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	var body createLessonBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	lesson, err := h.lessons.CreateLesson(r.Context(), username, body.Name)
	if err != nil {
		h.fail(w, r, "creating lesson", err)
		return
	}
	writeJSON(w, http.StatusCreated, lesson)
}

// HandleStudyLesson records a review of a lesson.
//
// HTTP: POST /api/lessons/{id}/study
func (h *StudyHandler) HandleStudyLesson(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	lesson, err := h.lessons.MarkStudied(r.Context(), username, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "marking lesson studied", err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

// HandleDeleteLesson removes a lesson.
//
// HTTP: DELETE /api/lessons/{id}
func (h *StudyHandler) HandleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	if err := h.lessons.DeleteLesson(r.Context(), username, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "deleting lesson", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleForgettingCurves returns one retention curve per lesson.
//
// HTTP: GET /api/forgetting-curves
//
// RESPONSE FORMAT:
//
//	[{"id":"...","name":"Algebra","retention":36.8,"curve":[{"x":0,"y":100},...]}]
func (h *StudyHandler) HandleForgettingCurves(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	curves, err := h.lessons.ForgettingCurves(r.Context(), username)
	if err != nil {
		h.fail(w, r, "computing forgetting curves", err)
		return
	}
	writeJSON(w, http.StatusOK, curves)
}

// username returns the logged-in user or answers 401.
func (h *StudyHandler) username(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return "", false
	}
	return user.Username, true
}

func (h *StudyHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op, slog.String("error", err.Error()))
	}
	writeError(w, err)
}

func parseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, nil
	}
	return nil, apperror.ValidationFailed("dueDate", "due date must be YYYY-MM-DD or RFC 3339")
}
