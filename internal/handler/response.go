package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// response shape.
//
// CONSISTENT ERROR FORMAT:
//   {"error": "invalid_token", "message": "Invalid verification link"}
//
// "error" is machine-readable and stable; "message" is safe to show a user.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/study-tracker/internal/apperror"
)

// maxBodyBytes caps JSON and form bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, when there is one
}

// SuccessResponse is the body of form endpoints that have nothing else to say.
type SuccessResponse struct {
	Success bool `json:"success"`
}

var success = SuccessResponse{Success: true}

// writeJSON sends a JSON response with the given status code.
// Headers and status must go out before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error code.
//
// ERROR MAPPING:
// The service layer knows nothing about HTTP. It returns errors wrapping an
// apperror sentinel, and this table is the only place they become statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, apperror.ErrTokenExpired):
		return http.StatusBadRequest, "token_expired"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "already_exists"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError sends err as an ErrorResponse.
//
// Only *apperror.AppError messages reach the client. Anything else becomes a
// generic 500, since a raw error can carry SQL, file paths, or driver detail.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		writeJSON(w, status, ErrorResponse{Error: code, Message: "An internal error occurred"})
		return
	}
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a single JSON object from r into dst. Unknown fields and
// oversized bodies are rejected as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// parseForm accepts both urlencoded and multipart bodies, matching what a
// browser form submits.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return apperror.ValidationFailed("body", "invalid form body")
	}
	return nil
}
