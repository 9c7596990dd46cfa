// Package middleware provides HTTP middleware and error rendering for the API.
package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/team-calendar/backend/internal/apperr"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// WriteServiceError maps a service error onto a status code and error code.
// Unclassified errors are logged and reported as internal errors without
// their text.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.Is(err, apperr.ErrInvalidRecurrence):
		WriteError(w, http.StatusBadRequest, ErrInvalidRecurrence, err.Error())
	case errors.Is(err, apperr.ErrValidation):
		WriteError(w, http.StatusBadRequest, ErrValidation, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
	case errors.Is(err, apperr.ErrInvalidIdentity):
		WriteError(w, http.StatusUnprocessableEntity, ErrInvalidIdentity, err.Error())
	default:
		slog.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path, "stack", string(debug.Stack()))
					WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Common error codes
const (
	ErrNotFound          = "not_found"
	ErrBadRequest        = "bad_request"
	ErrConflict          = "conflict"
	ErrInternalError     = "internal_error"
	ErrValidation        = "validation_error"
	ErrInvalidRecurrence = "invalid_recurrence"
	ErrInvalidIdentity   = "invalid_identity"
	ErrUnauthorized      = "unauthorized"
	ErrForbidden         = "forbidden"
)
