package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/middleware"
)

// UserHeader carries the ID of the acting user. Requests without it skip
// permission checks.
const UserHeader = "X-User-ID"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	return true
}

// authorize writes a 403 and returns false when the acting user holds less
// than required on the calendar.
func authorize(w http.ResponseWriter, r *http.Request, eval *acl.Evaluator, calendarID string, required acl.Role) bool {
	subject := r.Header.Get(UserHeader)
	if subject == "" || eval == nil {
		return true
	}

	ok, err := eval.CheckPermission(r.Context(), subject, calendarID, required)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return false
	}
	if !ok {
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden,
			"This calendar requires the "+required.String()+" role")
		return false
	}
	return true
}
