package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/team-calendar/backend/internal/api/middleware"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/reminder"
)

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
}

// CreateUser registers a user.
func CreateUser(calendars *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if !decodeBody(w, r, &req) {
			return
		}

		u, err := calendars.CreateUser(r.Context(), req.Email, req.Name)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// GetUser returns a single user.
func GetUser(calendars *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := calendars.GetUser(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// ListUserCalendars returns a user's calendar list, primary first.
func ListUserCalendars(calendars *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if !selfOnly(w, r, userID, "Calendar lists are private") {
			return
		}

		list, err := calendars.ListForUser(r.Context(), userID)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// selfOnly writes a 403 and returns false when the acting user is someone
// other than userID.
func selfOnly(w http.ResponseWriter, r *http.Request, userID, message string) bool {
	if subject := r.Header.Get(UserHeader); subject != "" && subject != userID {
		middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, message)
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// ListUsers returns a page of users. Query parameters skip and limit
// default to 0 and 100.
func ListUsers(calendars *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, ok := queryInt(w, r, "skip", 0)
		if !ok {
			return
		}
		limit, ok := queryInt(w, r, "limit", 100)
		if !ok {
			return
		}

		users, err := calendars.ListUsers(r.Context(), skip, limit)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// UpdateUser changes a user's email or name.
func UpdateUser(calendars *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !selfOnly(w, r, id, "Users can only update themselves") {
			return
		}

		var req calendar.UserUpdate
		if !decodeBody(w, r, &req) {
			return
		}

		u, err := calendars.UpdateUser(r.Context(), id, req)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// DeleteUser removes a user with their calendars and drops the pending
// reminders of every event that went with them.
func DeleteUser(calendars *calendar.Service, reminders *reminder.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !selfOnly(w, r, id, "Users can only delete themselves") {
			return
		}

		removed, err := calendars.DeleteUser(r.Context(), id)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		for _, eventID := range removed {
			reminders.Cancel(eventID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
