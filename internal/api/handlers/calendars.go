package handlers

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/middleware"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/reminder"
	"github.com/team-calendar/backend/internal/storage/models"
)

// CreateCalendarRequest is the body of POST /calendars.
type CreateCalendarRequest struct {
	calendar.CalendarInput
	OwnerID string `json:"owner_id"`
}

// CreateCalendar creates a calendar. The owner is the acting user unless
// the body names one.
func CreateCalendar(calendars *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateCalendarRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ownerID := req.OwnerID
		if ownerID == "" {
			ownerID = r.Header.Get(UserHeader)
		}
		if ownerID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "owner_id is required")
			return
		}

		cal, err := calendars.CreateCalendar(r.Context(), ownerID, req.CalendarInput)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, cal)
	}
}

// GetCalendar returns a calendar's metadata.
func GetCalendar(calendars *calendar.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleFreeBusyReader) {
			return
		}

		cal, err := calendars.GetCalendar(r.Context(), id)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cal)
	}
}

// DefaultRemindersRequest carries the replacement default reminders.
type DefaultRemindersRequest struct {
	Reminders []models.DefaultReminder `json:"reminders"`
}

// SetDefaultReminders replaces the default reminders on a user's entry for
// a calendar. Only that user may change them.
func SetDefaultReminders(calendars *calendar.Service, reminders *reminder.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		if subject := r.Header.Get(UserHeader); subject != "" && subject != vars["userID"] {
			middleware.WriteError(w, http.StatusForbidden, middleware.ErrForbidden, "Default reminders belong to the list owner")
			return
		}

		var req DefaultRemindersRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if err := calendars.SetDefaultReminders(r.Context(), vars["userID"], vars["id"], req.Reminders); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		if _, err := reminders.RescheduleCalendar(r.Context(), vars["id"]); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		if req.Reminders == nil {
			req.Reminders = []models.DefaultReminder{}
		}
		writeJSON(w, http.StatusOK, req)
	}
}

// ExportCalendar streams the calendar as an iCalendar feed.
func ExportCalendar(calendars *calendar.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleReader) {
			return
		}

		// buffered so a failure can still produce a JSON error
		var buf bytes.Buffer
		if err := calendars.ExportICS(r.Context(), id, &buf); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.ics"`)
		w.Write(buf.Bytes())
	}
}
