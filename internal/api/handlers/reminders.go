package handlers

import (
	"net/http"
	"strconv"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/middleware"
	"github.com/team-calendar/backend/internal/event"
	"github.com/team-calendar/backend/internal/reminder"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

// GetEventReminders returns the event-level reminder overrides.
func GetEventReminders(events *event.Service, reminders *reminder.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleReader)
		if !ok {
			return
		}

		list, err := reminders.Reminders(r.Context(), e.ID)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		if list == nil {
			list = []models.Reminder{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// SetRemindersRequest replaces the reminders of one event.
type SetRemindersRequest struct {
	Reminders []reminder.Entry `json:"reminders"`
}

// SetEventReminders replaces the reminder overrides of one event copy.
func SetEventReminders(events *event.Service, reminders *reminder.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleWriter)
		if !ok {
			return
		}

		var req SetRemindersRequest
		if !decodeBody(w, r, &req) {
			return
		}

		list, err := reminders.SetEventReminders(r.Context(), e.ID, req.Reminders)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// ListNotifications returns notification log rows, newest first. The
// acting user, when present, only sees their own rows.
func ListNotifications(reminders *reminder.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := storage.LogFilter{
			EventID: q.Get("event_id"),
			UserID:  q.Get("user_id"),
			Limit:   100,
		}
		if subject := r.Header.Get(UserHeader); subject != "" {
			filter.UserID = subject
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "limit must be a positive integer")
				return
			}
			filter.Limit = n
		}

		logs, err := reminders.Logs(r.Context(), filter)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		if logs == nil {
			logs = []models.NotificationLog{}
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

// ListJobs returns the pending reminder jobs.
func ListJobs(reminders *reminder.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := reminders.Jobs()
		if jobs == nil {
			jobs = []reminder.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}
