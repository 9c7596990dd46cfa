// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"log/slog"

	"github.com/gorilla/mux"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/handlers"
	"github.com/team-calendar/backend/internal/api/middleware"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/event"
	"github.com/team-calendar/backend/internal/reminder"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/task"
	"github.com/team-calendar/backend/internal/websocket"
)

// Services bundles the collaborators the handlers call into.
type Services struct {
	DB        *storage.DB
	Hub       *websocket.Hub
	Calendars *calendar.Service
	ACL       *acl.Evaluator
	Events    *event.Service
	Reminders *reminder.Service
	Tasks     *task.Service
	Logger    *slog.Logger
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()

	r.Use(middleware.Logging(logger.With("component", "http")))
	r.Use(middleware.ErrorRecovery(logger))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Reminders, s.Hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, logger)).Methods("GET")

	// User endpoints
	api.HandleFunc("/users", handlers.ListUsers(s.Calendars)).Methods("GET")
	api.HandleFunc("/users", handlers.CreateUser(s.Calendars)).Methods("POST")
	api.HandleFunc("/users/{id}", handlers.GetUser(s.Calendars)).Methods("GET")
	api.HandleFunc("/users/{id}", handlers.UpdateUser(s.Calendars)).Methods("PATCH")
	api.HandleFunc("/users/{id}", handlers.DeleteUser(s.Calendars, s.Reminders)).Methods("DELETE")
	api.HandleFunc("/users/{id}/calendars", handlers.ListUserCalendars(s.Calendars)).Methods("GET")
	api.HandleFunc("/users/{id}/tasks", handlers.ListUserTasks(s.Tasks)).Methods("GET")

	// Calendar endpoints
	api.HandleFunc("/calendars", handlers.CreateCalendar(s.Calendars)).Methods("POST")
	api.HandleFunc("/calendars/{id}", handlers.GetCalendar(s.Calendars, s.ACL)).Methods("GET")
	api.HandleFunc("/calendars/{id}/acl", handlers.ListACL(s.ACL)).Methods("GET")
	api.HandleFunc("/calendars/{id}/acl", handlers.ShareCalendar(s.ACL)).Methods("POST")
	api.HandleFunc("/calendars/{id}/acl/{ruleID}", handlers.RevokeACL(s.ACL)).Methods("DELETE")
	api.HandleFunc("/calendars/{id}/list/{userID}/default-reminders", handlers.SetDefaultReminders(s.Calendars, s.Reminders)).Methods("PUT")
	api.HandleFunc("/calendars/{id}/events.ics", handlers.ExportCalendar(s.Calendars, s.ACL)).Methods("GET")
	api.HandleFunc("/calendars/{id}/freebusy", handlers.FreeBusy(s.Events, s.ACL)).Methods("GET")
	api.HandleFunc("/calendars/{id}/events", handlers.ListEvents(s.Events, s.ACL)).Methods("GET")
	api.HandleFunc("/calendars/{id}/events", handlers.CreateEvent(s.Events, s.Calendars, s.ACL)).Methods("POST")

	// Event endpoints
	api.HandleFunc("/events/{id}", handlers.GetEvent(s.Events, s.ACL)).Methods("GET")
	api.HandleFunc("/events/{id}", handlers.UpdateEvent(s.Events, s.ACL)).Methods("PATCH")
	api.HandleFunc("/events/{id}", handlers.DeleteEvent(s.Events, s.ACL)).Methods("DELETE")
	api.HandleFunc("/events/{id}/respond", handlers.RespondToEvent(s.Events, s.ACL)).Methods("PATCH")
	api.HandleFunc("/events/{id}/copies", handlers.ListCopies(s.Events, s.ACL)).Methods("GET")
	api.HandleFunc("/events/{id}/attendees", handlers.ListAttendees(s.Events, s.ACL)).Methods("GET")
	api.HandleFunc("/events/{id}/tasks", handlers.ListEventTasks(s.Events, s.Tasks, s.ACL)).Methods("GET")
	api.HandleFunc("/events/{id}/reminders", handlers.GetEventReminders(s.Events, s.Reminders, s.ACL)).Methods("GET")
	api.HandleFunc("/events/{id}/reminders", handlers.SetEventReminders(s.Events, s.Reminders, s.ACL)).Methods("PUT")

	// Task endpoints
	api.HandleFunc("/tasks", handlers.CreateTask(s.Tasks)).Methods("POST")
	api.HandleFunc("/tasks/{id}", handlers.GetTask(s.Tasks)).Methods("GET")
	api.HandleFunc("/tasks/{id}", handlers.UpdateTask(s.Tasks)).Methods("PATCH")
	api.HandleFunc("/tasks/{id}", handlers.DeleteTask(s.Tasks)).Methods("DELETE")
	api.HandleFunc("/tasks/{id}/toggle", handlers.ToggleTask(s.Tasks)).Methods("POST")

	// Reminder endpoints
	api.HandleFunc("/notifications", handlers.ListNotifications(s.Reminders)).Methods("GET")
	api.HandleFunc("/reminders/jobs", handlers.ListJobs(s.Reminders)).Methods("GET")

	return r
}
