// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"

	"github.com/team-calendar/backend/internal/reminder"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Users            int `json:"users"`
	Calendars        int `json:"calendars"`
	Events           int `json:"events"`
	PendingReminders int `json:"pending_reminders"`
	WebSocketClients int `json:"websocket_clients"`
}

// Status returns a handler that reports record counts and live state.
func Status(db *storage.DB, reminders *reminder.Service, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var resp StatusResponse
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&resp.Users)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calendars").Scan(&resp.Calendars)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&resp.Events)
		resp.PendingReminders = len(reminders.Jobs())
		resp.WebSocketClients = hub.ClientCount()

		writeJSON(w, http.StatusOK, resp)
	}
}
