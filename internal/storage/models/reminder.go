package models

import (
	"time"
)

// Reminder method constants
const (
	ReminderMethodPopup = "popup"
	ReminderMethodEmail = "email"
)

// Reminder is an event-level reminder override.
type Reminder struct {
	ID            int64     `json:"id"`
	EventID       string    `json:"event_id"`
	Method        string    `json:"method"`
	MinutesBefore int       `json:"minutes_before"`
	CreatedAt     time.Time `json:"created_at"`
}

// NotificationLog records a delivered notification. Rows are never updated.
type NotificationLog struct {
	ID             int64      `json:"id"`
	EventID        string     `json:"event_id"`
	UserID         *string    `json:"user_id,omitempty"`
	ReminderMethod string     `json:"reminder_method"`
	MinutesBefore  int        `json:"minutes_before"`
	ScheduledTime  time.Time  `json:"scheduled_time"`
	SentTime       time.Time  `json:"sent_time"`
	EventSummary   *string    `json:"event_summary,omitempty"`
	EventStart     *time.Time `json:"event_start,omitempty"`
	Message        *string    `json:"message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
