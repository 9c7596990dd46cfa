package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeEventCreated      MessageType = "event.created"
	TypeEventUpdated      MessageType = "event.updated"
	TypeEventDeleted      MessageType = "event.deleted"
	TypeAttendeeResponded MessageType = "attendee.responded"
	TypeReminderFired     MessageType = "reminder.fired"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventPayload is the payload for event.* messages. Copies lists the IDs of
// every copy the change touched.
type EventPayload struct {
	EventID    string    `json:"event_id"`
	CalendarID string    `json:"calendar_id"`
	ICalUID    string    `json:"ical_uid,omitempty"`
	Summary    string    `json:"summary"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Copies     []string  `json:"copies,omitempty"`
}

// AttendeePayload is the payload for attendee.responded messages.
type AttendeePayload struct {
	EventID        string `json:"event_id"`
	ICalUID        string `json:"ical_uid"`
	Email          string `json:"email"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Message        string `json:"message"`
}

// ReminderPayload is the payload for reminder.fired messages.
type ReminderPayload struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id,omitempty"`
	Method        string    `json:"method"`
	MinutesBefore int       `json:"minutes_before"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Message       string    `json:"message"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
