package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Event status constants
const (
	EventStatusConfirmed = "confirmed"
	EventStatusTentative = "tentative"
	EventStatusCancelled = "cancelled"
)

// Event transparency constants
const (
	TransparencyOpaque      = "opaque"      // blocks time in free/busy
	TransparencyTransparent = "transparent" // does not block time
)

// Event visibility constants
const (
	VisibilityDefault      = "default"
	VisibilityPublic       = "public"
	VisibilityPrivate      = "private"
	VisibilityConfidential = "confidential"
)

// Attendee response status constants
const (
	ResponseNeedsAction = "needsAction"
	ResponseAccepted    = "accepted"
	ResponseDeclined    = "declined"
	ResponseTentative   = "tentative"
)

// Event is one physical copy of a logical event. Copies in different
// calendars share the same ICalUID.
type Event struct {
	ID           string      `json:"id"`
	CalendarID   string      `json:"calendar_id"`
	ICalUID      *string     `json:"iCalUID,omitempty"`
	Summary      string      `json:"summary"`
	Description  *string     `json:"description,omitempty"`
	Location     *string     `json:"location,omitempty"`
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	IsAllDay     bool        `json:"is_all_day"`
	Status       string      `json:"status"`
	Transparency string      `json:"transparency"`
	Visibility   string      `json:"visibility"`
	ColorID      *int        `json:"color_id,omitempty"`
	Recurrence   *Recurrence `json:"recurrence,omitempty"`
	CreatorID    *string     `json:"creator_id,omitempty"`
	OrganizerID  *string     `json:"organizer_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// UID returns the iCalUID or an empty string.
func (e *Event) UID() string {
	if e.ICalUID == nil {
		return ""
	}
	return *e.ICalUID
}

// IsRecurring returns true if the event carries at least one recurrence line.
func (e *Event) IsRecurring() bool {
	return e.Recurrence != nil && len(e.Recurrence.Rules) > 0
}

// Duration returns End - Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// EventAttendee is one roster entry on one event copy.
type EventAttendee struct {
	ID             int64     `json:"id"`
	EventID        string    `json:"event_id"`
	UserID         *string   `json:"user_id,omitempty"`
	Email          string    `json:"email"`
	DisplayName    *string   `json:"display_name,omitempty"`
	ResponseStatus string    `json:"response_status"`
	IsOrganizer    bool      `json:"is_organizer"`
	IsOptional     bool      `json:"is_optional"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Name returns the display name, falling back to the email address.
func (a *EventAttendee) Name() string {
	if a.DisplayName != nil && *a.DisplayName != "" {
		return *a.DisplayName
	}
	return a.Email
}

// EventWithDetails bundles an event with its roster and reminders.
type EventWithDetails struct {
	Event
	Attendees []EventAttendee `json:"attendees"`
	Reminders []Reminder      `json:"reminders"`

	// RecurrenceSummary describes the rule in English for recurring events.
	RecurrenceSummary string `json:"recurrence_summary,omitempty"`
}

// Recurrence holds RFC 5545 directive lines. It accepts both a flat JSON
// array and a {"rules": [...]} wrapper, and re-encodes in the form it was
// given.
type Recurrence struct {
	Rules   []string
	Wrapped bool
}

type wrappedRecurrence struct {
	Rules []string `json:"rules"`
}

// MarshalJSON implements json.Marshaler.
func (r Recurrence) MarshalJSON() ([]byte, error) {
	rules := r.Rules
	if rules == nil {
		rules = []string{}
	}
	if r.Wrapped {
		return json.Marshal(wrappedRecurrence{Rules: rules})
	}
	return json.Marshal(rules)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Recurrence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("recurrence: empty value")
	}

	switch data[0] {
	case '[':
		var rules []string
		if err := json.Unmarshal(data, &rules); err != nil {
			return err
		}
		r.Rules, r.Wrapped = rules, false
		return nil
	case '{':
		var w wrappedRecurrence
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		r.Rules, r.Wrapped = w.Rules, true
		return nil
	}
	return errors.New("recurrence: expected an array of rules or an object with a rules key")
}
