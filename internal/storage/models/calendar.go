package models

import (
	"time"
)

// Calendar is owned by exactly one user and holds events.
type Calendar struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Timezone    string    `json:"timezone"`
	OwnerID     string    `json:"owner_id"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Calendar role constants, lowest to highest.
const (
	RoleFreeBusyReader = "freeBusyReader"
	RoleReader         = "reader"
	RoleWriter         = "writer"
	RoleOwner          = "owner"
)

// CalendarListEntry is a user's personal view of a calendar.
type CalendarListEntry struct {
	ID               int64             `json:"id"`
	UserID           string            `json:"user_id"`
	CalendarID       string            `json:"calendar_id"`
	AccessRole       string            `json:"access_role"`
	Color            *string           `json:"color,omitempty"`
	DefaultReminders []DefaultReminder `json:"default_reminders,omitempty"`
	IsPrimary        bool              `json:"is_primary"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CalendarListEntryWithCalendar joins a list entry with its calendar.
type CalendarListEntryWithCalendar struct {
	CalendarListEntry
	Calendar Calendar `json:"calendar"`
}

// DefaultReminder is one element of a calendar's default reminder list.
// Minutes is a pointer so a missing value can be told apart from zero.
type DefaultReminder struct {
	Method  string `json:"method"`
	Minutes *int   `json:"minutes,omitempty"`
}

// CalendarACL grants a role on a calendar to an email or domain.
type CalendarACL struct {
	ID         int64     `json:"id"`
	CalendarID string    `json:"calendar_id"`
	Grantee    string    `json:"grantee"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
