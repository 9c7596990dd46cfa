package models

import "time"

// Task statuses.
const (
	TaskStatusNeedsAction = "needsAction"
	TaskStatusCompleted   = "completed"
)

// Task is a to-do item of one user, optionally linked to an event copy.
// CompletedAt is set exactly while the task is completed.
type Task struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Notes          *string    `json:"notes,omitempty"`
	Due            *time.Time `json:"due,omitempty"`
	Status         string     `json:"status"`
	RelatedEventID *string    `json:"related_event_id,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsCompleted reports whether the task is done.
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}
