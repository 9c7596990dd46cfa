// Package apperr defines the error taxonomy shared by the calendar services.
//
// Services wrap one of the sentinel errors so that callers can classify a
// failure with errors.Is and map it onto a transport status.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced user, calendar, event or attendee does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidIdentity means an event lacks the iCalUID required for propagation.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrInvalidRecurrence means a recurrence rule could not be parsed.
	ErrInvalidRecurrence = errors.New("invalid recurrence")

	// ErrValidation means the input violated a field constraint.
	ErrValidation = errors.New("validation error")

	// ErrConflict means the write would duplicate a unique record.
	ErrConflict = errors.New("conflict")
)

// NotFound returns an ErrNotFound describing the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// InvalidIdentity returns an ErrInvalidIdentity for the given event.
func InvalidIdentity(eventID string) error {
	return fmt.Errorf("event %s has no iCalUID and cannot be propagated: %w", eventID, ErrInvalidIdentity)
}

// InvalidRecurrence wraps a parse failure for the rule text.
func InvalidRecurrence(rule string, cause error) error {
	if cause == nil {
		return fmt.Errorf("rule %q: %w", rule, ErrInvalidRecurrence)
	}
	return fmt.Errorf("rule %q: %v: %w", rule, cause, ErrInvalidRecurrence)
}

// Validation returns an ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// Conflict returns an ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
