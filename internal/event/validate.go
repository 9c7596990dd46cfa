package event

import (
	"strings"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/recurrence"
	"github.com/team-calendar/backend/internal/storage/models"
)

var (
	statuses = map[string]bool{
		models.EventStatusConfirmed: true,
		models.EventStatusTentative: true,
		models.EventStatusCancelled: true,
	}
	transparencies = map[string]bool{
		models.TransparencyOpaque:      true,
		models.TransparencyTransparent: true,
	}
	visibilities = map[string]bool{
		models.VisibilityDefault:      true,
		models.VisibilityPublic:       true,
		models.VisibilityPrivate:      true,
		models.VisibilityConfidential: true,
	}
	responses = map[string]bool{
		models.ResponseNeedsAction: true,
		models.ResponseAccepted:    true,
		models.ResponseDeclined:    true,
		models.ResponseTentative:   true,
	}
)

// validate checks the propagatable fields of an event.
func validate(e *models.Event) error {
	if strings.TrimSpace(e.Summary) == "" {
		return apperr.Validation("summary is required")
	}
	if !e.End.After(e.Start) {
		return apperr.Validation("end must be after start")
	}
	if !statuses[e.Status] {
		return apperr.Validation("invalid status %q", e.Status)
	}
	if !transparencies[e.Transparency] {
		return apperr.Validation("invalid transparency %q", e.Transparency)
	}
	if !visibilities[e.Visibility] {
		return apperr.Validation("invalid visibility %q", e.Visibility)
	}
	if e.Recurrence != nil {
		if _, err := recurrence.Parse(e.Start, e.Recurrence.Rules); err != nil {
			return err
		}
	}
	return nil
}

// ValidResponse reports whether s is a known attendee response status.
func ValidResponse(s string) bool {
	return responses[s]
}
