package event

import (
	"context"
	"sort"
	"time"

	"github.com/team-calendar/backend/internal/apperr"
	"github.com/team-calendar/backend/internal/recurrence"
	"github.com/team-calendar/backend/internal/storage/models"
)

// Instance is one occurrence of an event inside a listing window. For
// recurring events Start and End are those of the occurrence, not of the
// stored anchor.
type Instance struct {
	Event models.Event `json:"event"`
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
}

// ListInstances returns the occurrences of non-cancelled events in a
// calendar that overlap [windowStart, windowEnd], ordered by start.
func (s *Service) ListInstances(ctx context.Context, calendarID string, windowStart, windowEnd time.Time) ([]Instance, error) {
	if !windowEnd.After(windowStart) {
		return nil, apperr.Validation("window end must be after window start")
	}
	windowStart, windowEnd = windowStart.UTC(), windowEnd.UTC()

	events, err := s.events.ListByCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	instances := []Instance{}
	for _, e := range events {
		if e.Status == models.EventStatusCancelled || e.Start.After(windowEnd) {
			continue
		}

		if !e.IsRecurring() {
			if e.End.After(windowStart) {
				instances = append(instances, Instance{Event: e, Start: e.Start, End: e.End})
			}
			continue
		}

		dur := e.Duration()
		// occurrences starting up to one duration before the window still overlap it
		starts, err := recurrence.Expand(e.Start, e.Recurrence.Rules, windowStart.Add(-dur), windowEnd, s.maxInstances)
		if err != nil {
			return nil, err
		}
		for _, start := range starts {
			end := start.Add(dur)
			if !end.After(windowStart) {
				continue
			}
			instances = append(instances, Instance{Event: e, Start: start.UTC(), End: end.UTC()})
		}
	}

	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].Start.Equal(instances[j].Start) {
			return instances[i].Event.ID < instances[j].Event.ID
		}
		return instances[i].Start.Before(instances[j].Start)
	})
	return instances, nil
}
