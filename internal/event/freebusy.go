package event

import (
	"context"
	"sort"
	"time"

	"github.com/team-calendar/backend/internal/storage/models"
)

// BusyPeriod is a span of time blocked by at least one event.
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeBusy returns the merged busy periods of a calendar inside
// [windowStart, windowEnd]. Only opaque instances block time; periods are
// clipped to the window.
func (s *Service) FreeBusy(ctx context.Context, calendarID string, windowStart, windowEnd time.Time) ([]BusyPeriod, error) {
	instances, err := s.ListInstances(ctx, calendarID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	windowStart, windowEnd = windowStart.UTC(), windowEnd.UTC()

	var spans []BusyPeriod
	for _, in := range instances {
		if in.Event.Transparency == models.TransparencyTransparent {
			continue
		}
		spans = append(spans, overlap(in.Start, in.End, windowStart, windowEnd))
	}
	return mergeBusy(spans), nil
}

// overlap clips [start, end] to [from, until].
func overlap(start, end, from, until time.Time) BusyPeriod {
	if from.After(start) {
		start = from
	}
	if until.Before(end) {
		end = until
	}
	return BusyPeriod{Start: start, End: end}
}

// mergeBusy joins overlapping or touching periods.
func mergeBusy(spans []BusyPeriod) []BusyPeriod {
	merged := []BusyPeriod{}
	if len(spans) == 0 {
		return merged
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })

	current := spans[0]
	for _, p := range spans[1:] {
		if !p.Start.After(current.End) {
			if p.End.After(current.End) {
				current.End = p.End
			}
			continue
		}
		merged = append(merged, current)
		current = p
	}
	return append(merged, current)
}
