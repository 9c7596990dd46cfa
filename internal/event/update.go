package event

import (
	"encoding/json"
	"time"

	"github.com/team-calendar/backend/internal/storage/models"
)

// Optional holds a value that may be absent. A JSON field that is present,
// even as null, decodes to Set == true.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a set Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Set = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Update lists every field that propagates to all copies of an event.
// Identity fields (id, calendar, iCalUID, created_at) and the attendee
// roster have no counterpart here and cannot be changed through it.
type Update struct {
	Summary      Optional[string]             `json:"summary"`
	Description  Optional[*string]            `json:"description"`
	Location     Optional[*string]            `json:"location"`
	Start        Optional[time.Time]          `json:"start"`
	End          Optional[time.Time]          `json:"end"`
	IsAllDay     Optional[bool]               `json:"is_all_day"`
	Status       Optional[string]             `json:"status"`
	Transparency Optional[string]             `json:"transparency"`
	Visibility   Optional[string]             `json:"visibility"`
	ColorID      Optional[*int]               `json:"color_id"`
	Recurrence   Optional[*models.Recurrence] `json:"recurrence"`
}

// IsEmpty reports whether no field is set.
func (u Update) IsEmpty() bool {
	return !(u.Summary.Set || u.Description.Set || u.Location.Set || u.Start.Set ||
		u.End.Set || u.IsAllDay.Set || u.Status.Set || u.Transparency.Set ||
		u.Visibility.Set || u.ColorID.Set || u.Recurrence.Set)
}

// changesSchedule reports whether applying u can move reminder fire times.
func (u Update) changesSchedule() bool {
	return u.Start.Set || u.Recurrence.Set || u.Status.Set
}

func (u Update) apply(e *models.Event) {
	if u.Summary.Set {
		e.Summary = u.Summary.Value
	}
	if u.Description.Set {
		e.Description = u.Description.Value
	}
	if u.Location.Set {
		e.Location = u.Location.Value
	}
	if u.Start.Set {
		e.Start = u.Start.Value.UTC()
	}
	if u.End.Set {
		e.End = u.End.Value.UTC()
	}
	if u.IsAllDay.Set {
		e.IsAllDay = u.IsAllDay.Value
	}
	if u.Status.Set {
		e.Status = u.Status.Value
	}
	if u.Transparency.Set {
		e.Transparency = u.Transparency.Value
	}
	if u.Visibility.Set {
		e.Visibility = u.Visibility.Value
	}
	if u.ColorID.Set {
		e.ColorID = u.ColorID.Value
	}
	if u.Recurrence.Set {
		e.Recurrence = u.Recurrence.Value
	}
}
