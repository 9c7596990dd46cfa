package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/team-calendar/backend/internal/acl"
	"github.com/team-calendar/backend/internal/api/middleware"
	"github.com/team-calendar/backend/internal/calendar"
	"github.com/team-calendar/backend/internal/event"
	"github.com/team-calendar/backend/internal/storage/models"
)

// defaultWindow is the listing window when the query names no end.
const defaultWindow = 30 * 24 * time.Hour

// parseWindow reads the start and end query parameters. Both are RFC 3339;
// start defaults to now and end to thirty days after start.
func parseWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start := time.Now().UTC()
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "start must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	end := start.Add(defaultWindow)
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "end must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	return start, end, true
}

// ListEvents returns the event instances of a calendar inside the window.
func ListEvents(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleReader) {
			return
		}

		start, end, ok := parseWindow(w, r)
		if !ok {
			return
		}

		instances, err := events.ListInstances(r.Context(), id, start, end)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, instances)
	}
}

// FreeBusy returns the merged busy periods of a calendar. It needs only
// the freeBusyReader role and reveals no event details.
func FreeBusy(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleFreeBusyReader) {
			return
		}
		start, end, ok := parseWindow(w, r)
		if !ok {
			return
		}

		busy, err := events.FreeBusy(r.Context(), id, start, end)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"calendar_id": id,
			"start":       start.UTC(),
			"end":         end.UTC(),
			"busy":        busy,
		})
	}
}

// CreateEventRequest is the body of POST /calendars/{id}/events. Attendees
// are invited by email and receive their own copy of the event.
type CreateEventRequest struct {
	event.CreateInput
	OrganizerEmail string `json:"organizer_email,omitempty"`
}

// CreateEvent creates an event and its attendee copies. The organizer is
// the body's organizer_email, else the acting user, else the calendar
// owner.
func CreateEvent(events *event.Service, calendars *calendar.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !authorize(w, r, eval, id, acl.RoleWriter) {
			return
		}

		var req CreateEventRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ctx := r.Context()
		organizer := req.OrganizerEmail
		if organizer == "" {
			userID := r.Header.Get(UserHeader)
			if userID == "" {
				cal, err := calendars.GetCalendar(ctx, id)
				if err != nil {
					middleware.WriteServiceError(w, err)
					return
				}
				userID = cal.OwnerID
			}
			u, err := calendars.GetUser(ctx, userID)
			if err != nil {
				middleware.WriteServiceError(w, err)
				return
			}
			organizer = u.Email
		}

		e, err := events.Create(ctx, id, organizer, req.CreateInput)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}

		details, err := events.Get(ctx, e.ID)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, details)
	}
}

// loadEvent fetches the event named in the path and checks the acting
// user's role on the calendar holding it.
func loadEvent(w http.ResponseWriter, r *http.Request, events *event.Service, eval *acl.Evaluator, required acl.Role) (*models.EventWithDetails, bool) {
	e, err := events.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteServiceError(w, err)
		return nil, false
	}
	if !authorize(w, r, eval, e.CalendarID, required) {
		return nil, false
	}
	return e, true
}

// GetEvent returns an event copy with its roster and reminders.
func GetEvent(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleReader)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}

// rosterKeys cannot be changed by a patch; responses go through the
// respond endpoint.
var rosterKeys = []string{"attendees", "organizer_email"}

// immutableKeys name identity fields that no patch may touch.
var immutableKeys = []string{"id", "calendar_id", "iCalUID", "ical_uid", "created_at", "creator_id", "organizer_id"}

// UpdateEvent applies a partial update to every copy of the event.
func UpdateEvent(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleWriter)
		if !ok {
			return
		}

		var raw map[string]json.RawMessage
		if !decodeBody(w, r, &raw) {
			return
		}
		for _, key := range rosterKeys {
			if _, found := raw[key]; found {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation,
					"The attendee roster cannot be changed by an update")
				return
			}
		}
		for _, key := range immutableKeys {
			if _, found := raw[key]; found {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, key+" cannot be changed")
				return
			}
		}

		body, _ := json.Marshal(raw)
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		var upd event.Update
		if err := dec.Decode(&upd); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if upd.IsEmpty() {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "No fields to update")
			return
		}

		updated, err := events.Update(r.Context(), e.ID, upd)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// DeleteEvent removes one copy of an event.
func DeleteEvent(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleWriter)
		if !ok {
			return
		}

		if err := events.Delete(r.Context(), e.ID); err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RespondRequest sets an attendee's response. The email may also be given
// as a query parameter.
type RespondRequest struct {
	Email          string `json:"email,omitempty"`
	ResponseStatus string `json:"response_status"`
}

// RespondToEvent records an attendee's response on every copy. The email
// comes from the query string or the body.
func RespondToEvent(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleReader)
		if !ok {
			return
		}

		var req RespondRequest
		if !decodeBody(w, r, &req) {
			return
		}
		email := r.URL.Query().Get("email")
		if email == "" {
			email = req.Email
		}
		if email == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "email is required")
			return
		}

		a, err := events.UpdateAttendeeResponse(r.Context(), e.ID, email, req.ResponseStatus)
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ListCopies returns every copy of the event's logical identity.
func ListCopies(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleReader)
		if !ok {
			return
		}
		if e.UID() == "" {
			writeJSON(w, http.StatusOK, []models.Event{e.Event})
			return
		}

		copies, err := events.Copies(r.Context(), e.UID())
		if err != nil {
			middleware.WriteServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, copies)
	}
}

// ListAttendees returns the roster of one event copy.
func ListAttendees(events *event.Service, eval *acl.Evaluator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := loadEvent(w, r, events, eval, acl.RoleReader)
		if !ok {
			return
		}
		attendees := e.Attendees
		if attendees == nil {
			attendees = []models.EventAttendee{}
		}
		writeJSON(w, http.StatusOK, attendees)
	}
}
