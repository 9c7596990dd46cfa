package websocket

import (
	"github.com/team-calendar/backend/internal/storage/models"
)

// EventBroadcaster turns calendar changes into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

func eventPayload(e *models.Event, copies []string) EventPayload {
	return EventPayload{
		EventID:    e.ID,
		CalendarID: e.CalendarID,
		ICalUID:    e.UID(),
		Summary:    e.Summary,
		Start:      e.Start,
		End:        e.End,
		Copies:     copies,
	}
}

// EventCreated announces a new logical event and its copies.
func (b *EventBroadcaster) EventCreated(e *models.Event, copies []string) {
	b.broadcast(NewMessage(TypeEventCreated, eventPayload(e, copies)))
}

// EventUpdated announces a change propagated to the given copies.
func (b *EventBroadcaster) EventUpdated(e *models.Event, copies []string) {
	b.broadcast(NewMessage(TypeEventUpdated, eventPayload(e, copies)))
}

// EventDeleted announces the removal of one copy.
func (b *EventBroadcaster) EventDeleted(e *models.Event) {
	b.broadcast(NewMessage(TypeEventDeleted, eventPayload(e, nil)))
}

// AttendeeResponded announces a response change.
func (b *EventBroadcaster) AttendeeResponded(e *models.Event, a *models.EventAttendee, previous, message string) {
	b.broadcast(NewMessage(TypeAttendeeResponded, AttendeePayload{
		EventID:        e.ID,
		ICalUID:        e.UID(),
		Email:          a.Email,
		PreviousStatus: previous,
		NewStatus:      a.ResponseStatus,
		Message:        message,
	}))
}

// ReminderFired announces a delivered reminder.
func (b *EventBroadcaster) ReminderFired(n *models.NotificationLog) {
	payload := ReminderPayload{
		EventID:       n.EventID,
		Method:        n.ReminderMethod,
		MinutesBefore: n.MinutesBefore,
		ScheduledTime: n.ScheduledTime,
	}
	if n.UserID != nil {
		payload.UserID = *n.UserID
	}
	if n.Message != nil {
		payload.Message = *n.Message
	}
	b.broadcast(NewMessage(TypeReminderFired, payload))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.hub.logger.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
