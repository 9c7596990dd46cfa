package calendar

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/team-calendar/backend/internal/recurrence"
	"github.com/team-calendar/backend/internal/storage"
	"github.com/team-calendar/backend/internal/storage/models"
)

const productID = "-//team-calendar//backend//EN"

var partStat = map[string]string{
	models.ResponseNeedsAction: "NEEDS-ACTION",
	models.ResponseAccepted:    "ACCEPTED",
	models.ResponseDeclined:    "DECLINED",
	models.ResponseTentative:   "TENTATIVE",
}

var classes = map[string]string{
	models.VisibilityPublic:       "PUBLIC",
	models.VisibilityPrivate:      "PRIVATE",
	models.VisibilityConfidential: "CONFIDENTIAL",
}

// ExportICS writes every event of a calendar to w as an iCalendar feed.
func (s *Service) ExportICS(ctx context.Context, calendarID string, w io.Writer) error {
	cal, err := s.GetCalendar(ctx, calendarID)
	if err != nil {
		return err
	}

	events := storage.NewEventRepository(s.db)
	list, err := events.ListByCalendar(ctx, calendarID)
	if err != nil {
		return err
	}

	details := make([]models.EventWithDetails, 0, len(list))
	for _, e := range list {
		attendees, err := events.ListAttendees(ctx, e.ID)
		if err != nil {
			return err
		}
		details = append(details, models.EventWithDetails{Event: e, Attendees: attendees})
	}

	return EncodeICS(w, cal, details, time.Now().UTC())
}

// EncodeICS renders a calendar and its events. stamp is written as DTSTAMP
// on every event.
func EncodeICS(w io.Writer, cal *models.Calendar, events []models.EventWithDetails, stamp time.Time) error {
	out := ical.NewCalendar()
	out.Props.SetText(ical.PropVersion, "2.0")
	out.Props.SetText(ical.PropProductID, productID)
	out.Props.Set(extendedText("X-WR-CALNAME", cal.Title))
	out.Props.Set(extendedText("X-WR-TIMEZONE", cal.Timezone))

	for i := range events {
		vevent, err := toVEvent(&events[i], stamp)
		if err != nil {
			return err
		}
		out.Children = append(out.Children, vevent)
	}

	if err := ical.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("encoding calendar %s: %w", cal.ID, err)
	}
	return nil
}

func toVEvent(e *models.EventWithDetails, stamp time.Time) (*ical.Component, error) {
	ve := ical.NewComponent(ical.CompEvent)

	uid := e.UID()
	if uid == "" {
		uid = e.ID
	}
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, e.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	if e.IsAllDay {
		ve.Props.SetDate(ical.PropDateTimeStart, e.Start)
		ve.Props.SetDate(ical.PropDateTimeEnd, e.End)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.Start)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, e.End)
	}

	if e.Description != nil {
		ve.Props.SetText(ical.PropDescription, *e.Description)
	}
	if e.Location != nil {
		ve.Props.SetText(ical.PropLocation, *e.Location)
	}
	ve.Props.SetText(ical.PropStatus, strings.ToUpper(e.Status))
	ve.Props.SetText(ical.PropTransparency, strings.ToUpper(e.Transparency))
	if class, ok := classes[e.Visibility]; ok {
		ve.Props.SetText(ical.PropClass, class)
	}

	if e.Recurrence != nil {
		if err := addRecurrence(ve, e.Recurrence.Rules); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
	}

	for _, a := range e.Attendees {
		if a.IsOrganizer {
			organizer := ical.NewProp(ical.PropOrganizer)
			organizer.Value = "mailto:" + a.Email
			organizer.Params.Set(ical.ParamCommonName, a.Name())
			ve.Props.Add(organizer)
		}

		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + a.Email
		p.Params.Set(ical.ParamCommonName, a.Name())
		if stat, ok := partStat[a.ResponseStatus]; ok {
			p.Params.Set(ical.ParamParticipationStatus, stat)
		}
		if a.IsOptional {
			p.Params.Set(ical.ParamRole, "OPT-PARTICIPANT")
		}
		ve.Props.Add(p)
	}

	return ve, nil
}

// extendedText builds an X- property. Those are TEXT by default, so the
// VALUE parameter SetText adds for unknown names is dropped again.
func extendedText(name, text string) *ical.Prop {
	prop := ical.NewProp(name)
	prop.SetText(text)
	prop.Params.Del(ical.ParamValue)
	return prop
}

// addRecurrence copies directive lines onto the component. Rules are
// re-rendered in canonical form. Date lists are passed through unescaped.
func addRecurrence(ve *ical.Component, lines []string) error {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "EXDATE") || strings.HasPrefix(upper, "RDATE") {
			head, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			params := strings.Split(head, ";")
			prop := ical.NewProp(strings.ToUpper(params[0]))
			prop.Value = value
			for _, param := range params[1:] {
				if k, v, found := strings.Cut(param, "="); found {
					prop.Params.Set(strings.ToUpper(k), v)
				}
			}
			ve.Props.Add(prop)
			continue
		}

		rule, err := recurrence.ParseRule(line)
		if err != nil {
			return err
		}
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = rule.String()
		ve.Props.Set(prop)
	}
	return nil
}
