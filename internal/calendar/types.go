package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

// DefaultCalendarID is the authenticated user's primary calendar.
const DefaultCalendarID = "primary"

// NoTitle replaces empty event summaries.
const NoTitle = "(No Title)"

const statusCancelled = "cancelled"

// CalendarInfo represents information about a calendar
type CalendarInfo struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	Primary     bool   `json:"primary"`
	AccessRole  string `json:"access_role"` // "owner", "writer", "reader", "freeBusyReader"
}

// EventPatch lists the fields to change on an existing event. Nil fields
// are left untouched.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	AllDay      *bool
	Attendees   *[]string
}

// ToExternal converts an event to its calendar/v3 form. Timed events must
// have Start < End; all-day events map to Date fields.
func ToExternal(ev model.Event) (*calendar.Event, error) {
	const op = "calendar.to_external"

	if ev.Start.IsZero() {
		return nil, apperr.Validation(op, "start", "start is required")
	}

	out := &calendar.Event{
		Id:          ev.ID,
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      ev.Status,
		Recurrence:  ev.Recurrence,
	}

	if ev.AllDay {
		start := ev.Start.UTC()
		end := ev.End.UTC()
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		out.Start = &calendar.EventDateTime{Date: start.Format(model.DateLayout)}
		out.End = &calendar.EventDateTime{Date: end.Format(model.DateLayout)}
	} else {
		if ev.End.IsZero() {
			return nil, apperr.Validation(op, "end", "end is required")
		}
		if !ev.Start.Before(ev.End) {
			return nil, apperr.Validation(op, "end", "end %s must be after start %s",
				ev.End.Format(time.RFC3339), ev.Start.Format(time.RFC3339))
		}
		out.Start = &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)}
		out.End = &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)}
	}

	for _, email := range model.NormalizeAttendees(ev.Attendees) {
		out.Attendees = append(out.Attendees, &calendar.EventAttendee{Email: email})
	}

	return out, nil
}

// FromExternal converts a calendar/v3 event. Timestamps without an offset
// are rejected with a validation error naming the field.
func FromExternal(calendarID string, e *calendar.Event) (model.Event, error) {
	const op = "calendar.from_external"

	if e == nil {
		return model.Event{}, apperr.Validation(op, "event", "event is nil")
	}

	ev := model.Event{
		ID:          e.Id,
		CalendarID:  calendarID,
		Source:      SourceID(calendarID),
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      e.Status,
		Recurrence:  e.Recurrence,
	}
	if ev.Title == "" {
		ev.Title = NoTitle
	}
	if e.Organizer != nil {
		ev.Organizer = e.Organizer.Email
	}

	emails := make([]string, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		if a != nil {
			emails = append(emails, a.Email)
		}
	}
	ev.Attendees = model.NormalizeAttendees(emails)

	if e.Start == nil {
		return model.Event{}, apperr.Validation(op, "start", "event %s has no start", e.Id)
	}

	var err error
	if e.Start.DateTime == "" && e.Start.Date != "" {
		ev.AllDay = true
		if ev.Start, err = model.ParseDate("start", e.Start.Date); err != nil {
			return model.Event{}, err
		}
		ev.End = ev.Start.AddDate(0, 0, 1)
		if e.End != nil && e.End.Date != "" {
			end, err := model.ParseDate("end", e.End.Date)
			if err != nil {
				return model.Event{}, err
			}
			if end.After(ev.Start) {
				ev.End = end
			}
		}
		return ev, nil
	}

	if ev.Start, err = model.ParseInstant("start", e.Start.DateTime); err != nil {
		return model.Event{}, err
	}
	if e.End == nil || e.End.DateTime == "" {
		return model.Event{}, apperr.Validation(op, "end", "timed event %s has no end time", e.Id)
	}
	if ev.End, err = model.ParseInstant("end", e.End.DateTime); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

// SourceID names a calendar as an aggregation source.
func SourceID(calendarID string) string {
	return "calendar:" + calendarID
}

// toPatch builds a sparse event for Events.Patch.
func toPatch(p EventPatch) (*calendar.Event, error) {
	const op = "calendar.patch"

	out := &calendar.Event{}
	force := func(field string) { out.ForceSendFields = append(out.ForceSendFields, field) }

	if p.Title != nil {
		out.Summary = *p.Title
		force("Summary")
	}
	if p.Description != nil {
		out.Description = *p.Description
		force("Description")
	}
	if p.Location != nil {
		out.Location = *p.Location
		force("Location")
	}
	if p.Start != nil && p.End != nil && !p.Start.Before(*p.End) {
		return nil, apperr.Validation(op, "end", "end must be after start")
	}

	allDay := p.AllDay != nil && *p.AllDay
	setTime := func(t time.Time) *calendar.EventDateTime {
		if allDay {
			return &calendar.EventDateTime{Date: t.UTC().Format(model.DateLayout), NullFields: []string{"DateTime"}}
		}
		return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), NullFields: []string{"Date"}}
	}
	if p.Start != nil {
		out.Start = setTime(*p.Start)
	}
	if p.End != nil {
		out.End = setTime(*p.End)
	}
	if p.AllDay != nil && (p.Start == nil || p.End == nil) {
		return nil, apperr.Validation(op, "all_day", "changing all_day requires both start and end")
	}

	if p.Attendees != nil {
		out.Attendees = []*calendar.EventAttendee{}
		for _, email := range model.NormalizeAttendees(*p.Attendees) {
			out.Attendees = append(out.Attendees, &calendar.EventAttendee{Email: email})
		}
		force("Attendees")
	}
	return out, nil
}

// toCalendarInfo converts a Calendar list entry to our CalendarInfo type
func toCalendarInfo(entry *calendar.CalendarListEntry) CalendarInfo {
	if entry == nil {
		return CalendarInfo{}
	}

	return CalendarInfo{
		ID:          entry.Id,
		Summary:     entry.Summary,
		Description: entry.Description,
		TimeZone:    entry.TimeZone,
		Primary:     entry.Primary,
		AccessRole:  entry.AccessRole,
	}
}
