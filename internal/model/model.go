package model

import (
	"sort"
	"strings"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
)

// DateLayout is the calendar-date layout used for all-day events and day views.
const DateLayout = "2006-01-02"

// Event is a calendar event in the internal model.
//
// Timed events satisfy Start < End. All-day events carry midnight-UTC date
// boundaries with an exclusive End date.
type Event struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendar_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Attendees   []string  `json:"attendees,omitempty"`
	Status      string    `json:"status,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
	Recurrence  []string  `json:"recurrence,omitempty"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Interval returns the event's [Start, End) interval.
func (e Event) Interval() Interval {
	return Interval{Start: e.Start, End: e.End}
}

// CoversDate reports whether an all-day event covers the given calendar date
// (formatted with DateLayout). Timed events never cover a date.
func (e Event) CoversDate(date string) bool {
	if !e.AllDay {
		return false
	}
	first := e.Start.UTC().Format(DateLayout)
	last := e.End.UTC().Format(DateLayout)
	if last <= first {
		return date == first
	}
	return first <= date && date < last
}

// Task is a task in the internal model. A nil Due keeps the task out of
// conflict and free-time computation.
type Task struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	Due         *time.Time `json:"due,omitempty"`
	DueDateOnly bool       `json:"due_date_only,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Parent      string     `json:"parent,omitempty"`
	Position    string     `json:"position,omitempty"`
}

// DueIn returns the task's due instant as seen from loc. Date-only due values
// are anchored at local midnight of that date.
func (t Task) DueIn(loc *time.Location) (time.Time, bool) {
	if t.Due == nil {
		return time.Time{}, false
	}
	if !t.DueDateOnly {
		return *t.Due, true
	}
	d := t.Due.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), true
}

// IsOverdue reports whether an incomplete task was due before now. A
// date-only task becomes overdue once its whole due day has passed.
func (t Task) IsOverdue(now time.Time) bool {
	if t.Completed {
		return false
	}
	due, ok := t.DueIn(now.Location())
	if !ok {
		return false
	}
	if t.DueDateOnly {
		due = due.AddDate(0, 0, 1)
		return !now.Before(due)
	}
	return due.Before(now)
}

// TaskList is a named list of tasks.
type TaskList struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Updated time.Time `json:"updated"`
}

// Interval is a half-open time span [Start, End). Free windows and conflict
// overlaps are both expressed as intervals.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Conflict is an overlapping pair of timed events, reported once per pair.
type Conflict struct {
	EventA  string   `json:"event_a"`
	EventB  string   `json:"event_b"`
	Overlap Interval `json:"overlap"`
}

// ParseInstant parses an RFC 3339 timestamp with an explicit offset. Naive
// local times are rejected with a validation error naming field.
func ParseInstant(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperr.Validation("parse_instant", field, "timestamp is empty")
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, apperr.Validation("parse_instant", field, "timestamp %q must be RFC 3339 with an explicit offset", value)
	}
	return t, nil
}

// ParseDate parses a calendar date (YYYY-MM-DD) as midnight UTC.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("parse_date", field, "date %q must be YYYY-MM-DD", value)
	}
	return t, nil
}

// NormalizeAttendees turns an attendee collection into a set: trimmed,
// lower-cased, de-duplicated and sorted. Empty entries are dropped.
func NormalizeAttendees(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
