package ics

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/logging"
)

const (
	parseOp = "ics.parse"

	layoutUTC   = "20060102T150405Z"
	layoutLocal = "20060102T150405"
	layoutDate  = "20060102"

	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
)

// ParsedEvent is a VEVENT before recurrence expansion. All-day events carry
// midnight-UTC dates with an exclusive End.
type ParsedEvent struct {
	Source Source

	UID      string
	Sequence int

	Summary     string
	Description string
	Location    string
	Status      string
	Organizer   string
	Attendees   []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on an override of one instance of a recurring event.
	RecurrenceID *time.Time
}

// Cancelled reports whether the event or instance was cancelled.
func (p ParsedEvent) Cancelled() bool {
	return strings.EqualFold(p.Status, "CANCELLED")
}

// Parse reads every VEVENT of an iCalendar body. Floating times (no TZID, no
// trailing Z) are read in floating. A VEVENT that cannot be read is logged
// and skipped.
func Parse(src Source, body []byte, floating *time.Location, logger *slog.Logger) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Newf(apperr.KindProvider, parseOp, "feed %s is empty", src.ID)
	}
	if floating == nil {
		floating = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, apperr.New(apperr.KindProvider, parseOp, fmt.Errorf("failed to parse feed %s: %w", src.ID, err))
	}

	events := []ParsedEvent{}
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve, floating)
		if err != nil {
			logger.Warn("skipping unreadable ics event", logging.Source(src.SourceName()), logging.Err(err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, floating *time.Location) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || strings.TrimSpace(uid.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.UID = strings.TrimSpace(uid.Value)

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Sequence = n
		}
	}
	out.Summary = textValue(ve, ical.ComponentPropertySummary)
	out.Description = textValue(ve, ical.ComponentPropertyDescription)
	out.Location = textValue(ve, ical.ComponentPropertyLocation)
	out.Status = strings.ToLower(textValue(ve, ical.ComponentPropertyStatus))
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		out.Organizer = mailAddress(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if addr := mailAddress(p.Value); addr != "" {
			out.Attendees = append(out.Attendees, addr)
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("event %s has no DTSTART", out.UID)
	}
	start, allDay, err := parseTime(dtStart, floating)
	if err != nil {
		return out, fmt.Errorf("event %s: DTSTART: %w", out.UID, err)
	}
	out.Start = start
	out.AllDay = allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, _, err := parseTime(ve.GetProperty(ical.ComponentPropertyDtEnd), floating)
		if err != nil {
			return out, fmt.Errorf("event %s: DTEND: %w", out.UID, err)
		}
		out.End = end
	case ve.GetProperty(ical.ComponentPropertyDuration) != nil:
		d, err := parseDuration(ve.GetProperty(ical.ComponentPropertyDuration).Value)
		if err != nil {
			return out, fmt.Errorf("event %s: DURATION: %w", out.UID, err)
		}
		out.End = out.Start.Add(d)
	case allDay:
		out.End = out.Start.AddDate(0, 0, 1)
	default:
		out.End = out.Start
	}
	if out.End.Before(out.Start) {
		return out, fmt.Errorf("event %s ends before it starts", out.UID)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = strings.TrimPrefix(strings.TrimSpace(p.Value), "RRULE:")
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseValue(part, p.ICalParameters, floating)
			if err != nil {
				return out, fmt.Errorf("event %s: EXDATE: %w", out.UID, err)
			}
			out.ExDates = append(out.ExDates, t)
		}
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		t, _, err := parseTime(p, floating)
		if err != nil {
			return out, fmt.Errorf("event %s: RECURRENCE-ID: %w", out.UID, err)
		}
		out.RecurrenceID = &t
	}

	return out, nil
}

func textValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return unescapeText(strings.TrimSpace(p.Value))
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\,`, `,`, `\;`, `;`, `\n`, "\n", `\N`, "\n")

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}

func mailAddress(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

func parseTime(p *ical.IANAProperty, floating *time.Location) (time.Time, bool, error) {
	return parseValue(strings.TrimSpace(p.Value), p.ICalParameters, floating)
}

// parseValue reads a DATE or DATE-TIME value. Dates become midnight UTC;
// date-times honor a trailing Z, then TZID, then the floating location.
func parseValue(v string, params map[string][]string, floating *time.Location) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, errors.New("empty value")
	}

	isDate := !strings.Contains(v, "T")
	if vs := params[string(ical.ParameterValue)]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		isDate = true
	}
	if isDate {
		t, err := time.Parse(layoutDate, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date %q", v)
		}
		return t, true, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid date-time %q", v)
		}
		return t, false, nil
	}

	loc := floating
	if tz := params[string(ical.ParameterTzid)]; len(tz) > 0 && tz[0] != "" {
		if l, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(layoutLocal, v, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date-time %q", v)
	}
	return t, false, nil
}

// parseDuration reads an RFC 5545 duration such as PT1H30M, P1D or -P1W.
func parseDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			if num != "" || inTime {
				return 0, fmt.Errorf("invalid duration %q", v)
			}
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		num = ""

		var unit time.Duration
		switch {
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		total += time.Duration(n) * unit
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return sign * total, nil
}
