package schedule

import (
	"fmt"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

// ClockTime is a wall-clock time of day such as 09:00.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, apperr.Validation("schedule.parse_clock", "clock", "clock time %q must be HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustParseClock is ParseClock for constants; it panics on malformed input.
func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String formats the clock time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before reports whether c is earlier in the day than o.
func (c ClockTime) Before(o ClockTime) bool {
	return c.Hour*60+c.Minute < o.Hour*60+o.Minute
}

// On returns the instant of c on the calendar day of date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// DayBounds returns [dayStart, dayEnd) for a YYYY-MM-DD date in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("schedule.day_bounds", "date", "date %q must be YYYY-MM-DD", date)
	}
	return d, d.AddDate(0, 0, 1), nil
}

// WorkingWindow returns the working-hours interval of a calendar day.
func WorkingWindow(day time.Time, loc *time.Location, start, end ClockTime) model.Interval {
	return model.Interval{Start: start.On(day, loc), End: end.On(day, loc)}
}
