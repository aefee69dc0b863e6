package ics

import (
	"log/slog"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/model"
)

const (
	// MaxOccurrences caps the instances produced per recurring event.
	MaxOccurrences = 1000

	noTitle = "(No Title)"
)

// Expand turns parsed events into occurrences overlapping [start, end).
// Recurring events are expanded with their RRULE minus EXDATEs, instances
// with a RECURRENCE-ID override are replaced by the override, and cancelled
// events or instances are dropped. The result is sorted by start, then id.
func Expand(events []ParsedEvent, start, end time.Time, logger *slog.Logger) []model.Event {
	if logger == nil {
		logger = slog.Default()
	}

	var bases []ParsedEvent
	overrides := map[string]map[int64]ParsedEvent{}
	for _, ev := range events {
		if ev.RecurrenceID == nil {
			bases = append(bases, ev)
			continue
		}
		byStart := overrides[ev.UID]
		if byStart == nil {
			byStart = map[int64]ParsedEvent{}
			overrides[ev.UID] = byStart
		}
		key := ev.RecurrenceID.UnixNano()
		if prev, ok := byStart[key]; ok && prev.Sequence > ev.Sequence {
			continue
		}
		byStart[key] = ev
	}

	out := []model.Event{}
	for _, base := range bases {
		if base.RRule == "" {
			if !base.Cancelled() && overlaps(base, base.Start, base.End, start, end) {
				out = append(out, toModel(base, base.UID, base.Start, base.End))
			}
			continue
		}
		out = append(out, expandRecurring(base, overrides[base.UID], start, end, logger)...)
	}

	for _, byStart := range overrides {
		for _, ov := range byStart {
			if ov.Cancelled() || !overlaps(ov, ov.Start, ov.End, start, end) {
				continue
			}
			out = append(out, toModel(ov, instanceID(ov.UID, *ov.RecurrenceID, ov.AllDay), ov.Start, ov.End))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func expandRecurring(base ParsedEvent, overrides map[int64]ParsedEvent, start, end time.Time, logger *slog.Logger) []model.Event {
	r, err := newRule(base)
	if err != nil {
		logger.Warn("invalid RRULE, keeping first instance only",
			logging.Source(base.Source.SourceName()), slog.String("uid", base.UID), logging.Err(err))
		if !base.Cancelled() && overlaps(base, base.Start, base.End, start, end) {
			return []model.Event{toModel(base, base.UID, base.Start, base.End)}
		}
		return nil
	}
	if base.Cancelled() {
		return nil
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range base.ExDates {
		set.ExDate(ex)
	}

	dur := base.End.Sub(base.Start)
	from, to := window(base, start, end)
	starts := set.Between(from.Add(-dur), to, true)
	if len(starts) > MaxOccurrences {
		logger.Warn("recurring event truncated",
			logging.Source(base.Source.SourceName()), slog.String("uid", base.UID), slog.Int("max", MaxOccurrences))
		starts = starts[:MaxOccurrences]
	}

	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		if _, ok := overrides[s.UnixNano()]; ok {
			continue
		}
		e := s.Add(dur)
		if !overlaps(base, s, e, start, end) {
			continue
		}
		out = append(out, toModel(base, instanceID(base.UID, s, base.AllDay), s, e))
	}
	return out
}

func newRule(base ParsedEvent) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(base.RRule)
	if err != nil {
		return nil, err
	}
	opt.Dtstart = base.Start
	return rrule.NewRRule(*opt)
}

// window widens [start, end) by a day for all-day events, whose midnight-UTC
// bounds do not line up with a local day.
func window(ev ParsedEvent, start, end time.Time) (time.Time, time.Time) {
	if ev.AllDay {
		return start.AddDate(0, 0, -1), end.AddDate(0, 0, 1)
	}
	return start, end
}

func overlaps(ev ParsedEvent, s, e, start, end time.Time) bool {
	from, to := window(ev, start, end)
	if !s.Before(e) {
		return !s.Before(from) && s.Before(to)
	}
	return s.Before(to) && from.Before(e)
}

// instanceID follows the provider convention of suffixing the series id with
// the original start of the instance.
func instanceID(uid string, originalStart time.Time, allDay bool) string {
	if allDay {
		return uid + "_" + originalStart.UTC().Format(layoutDate)
	}
	return uid + "_" + originalStart.UTC().Format(layoutUTC)
}

func toModel(p ParsedEvent, id string, start, end time.Time) model.Event {
	title := p.Summary
	if title == "" {
		title = noTitle
	}
	ev := model.Event{
		ID:          id,
		CalendarID:  p.Source.ID,
		Source:      p.Source.SourceName(),
		Title:       title,
		Description: p.Description,
		Location:    p.Location,
		Start:       start,
		End:         end,
		AllDay:      p.AllDay,
		Attendees:   model.NormalizeAttendees(p.Attendees),
		Status:      p.Status,
		Organizer:   p.Organizer,
	}
	if p.RRule != "" {
		ev.Recurrence = []string{"RRULE:" + p.RRule}
	}
	return ev
}
