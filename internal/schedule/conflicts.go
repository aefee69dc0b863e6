package schedule

import (
	"sort"
	"time"

	"github.com/teemow/dayplanner/internal/model"
)

// ComputeConflicts reports every overlapping pair of timed events exactly once.
//
// Two events conflict iff A.Start < B.End and B.Start < A.End. All-day events
// and degenerate events (Start >= End) are ignored, as are pairs sharing an id.
// Events are swept in (start, id) order while keeping the set of events that
// are still running; output is ordered by (overlap start, EventA, EventB).
func ComputeConflicts(events []model.Event) []model.Conflict {
	timed := timedEvents(events)
	sortEvents(timed)

	conflicts := []model.Conflict{}
	active := make([]model.Event, 0, 4)

	for _, ev := range timed {
		// Drop events that ended at or before this start.
		n := 0
		for _, a := range active {
			if a.End.After(ev.Start) {
				active[n] = a
				n++
			}
		}
		active = active[:n]

		for _, a := range active {
			if a.ID == ev.ID {
				continue
			}
			conflicts = append(conflicts, model.Conflict{
				EventA: a.ID,
				EventB: ev.ID,
				Overlap: model.Interval{
					Start: ev.Start,
					End:   earliest(a.End, ev.End),
				},
			})
		}
		active = append(active, ev)
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		ci, cj := conflicts[i], conflicts[j]
		if !ci.Overlap.Start.Equal(cj.Overlap.Start) {
			return ci.Overlap.Start.Before(cj.Overlap.Start)
		}
		if ci.EventA != cj.EventA {
			return ci.EventA < cj.EventA
		}
		return ci.EventB < cj.EventB
	})

	return conflicts
}

func timedEvents(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.AllDay || !ev.Start.Before(ev.End) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// sortEvents orders events by start, then id, then end.
func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.End.Before(b.End)
	})
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
