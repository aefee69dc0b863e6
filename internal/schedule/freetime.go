package schedule

import (
	"sort"
	"time"

	"github.com/teemow/dayplanner/internal/model"
)

// BusyIntervals clips timed events to [workStart, workEnd) and merges
// overlapping or adjacent spans into a minimal sorted cover.
func BusyIntervals(events []model.Event, workStart, workEnd time.Time) []model.Interval {
	loc := workStart.Location()
	clipped := make([]model.Interval, 0, len(events))
	for _, ev := range timedEvents(events) {
		s := latest(ev.Start, workStart)
		e := earliest(ev.End, workEnd)
		if !s.Before(e) {
			continue
		}
		clipped = append(clipped, model.Interval{Start: s.In(loc), End: e.In(loc)})
	}

	sort.Slice(clipped, func(i, j int) bool {
		if !clipped[i].Start.Equal(clipped[j].Start) {
			return clipped[i].Start.Before(clipped[j].Start)
		}
		return clipped[i].End.Before(clipped[j].End)
	})

	merged := make([]model.Interval, 0, len(clipped))
	for _, iv := range clipped {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			merged[n-1].End = latest(merged[n-1].End, iv.End)
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// ComputeFreeWindows returns the gaps between busy time inside
// [workStart, workEnd). Gaps shorter than minDuration are dropped. All-day
// events never consume working time.
func ComputeFreeWindows(events []model.Event, workStart, workEnd time.Time, minDuration time.Duration) []model.Interval {
	free := []model.Interval{}
	if !workStart.Before(workEnd) {
		return free
	}

	add := func(s, e time.Time) {
		if s.Before(e) && e.Sub(s) >= minDuration {
			free = append(free, model.Interval{Start: s, End: e})
		}
	}

	cursor := workStart
	for _, b := range BusyIntervals(events, workStart, workEnd) {
		add(cursor, b.Start)
		cursor = latest(cursor, b.End)
	}
	add(cursor, workEnd)

	return free
}

func totalMinutes(intervals []model.Interval) int {
	var d time.Duration
	for _, iv := range intervals {
		d += iv.Duration()
	}
	return int(d / time.Minute)
}
