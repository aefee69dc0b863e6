package schedule

import (
	"sort"
	"time"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

// DayInput is everything BuildDayView needs. Events and tasks may arrive in
// any order; the result does not depend on it.
type DayInput struct {
	Date          string
	Location      *time.Location
	Events        []model.Event
	Tasks         []model.Task
	WorkStart     ClockTime
	WorkEnd       ClockTime
	MinFreeWindow time.Duration
}

// BuildDayView composes the overview of one day: timed and all-day events,
// conflicts, free windows, due, overdue and unscheduled tasks, and a merged
// agenda.
func BuildDayView(in DayInput) (model.DayView, error) {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	if !in.WorkStart.Before(in.WorkEnd) {
		return model.DayView{}, apperr.Validation("schedule.day_view", "work_end",
			"working hours end %s must be after start %s", in.WorkEnd, in.WorkStart)
	}

	dayStart, dayEnd, err := DayBounds(in.Date, loc)
	if err != nil {
		return model.DayView{}, err
	}
	day := model.Interval{Start: dayStart, End: dayEnd}
	working := WorkingWindow(dayStart, loc, in.WorkStart, in.WorkEnd)

	timed := []model.Event{}
	allDay := []model.Event{}
	for _, ev := range in.Events {
		switch {
		case ev.AllDay:
			if ev.CoversDate(in.Date) {
				allDay = append(allDay, ev)
			}
		case ev.Start.Before(ev.End) && ev.Interval().Overlaps(day):
			ev.Start = ev.Start.In(loc)
			ev.End = ev.End.In(loc)
			timed = append(timed, ev)
		}
	}
	sortEvents(timed)
	sort.SliceStable(allDay, func(i, j int) bool {
		if allDay[i].Title != allDay[j].Title {
			return allDay[i].Title < allDay[j].Title
		}
		return allDay[i].ID < allDay[j].ID
	})

	conflicts := []model.Conflict{}
	for _, c := range ComputeConflicts(timed) {
		if c.Overlap.Overlaps(day) {
			conflicts = append(conflicts, c)
		}
	}

	free := ComputeFreeWindows(timed, working.Start, working.End, in.MinFreeWindow)
	busy := BusyIntervals(timed, working.Start, working.End)

	due, overdue, unscheduled := classifyTasks(in.Tasks, day, loc)

	view := model.DayView{
		Date:             in.Date,
		DayName:          dayStart.Weekday().String(),
		Timezone:         loc.String(),
		DayStart:         dayStart,
		DayEnd:           dayEnd,
		Working:          working,
		Events:           timed,
		AllDayEvents:     allDay,
		Conflicts:        conflicts,
		FreeWindows:      free,
		DueTasks:         due,
		OverdueTasks:     overdue,
		UnscheduledTasks: unscheduled,
		EventsCount:      len(timed) + len(allDay),
		TasksDueCount:    len(due),
		OverdueCount:     len(overdue),
		FreeMinutes:      totalMinutes(free),
		BusyMinutes:      totalMinutes(busy),
	}
	view.Agenda = buildAgenda(dayStart, allDay, timed, due, free, loc)

	return view, nil
}

func classifyTasks(tasks []model.Task, day model.Interval, loc *time.Location) (due, overdue, unscheduled []model.Task) {
	due, overdue, unscheduled = []model.Task{}, []model.Task{}, []model.Task{}

	for _, t := range tasks {
		if t.Completed {
			continue
		}
		at, ok := t.DueIn(loc)
		if !ok {
			unscheduled = append(unscheduled, t)
			continue
		}
		switch {
		case at.Before(day.Start):
			overdue = append(overdue, t)
		case at.Before(day.End):
			due = append(due, t)
		}
	}

	byDue := func(list []model.Task) func(i, j int) bool {
		return func(i, j int) bool {
			a, _ := list[i].DueIn(loc)
			b, _ := list[j].DueIn(loc)
			if !a.Equal(b) {
				return a.Before(b)
			}
			if list[i].Title != list[j].Title {
				return list[i].Title < list[j].Title
			}
			return list[i].ID < list[j].ID
		}
	}
	sort.SliceStable(due, byDue(due))
	sort.SliceStable(overdue, byDue(overdue))
	sort.SliceStable(unscheduled, func(i, j int) bool {
		a, b := unscheduled[i], unscheduled[j]
		if a.ListID != b.ListID {
			return a.ListID < b.ListID
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
	return due, overdue, unscheduled
}

var agendaRank = map[model.AgendaKind]int{
	model.AgendaEvent: 0,
	model.AgendaTask:  1,
	model.AgendaFree:  2,
}

// buildAgenda lists all-day events first, then timed events, due tasks and
// free windows ordered by start time.
func buildAgenda(dayStart time.Time, allDay, timed []model.Event, due []model.Task, free []model.Interval, loc *time.Location) []model.AgendaItem {
	items := make([]model.AgendaItem, 0, len(timed)+len(due)+len(free))
	for _, ev := range timed {
		items = append(items, model.AgendaItem{Kind: model.AgendaEvent, Ref: ev.ID, Title: ev.Title, Start: ev.Start, End: ev.End})
	}
	for _, t := range due {
		at, _ := t.DueIn(loc)
		items = append(items, model.AgendaItem{Kind: model.AgendaTask, Ref: t.ID, Title: t.Title, Start: at.In(loc), End: at.In(loc)})
	}
	for _, f := range free {
		items = append(items, model.AgendaItem{Kind: model.AgendaFree, Start: f.Start, End: f.End})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if agendaRank[a.Kind] != agendaRank[b.Kind] {
			return agendaRank[a.Kind] < agendaRank[b.Kind]
		}
		return a.Ref < b.Ref
	})

	agenda := make([]model.AgendaItem, 0, len(allDay)+len(items))
	for _, ev := range allDay {
		agenda = append(agenda, model.AgendaItem{Kind: model.AgendaEvent, Ref: ev.ID, Title: ev.Title, Start: dayStart, End: dayStart.AddDate(0, 0, 1)})
	}
	return append(agenda, items...)
}
