package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

func dayInput(events []model.Event, tasks []model.Task) DayInput {
	return DayInput{
		Date:          "2025-03-10",
		Location:      time.UTC,
		Events:        events,
		Tasks:         tasks,
		WorkStart:     MustParseClock("09:00"),
		WorkEnd:       MustParseClock("17:00"),
		MinFreeWindow: 15 * time.Minute,
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestBuildDayView(t *testing.T) {
	events := []model.Event{
		event("standup", 9, 0, 10, 0),
		event("review", 14, 0, 15, 0),
		event("sync", 14, 30, 15, 30),
		{ID: "holiday", Title: "Holiday", AllDay: true, Start: day, End: day.AddDate(0, 0, 1)},
		{ID: "tomorrow", Title: "Tomorrow", Start: at(33, 0), End: at(34, 0)},
	}
	tasks := []model.Task{
		{ID: "t1", Title: "Report", Due: ptr(day), DueDateOnly: true},
		{ID: "t2", Title: "Invoice", Due: ptr(day.AddDate(0, 0, -1)), DueDateOnly: true},
		{ID: "t3", Title: "Done already", Due: ptr(day.AddDate(0, 0, -1)), DueDateOnly: true, Completed: true},
		{ID: "t4", Title: "Someday", ListID: "home"},
		{ID: "t6", Title: "Finished someday", ListID: "home", Completed: true},
		{ID: "t7", Title: "Finished today", Due: ptr(day), DueDateOnly: true, Completed: true},
		{ID: "t5", Title: "Later", Due: ptr(day.AddDate(0, 0, 2)), DueDateOnly: true},
	}

	view, err := BuildDayView(dayInput(events, tasks))
	require.NoError(t, err)

	assert.Equal(t, "2025-03-10", view.Date)
	assert.Equal(t, "Monday", view.DayName)
	assert.Equal(t, "UTC", view.Timezone)

	require.Len(t, view.Events, 3)
	assert.Equal(t, "standup", view.Events[0].ID)
	require.Len(t, view.AllDayEvents, 1)
	assert.Equal(t, 4, view.EventsCount)

	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, model.Interval{Start: at(14, 30), End: at(15, 0)}, view.Conflicts[0].Overlap)

	assert.Equal(t, []model.Interval{
		{Start: at(10, 0), End: at(14, 0)},
		{Start: at(15, 30), End: at(17, 0)},
	}, view.FreeWindows)
	assert.Equal(t, 240+90, view.FreeMinutes)
	assert.Equal(t, 60+90, view.BusyMinutes)

	require.Len(t, view.DueTasks, 1)
	assert.Equal(t, "t1", view.DueTasks[0].ID)
	require.Len(t, view.OverdueTasks, 1)
	assert.Equal(t, "t2", view.OverdueTasks[0].ID)
	require.Len(t, view.UnscheduledTasks, 1)
	assert.Equal(t, "t4", view.UnscheduledTasks[0].ID)
	assert.Equal(t, 1, view.TasksDueCount)
	assert.Equal(t, 1, view.OverdueCount)

	require.NotEmpty(t, view.Agenda)
	assert.Equal(t, "holiday", view.Agenda[0].Ref)
	for i := 2; i < len(view.Agenda); i++ {
		assert.False(t, view.Agenda[i].Start.Before(view.Agenda[i-1].Start))
	}
}

func TestBuildDayView_Deterministic(t *testing.T) {
	events := []model.Event{
		event("a", 9, 0, 10, 0),
		event("b", 9, 30, 11, 0),
		event("c", 13, 0, 14, 0),
		event("d", 13, 0, 13, 30),
	}
	tasks := []model.Task{
		{ID: "x", Title: "X", Due: ptr(at(12, 0))},
		{ID: "y", Title: "Y", Due: ptr(at(12, 0))},
		{ID: "z", Title: "Z"},
	}
	want, err := BuildDayView(dayInput(events, tasks))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10; i++ {
		ev := append([]model.Event(nil), events...)
		ts := append([]model.Task(nil), tasks...)
		rng.Shuffle(len(ev), func(i, j int) { ev[i], ev[j] = ev[j], ev[i] })
		rng.Shuffle(len(ts), func(i, j int) { ts[i], ts[j] = ts[j], ts[i] })

		got, err := BuildDayView(dayInput(ev, ts))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBuildDayView_Empty(t *testing.T) {
	view, err := BuildDayView(dayInput(nil, nil))
	require.NoError(t, err)

	assert.NotNil(t, view.Events)
	assert.NotNil(t, view.Conflicts)
	assert.NotNil(t, view.DueTasks)
	assert.Equal(t, []model.Interval{{Start: at(9, 0), End: at(17, 0)}}, view.FreeWindows)
	assert.Equal(t, 480, view.FreeMinutes)
	assert.Zero(t, view.BusyMinutes)
}

func TestBuildDayView_Timezone(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	in := dayInput([]model.Event{
		// 08:00Z is 09:00 in CET.
		{ID: "a", Title: "a", Start: at(8, 0), End: at(9, 0)},
	}, nil)
	in.Location = cet

	view, err := BuildDayView(in)
	require.NoError(t, err)
	require.Len(t, view.Events, 1)
	assert.Equal(t, 9, view.Events[0].Start.Hour())
	require.NotEmpty(t, view.FreeWindows)
	assert.Equal(t, 10, view.FreeWindows[0].Start.Hour())
}

func TestBuildDayView_Validation(t *testing.T) {
	in := dayInput(nil, nil)
	in.Date = "10/03/2025"
	_, err := BuildDayView(in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	in = dayInput(nil, nil)
	in.WorkStart, in.WorkEnd = in.WorkEnd, in.WorkStart
	_, err = BuildDayView(in)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "work_end", apperr.FieldOf(err))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 30}, c)
	assert.Equal(t, "09:30", c.String())

	_, err = ParseClock("9h")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
