package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/ics"
	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/schedule"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

type window struct{ from, to time.Time }

type fakeEvents struct {
	mu      sync.Mutex
	events  map[string][]model.Event
	errs    map[string]error
	delay   map[string]time.Duration
	block   map[string]bool
	windows map[string]window
}

func (f *fakeEvents) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.Event, error) {
	f.mu.Lock()
	if f.windows == nil {
		f.windows = map[string]window{}
	}
	f.windows[calendarID] = window{start, end}
	f.mu.Unlock()

	if f.block[calendarID] {
		<-ctx.Done()
		return nil, apperr.Cancelled("calendar.list_events", ctx.Err())
	}
	if d := f.delay[calendarID]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[calendarID]; err != nil {
		return nil, err
	}
	return f.events[calendarID], nil
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks map[string][]model.Task
	errs  map[string]error
	calls map[string]int
}

func (f *fakeTasks) ListTasks(ctx context.Context, listID string, includeCompleted bool) ([]model.Task, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[listID]++
	f.mu.Unlock()

	if err := f.errs[listID]; err != nil {
		return nil, err
	}
	return f.tasks[listID], nil
}

type fakeFeeds struct {
	events []model.Event
	err    error
}

func (f *fakeFeeds) Events(ctx context.Context, src ics.Source, start, end time.Time) ([]model.Event, error) {
	return f.events, f.err
}

func testConfig() Config {
	return Config{
		Calendars:     []string{"primary"},
		TaskLists:     []string{"@default"},
		Timezone:      "UTC",
		WorkStart:     schedule.MustParseClock("09:00"),
		WorkEnd:       schedule.MustParseClock("17:00"),
		MinFreeWindow: 15 * time.Minute,
		FetchBuffer:   6 * time.Hour,
		Timeout:       5 * time.Second,
	}
}

func ev(id string, sh, sm, eh, em int) model.Event {
	return model.Event{ID: id, Title: id, Start: at(sh, sm), End: at(eh, em)}
}

func TestGetDayOverview(t *testing.T) {
	cfg := testConfig()
	cfg.Calendars = []string{"primary", "team", "primary"}

	events := &fakeEvents{
		events: map[string][]model.Event{
			"primary": {ev("standup", 9, 0, 10, 0), ev("shared", 14, 0, 15, 0)},
			"team":    {ev("shared", 14, 0, 15, 0), ev("review", 14, 30, 15, 30)},
		},
		delay: map[string]time.Duration{"primary": 20 * time.Millisecond},
	}
	tasks := &fakeTasks{tasks: map[string][]model.Task{
		"@default": {
			{ID: "t1", ListID: "@default", Title: "Report", Due: ptr(day), DueDateOnly: true},
			{ID: "t2", ListID: "@default", Title: "Invoice", Due: ptr(day.AddDate(0, 0, -1)), DueDateOnly: true},
			{ID: "t3", ListID: "@default", Title: "Someday"},
		},
	}}

	a := New(cfg, events, tasks)
	view, err := a.GetDayOverview(context.Background(), "2025-03-10", "", nil)
	require.NoError(t, err)
	require.NoError(t, view.Err())

	assert.False(t, view.Partial)
	assert.Empty(t, view.FailedSources)
	assert.Equal(t, []string{"standup", "shared", "review"}, eventIDs(view.Events))
	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, "shared", view.Conflicts[0].EventA)
	assert.Equal(t, "review", view.Conflicts[0].EventB)
	assert.Equal(t, []string{"t1"}, taskIDs(view.DueTasks))
	assert.Equal(t, []string{"t2"}, taskIDs(view.OverdueTasks))
	assert.Equal(t, []string{"t3"}, taskIDs(view.UnscheduledTasks))

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Len(t, events.windows, 2, "duplicate calendar ids are fetched once")
	assert.Equal(t, window{day.Add(-6 * time.Hour), day.Add(30 * time.Hour)}, events.windows["primary"])
}

func TestGetDayOverview_PartialTaskList(t *testing.T) {
	events := &fakeEvents{events: map[string][]model.Event{"primary": {ev("standup", 9, 0, 10, 0)}}}
	tasks := &fakeTasks{
		tasks: map[string][]model.Task{"work": {{ID: "w1", ListID: "work", Title: "Ship", Due: ptr(day), DueDateOnly: true}}},
		errs:  map[string]error{"home": apperr.New(apperr.KindNetwork, "tasks.list", errors.New("connection reset"))},
	}

	view, err := New(testConfig(), events, tasks).GetDayOverview(context.Background(), "2025-03-10", "UTC", []string{"work", "home"})
	require.NoError(t, err)

	assert.True(t, view.Partial)
	assert.Equal(t, []string{"w1"}, taskIDs(view.DueTasks))
	assert.Equal(t, []string{"standup"}, eventIDs(view.Events))
	require.Len(t, view.FailedSources, 1)
	assert.Equal(t, "tasks:home", view.FailedSources[0].Source)
	assert.Equal(t, apperr.KindNetwork, view.FailedSources[0].Kind)
	assert.ErrorIs(t, view.Err(), apperr.ErrPartialAggregation)
}

func TestGetDayOverview_Failures(t *testing.T) {
	tests := []struct {
		name      string
		eventErr  error
		taskErr   error
		wantErr   error
		wantField string
	}{
		{
			name:     "every source failed",
			eventErr: apperr.New(apperr.KindRateLimited, "calendar.list_events", errors.New("slow down")),
			taskErr:  apperr.New(apperr.KindNetwork, "tasks.list", errors.New("reset")),
			wantErr:  apperr.ErrRateLimited,
		},
		{
			name:     "revoked credential",
			eventErr: apperr.Newf(apperr.KindPermanentAuth, "credential.refresh", "invalid_grant"),
			wantErr:  apperr.ErrPermanentAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeEvents{errs: map[string]error{"primary": tt.eventErr}}
			tasks := &fakeTasks{errs: map[string]error{"@default": tt.taskErr}}

			_, err := New(testConfig(), events, tasks).GetDayOverview(context.Background(), "2025-03-10", "UTC", nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetDayOverview_RevokedCredentialStopsOtherSources(t *testing.T) {
	cfg := testConfig()
	cfg.Calendars = []string{"primary", "slow"}
	cfg.Timeout = 0

	events := &fakeEvents{
		errs:  map[string]error{"primary": apperr.Newf(apperr.KindPermanentAuth, "credential.refresh", "invalid_grant")},
		block: map[string]bool{"slow": true},
	}

	done := make(chan error, 1)
	go func() {
		_, err := New(cfg, events, &fakeTasks{}).GetDayOverview(context.Background(), "2025-03-10", "UTC", nil)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, apperr.ErrPermanentAuth)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked source was not cancelled after the credential was revoked")
	}
}

func TestGetDayOverview_Validation(t *testing.T) {
	a := New(testConfig(), &fakeEvents{}, &fakeTasks{})

	_, err := a.GetDayOverview(context.Background(), "10/03/2025", "UTC", nil)
	assert.Equal(t, "date", apperr.FieldOf(err))

	_, err = a.GetDayOverview(context.Background(), "2025-03-10", "Mars/Olympus", nil)
	assert.Equal(t, "timezone", apperr.FieldOf(err))
}

func TestGetDayOverview_Cancelled(t *testing.T) {
	events := &fakeEvents{block: map[string]bool{"primary": true}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(testConfig(), events, &fakeTasks{}).GetDayOverview(ctx, "2025-03-10", "UTC", nil)
	assert.ErrorIs(t, err, apperr.ErrCancelled)
}

func TestGetDayOverview_TimeoutFlagsSlowSource(t *testing.T) {
	cfg := testConfig()
	cfg.Calendars = []string{"primary", "slow"}
	cfg.Timeout = 50 * time.Millisecond

	events := &fakeEvents{
		events: map[string][]model.Event{"primary": {ev("standup", 9, 0, 10, 0)}},
		block:  map[string]bool{"slow": true},
	}

	start := time.Now()
	view, err := New(cfg, events, &fakeTasks{}).GetDayOverview(context.Background(), "2025-03-10", "UTC", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, view.Partial)
	require.Len(t, view.FailedSources, 1)
	assert.Equal(t, "calendar:slow", view.FailedSources[0].Source)
	assert.Equal(t, []string{"standup"}, eventIDs(view.Events))
}

func TestGetDayOverview_Feeds(t *testing.T) {
	cfg := testConfig()
	cfg.Feeds = []ics.Source{{ID: "holidays", URL: "https://example.com/h.ics"}}

	feeds := &fakeFeeds{events: []model.Event{
		{ID: "h1", Title: "Holiday", Source: "ics:holidays", AllDay: true, Start: day, End: day.AddDate(0, 0, 1)},
	}}
	view, err := New(cfg, &fakeEvents{}, &fakeTasks{}, WithFeeds(feeds)).GetDayOverview(context.Background(), "2025-03-10", "UTC", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, eventIDs(view.AllDayEvents))

	feeds.err = apperr.New(apperr.KindNotFound, "ics.fetch", errors.New("gone"))
	view, err = New(cfg, &fakeEvents{}, &fakeTasks{}, WithFeeds(feeds)).GetDayOverview(context.Background(), "2025-03-10", "UTC", nil)
	require.NoError(t, err)
	require.Len(t, view.FailedSources, 1)
	assert.Equal(t, "ics:holidays", view.FailedSources[0].Source)
}

func TestGetDayOverview_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.Calendars = []string{"a", "b", "c"}

	build := func(delays map[string]time.Duration) model.DayView {
		events := &fakeEvents{
			events: map[string][]model.Event{
				"a": {ev("a1", 9, 0, 10, 0), ev("x", 11, 0, 12, 0)},
				"b": {ev("b1", 9, 30, 10, 30)},
				"c": {ev("c1", 13, 0, 14, 0), ev("x", 11, 0, 12, 0)},
			},
			delay: delays,
		}
		view, err := New(cfg, events, &fakeTasks{}).GetDayOverview(context.Background(), "2025-03-10", "UTC", nil)
		require.NoError(t, err)
		return view
	}

	first := build(map[string]time.Duration{"a": 15 * time.Millisecond})
	second := build(map[string]time.Duration{"c": 15 * time.Millisecond, "b": 5 * time.Millisecond})
	assert.Equal(t, first, second)
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, unique([]string{"a", "", "b", "a"}))
	assert.Empty(t, unique(nil))
}

func eventIDs(events []model.Event) []string {
	out := []string{}
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func taskIDs(tasks []model.Task) []string {
	out := []string{}
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
