package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/dayplanner/internal/model"
)

func TestComputeFreeWindows(t *testing.T) {
	ws, we := at(9, 0), at(17, 0)

	tests := []struct {
		name   string
		events []model.Event
		min    time.Duration
		want   []model.Interval
	}{
		{
			name: "gaps between meetings",
			events: []model.Event{
				event("a", 9, 0, 10, 0),
				event("b", 10, 30, 11, 30),
			},
			min: 15 * time.Minute,
			want: []model.Interval{
				{Start: at(10, 0), End: at(10, 30)},
				{Start: at(11, 30), End: at(17, 0)},
			},
		},
		{
			name:   "no events leaves whole window",
			events: nil,
			min:    15 * time.Minute,
			want:   []model.Interval{{Start: ws, End: we}},
		},
		{
			name:   "event covering the window",
			events: []model.Event{event("all", 8, 0, 18, 0)},
			min:    0,
			want:   []model.Interval{},
		},
		{
			name: "short gap below minimum dropped",
			events: []model.Event{
				event("a", 9, 0, 10, 0),
				event("b", 10, 10, 17, 0),
			},
			min:  15 * time.Minute,
			want: []model.Interval{},
		},
		{
			name: "all-day events do not block",
			events: []model.Event{
				{ID: "holiday", AllDay: true, Start: day, End: day.AddDate(0, 0, 1)},
			},
			min:  15 * time.Minute,
			want: []model.Interval{{Start: ws, End: we}},
		},
		{
			name: "events outside the window are clipped",
			events: []model.Event{
				event("early", 7, 0, 9, 30),
				event("late", 16, 30, 19, 0),
			},
			min:  0,
			want: []model.Interval{{Start: at(9, 30), End: at(16, 30)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFreeWindows(tt.events, ws, we, tt.min)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeFreeWindows_CoversWorkingTime(t *testing.T) {
	ws, we := at(9, 0), at(17, 0)
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 200; round++ {
		n := rng.Intn(10)
		events := make([]model.Event, 0, n)
		for i := 0; i < n; i++ {
			start := rng.Intn(24 * 4)
			length := 1 + rng.Intn(12)
			events = append(events, model.Event{
				ID:    string(rune('a' + i)),
				Start: day.Add(time.Duration(start) * 15 * time.Minute),
				End:   day.Add(time.Duration(start+length) * 15 * time.Minute),
			})
		}

		free := ComputeFreeWindows(events, ws, we, 0)
		busy := BusyIntervals(events, ws, we)

		// Free and busy partition the working window.
		assert.Equal(t, int(we.Sub(ws)/time.Minute), totalMinutes(free)+totalMinutes(busy), "round %d", round)

		for _, f := range free {
			assert.False(t, f.Start.Before(ws))
			assert.False(t, f.End.After(we))
			for _, ev := range events {
				assert.False(t, f.Overlaps(ev.Interval()), "free window overlaps %s", ev.ID)
			}
		}
		for i := 1; i < len(free); i++ {
			assert.True(t, free[i-1].End.Before(free[i].Start))
		}

		assert.Equal(t, free, ComputeFreeWindows(events, ws, we, 0))
	}
}

func TestComputeFreeWindows_EmptyWindow(t *testing.T) {
	assert.Empty(t, ComputeFreeWindows(nil, at(17, 0), at(9, 0), 0))
}

func TestBusyIntervals_MergesAdjacent(t *testing.T) {
	got := BusyIntervals([]model.Event{
		event("a", 9, 0, 10, 0),
		event("b", 10, 0, 11, 0),
		event("c", 10, 30, 10, 45),
	}, at(9, 0), at(17, 0))

	assert.Equal(t, []model.Interval{{Start: at(9, 0), End: at(11, 0)}}, got)
}
