// Package tooltest provides an in-memory Google Calendar and Tasks backend
// and a fully wired server context for tool handler tests.
package tooltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	tasks "google.golang.org/api/tasks/v1"
)

// Google is a fake of the subset of the Calendar and Tasks APIs the
// adapters use. It is safe for concurrent use.
type Google struct {
	mu        sync.Mutex
	events    map[string][]*calendar.Event
	calendars []*calendar.CalendarListEntry
	lists     []*tasks.TaskList
	tasks     map[string][]*tasks.Task
	failures  map[string]int
	nextID    int
}

// NewGoogle creates an empty fake with a primary calendar and a default
// task list.
func NewGoogle() *Google {
	return &Google{
		events: map[string][]*calendar.Event{},
		calendars: []*calendar.CalendarListEntry{
			{Id: "primary", Summary: "Primary", Primary: true, AccessRole: "owner", TimeZone: "UTC"},
		},
		lists: []*tasks.TaskList{
			{Id: "@default", Title: "My Tasks", Updated: "2025-03-01T00:00:00Z"},
		},
		tasks:    map[string][]*tasks.Task{},
		failures: map[string]int{},
	}
}

// AddTimedEvent stores a timed event.
func (g *Google) AddTimedEvent(calendarID, id, summary string, start, end time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[calendarID] = append(g.events[calendarID], &calendar.Event{
		Id:      id,
		Summary: summary,
		Status:  "confirmed",
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	})
}

// AddAllDayEvent stores an all-day event. end is exclusive.
func (g *Google) AddAllDayEvent(calendarID, id, summary, start, end string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[calendarID] = append(g.events[calendarID], &calendar.Event{
		Id:      id,
		Summary: summary,
		Status:  "confirmed",
		Start:   &calendar.EventDateTime{Date: start},
		End:     &calendar.EventDateTime{Date: end},
	})
}

// AddTask stores an open task. due may be empty.
func (g *Google) AddTask(listID, id, title, due string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks[listID] = append(g.tasks[listID], &tasks.Task{
		Id:       id,
		Title:    title,
		Due:      due,
		Status:   "needsAction",
		Position: fmt.Sprintf("%08d", len(g.tasks[listID])),
	})
}

// FailCalendar makes listing events of calendarID fail with status until
// cleared with status 0.
func (g *Google) FailCalendar(calendarID string, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures["calendar:"+calendarID] = status
}

// Events returns the stored events of a calendar.
func (g *Google) Events(calendarID string) []*calendar.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.events[calendarID])
}

// Tasks returns the stored tasks of a list.
func (g *Google) Tasks(listID string) []*tasks.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.tasks[listID])
}

// Handler returns the HTTP handler serving the fake APIs.
func (g *Google) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		writeJSON(w, http.StatusOK, &calendar.CalendarList{Items: g.calendars})
	})
	mux.HandleFunc("GET /calendars/{cal}/events", g.listEvents)
	mux.HandleFunc("POST /calendars/{cal}/events", g.insertEvent)
	mux.HandleFunc("GET /calendars/{cal}/events/{id}", g.getEvent)
	mux.HandleFunc("PATCH /calendars/{cal}/events/{id}", g.patchEvent)
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", g.deleteEvent)

	mux.HandleFunc("GET /tasks/v1/users/@me/lists", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		writeJSON(w, http.StatusOK, &tasks.TaskLists{Items: g.lists})
	})
	mux.HandleFunc("GET /tasks/v1/lists/{list}/tasks", g.listTasks)
	mux.HandleFunc("POST /tasks/v1/lists/{list}/tasks", g.insertTask)
	mux.HandleFunc("GET /tasks/v1/lists/{list}/tasks/{id}", g.getTask)
	mux.HandleFunc("PATCH /tasks/v1/lists/{list}/tasks/{id}", g.patchTask)
	mux.HandleFunc("DELETE /tasks/v1/lists/{list}/tasks/{id}", g.deleteTask)

	return mux
}

func (g *Google) listEvents(w http.ResponseWriter, r *http.Request) {
	cal := r.PathValue("cal")
	g.mu.Lock()
	defer g.mu.Unlock()

	if status := g.failures["calendar:"+cal]; status != 0 {
		apiError(w, status, "backendError")
		return
	}

	from, _ := time.Parse(time.RFC3339, r.URL.Query().Get("timeMin"))
	to, _ := time.Parse(time.RFC3339, r.URL.Query().Get("timeMax"))
	items := []*calendar.Event{}
	for _, ev := range g.events[cal] {
		if ev.Start.DateTime != "" && !from.IsZero() && !to.IsZero() {
			s, _ := time.Parse(time.RFC3339, ev.Start.DateTime)
			e, _ := time.Parse(time.RFC3339, ev.End.DateTime)
			if !s.Before(to) || !e.After(from) {
				continue
			}
		}
		items = append(items, ev)
	}
	writeJSON(w, http.StatusOK, &calendar.Events{Items: items})
}

func (g *Google) insertEvent(w http.ResponseWriter, r *http.Request) {
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		apiError(w, http.StatusBadRequest, "invalid")
		return
	}
	cal := r.PathValue("cal")

	g.mu.Lock()
	defer g.mu.Unlock()
	if ev.Id == "" {
		g.nextID++
		ev.Id = fmt.Sprintf("ev%d", g.nextID)
	}
	if find(g.events[cal], ev.Id) >= 0 {
		apiError(w, http.StatusConflict, "duplicate")
		return
	}
	if ev.Status == "" {
		ev.Status = "confirmed"
	}
	g.events[cal] = append(g.events[cal], &ev)
	writeJSON(w, http.StatusOK, &ev)
}

func (g *Google) getEvent(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.events[r.PathValue("cal")]
	i := find(list, r.PathValue("id"))
	if i < 0 {
		apiError(w, http.StatusNotFound, "notFound")
		return
	}
	writeJSON(w, http.StatusOK, list[i])
}

func (g *Google) patchEvent(w http.ResponseWriter, r *http.Request) {
	var patch calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apiError(w, http.StatusBadRequest, "invalid")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.events[r.PathValue("cal")]
	i := find(list, r.PathValue("id"))
	if i < 0 {
		apiError(w, http.StatusNotFound, "notFound")
		return
	}
	ev := list[i]
	if patch.Summary != "" {
		ev.Summary = patch.Summary
	}
	if patch.Description != "" {
		ev.Description = patch.Description
	}
	if patch.Location != "" {
		ev.Location = patch.Location
	}
	if patch.Start != nil {
		ev.Start = patch.Start
	}
	if patch.End != nil {
		ev.End = patch.End
	}
	if patch.Attendees != nil {
		ev.Attendees = patch.Attendees
	}
	writeJSON(w, http.StatusOK, ev)
}

func (g *Google) deleteEvent(w http.ResponseWriter, r *http.Request) {
	cal := r.PathValue("cal")
	g.mu.Lock()
	defer g.mu.Unlock()
	i := find(g.events[cal], r.PathValue("id"))
	if i < 0 {
		apiError(w, http.StatusGone, "deleted")
		return
	}
	g.events[cal] = slices.Delete(g.events[cal], i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Google) listTasks(w http.ResponseWriter, r *http.Request) {
	showCompleted := r.URL.Query().Get("showCompleted") == "true"
	g.mu.Lock()
	defer g.mu.Unlock()
	items := []*tasks.Task{}
	for _, t := range g.tasks[r.PathValue("list")] {
		if t.Status == "completed" && !showCompleted {
			continue
		}
		items = append(items, t)
	}
	writeJSON(w, http.StatusOK, &tasks.Tasks{Items: items})
}

func (g *Google) insertTask(w http.ResponseWriter, r *http.Request) {
	var t tasks.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		apiError(w, http.StatusBadRequest, "invalid")
		return
	}
	list := r.PathValue("list")

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	t.Id = fmt.Sprintf("task%d", g.nextID)
	if t.Status == "" {
		t.Status = "needsAction"
	}
	t.Position = fmt.Sprintf("%08d", len(g.tasks[list]))
	g.tasks[list] = append(g.tasks[list], &t)
	writeJSON(w, http.StatusOK, &t)
}

func (g *Google) getTask(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.tasks[r.PathValue("list")]
	i := findTask(list, r.PathValue("id"))
	if i < 0 {
		apiError(w, http.StatusNotFound, "notFound")
		return
	}
	writeJSON(w, http.StatusOK, list[i])
}

func (g *Google) patchTask(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		apiError(w, http.StatusBadRequest, "invalid")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.tasks[r.PathValue("list")]
	i := findTask(list, r.PathValue("id"))
	if i < 0 {
		apiError(w, http.StatusNotFound, "notFound")
		return
	}
	t := list[i]
	for key, value := range raw {
		var s *string
		_ = json.Unmarshal(value, &s)
		v := ""
		if s != nil {
			v = *s
		}
		switch key {
		case "title":
			t.Title = v
		case "notes":
			t.Notes = v
		case "due":
			t.Due = v
		case "status":
			t.Status = v
			if v == "completed" {
				t.Completed = ptr("2025-03-10T12:00:00.000Z")
			}
		}
	}
	writeJSON(w, http.StatusOK, t)
}

func (g *Google) deleteTask(w http.ResponseWriter, r *http.Request) {
	listID := r.PathValue("list")
	g.mu.Lock()
	defer g.mu.Unlock()
	i := findTask(g.tasks[listID], r.PathValue("id"))
	if i < 0 {
		apiError(w, http.StatusNotFound, "notFound")
		return
	}
	g.tasks[listID] = slices.Delete(g.tasks[listID], i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func find(events []*calendar.Event, id string) int {
	return slices.IndexFunc(events, func(ev *calendar.Event) bool { return ev.Id == id })
}

func findTask(list []*tasks.Task, id string) int {
	return slices.IndexFunc(list, func(t *tasks.Task) bool { return t.Id == id })
}

func ptr(s string) *string { return &s }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake","errors":[{"domain":"global","reason":%q,"message":"fake"}]}}`, status, reason)
}

// Server starts an httptest server for g.
func (g *Google) Server() *httptest.Server {
	return httptest.NewServer(g.Handler())
}
