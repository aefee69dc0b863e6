package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/credential"
	"github.com/teemow/dayplanner/internal/executor"
	"github.com/teemow/dayplanner/internal/google"
	"github.com/teemow/dayplanner/internal/model"
)

type staticTokens struct {
	mu    sync.Mutex
	token string
}

func (s *staticTokens) Acquire(context.Context) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return credential.Credential{AccessToken: s.token}, nil
}

func (s *staticTokens) ForceRefresh(context.Context, string) (credential.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = "refreshed"
	return credential.Credential{AccessToken: s.token}, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *staticTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &staticTokens{token: "tok"}
	exec := executor.New(executor.Config{
		MaxAttempts:       3,
		MaxNetworkRetries: 2,
		BaseBackoff:       time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		QuotaWindow:       time.Minute,
		QuotaMaxRequests:  1000,
		QuotaMaxWait:      time.Second,
		RequestTimeout:    5 * time.Second,
	}, tokens, executor.WithClassifier(executor.ClassifierFunc(google.Classify)))

	c, err := NewClient(context.Background(), exec, google.ClientOptions(executor.NewHTTPClient(nil), srv.URL+"/")...)
	require.NoError(t, err)
	return c, tokens
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func apiError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, fmt.Sprintf(`{"error":{"code":%d,"message":"test","errors":[{"domain":"global","reason":%q,"message":"test"}]}}`, status, reason))
}

func TestClient_ListEvents(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "2025-03-10T00:00:00Z", q.Get("timeMin"))

		switch q.Get("pageToken") {
		case "":
			writeJSON(w, 200, `{"items":[
				{"id":"a","summary":"Standup","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T09:15:00Z"}},
				{"id":"gone","status":"cancelled","start":{"dateTime":"2025-03-10T10:00:00Z"},"end":{"dateTime":"2025-03-10T11:00:00Z"}}
			],"nextPageToken":"p2"}`)
		case "p2":
			writeJSON(w, 200, `{"items":[
				{"id":"h","summary":"Holiday","start":{"date":"2025-03-10"},"end":{"date":"2025-03-11"}},
				{"id":"bad","start":{"dateTime":"2025-03-10T12:00:00"},"end":{"dateTime":"2025-03-10T13:00:00Z"}}
			]}`)
		default:
			t.Errorf("unexpected page token %q", q.Get("pageToken"))
		}
	})

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	events, err := c.ListEvents(context.Background(), "", start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "h", events[1].ID)
	assert.True(t, events[1].AllDay)
}

func TestClient_ListEventsValidation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	now := time.Now()
	_, err := c.ListEvents(context.Background(), "primary", now, now)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestClient_CreateEventDuplicateResolvesToExisting(t *testing.T) {
	var (
		mu     sync.Mutex
		sentID string
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			sentID, _ = body["id"].(string)
			apiError(w, http.StatusConflict, "duplicate")
		case http.MethodGet:
			assert.Equal(t, "/calendars/primary/events/"+sentID, r.URL.Path)
			writeJSON(w, 200, `{"id":"`+sentID+`","summary":"Review","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T10:00:00Z"}}`)
		}
	})

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ev, err := c.CreateEvent(context.Background(), "", newEvent(start))
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, sentID)
	assert.Equal(t, sentID, ev.ID)
	assert.Equal(t, "Review", ev.Title)
}

func newEvent(start time.Time) model.Event {
	return model.Event{Title: "Review", Start: start, End: start.Add(time.Hour)}
}

func TestClient_CreateEventRetriesThrottledOnce(t *testing.T) {
	var mu sync.Mutex
	posts := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		n := posts
		mu.Unlock()
		if n == 1 {
			apiError(w, http.StatusTooManyRequests, "rateLimitExceeded")
			return
		}
		writeJSON(w, 200, `{"id":"x","summary":"Review","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T10:00:00Z"}}`)
	})

	ev, err := c.CreateEvent(context.Background(), "primary", newEvent(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, "x", ev.ID)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, posts)
}

func TestClient_UpdateEventPatches(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/calendars/primary/events/e1", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"summary": "Renamed"}, body)
		writeJSON(w, 200, `{"id":"e1","summary":"Renamed","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T10:00:00Z"}}`)
	})

	title := "Renamed"
	ev, err := c.UpdateEvent(context.Background(), "primary", "e1", EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", ev.Title)
}

func TestClient_DeleteEventNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		apiError(w, http.StatusNotFound, "notFound")
	})

	err := c.DeleteEvent(context.Background(), "primary", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestClient_RefreshesOnUnauthorized(t *testing.T) {
	c, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok" {
			apiError(w, http.StatusUnauthorized, "authError")
			return
		}
		writeJSON(w, 200, `{"id":"e1","summary":"x","start":{"dateTime":"2025-03-10T09:00:00Z"},"end":{"dateTime":"2025-03-10T10:00:00Z"}}`)
	})

	_, err := c.GetEvent(context.Background(), "primary", "e1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tokens.token)
}

func TestClient_ListCalendars(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me/calendarList", r.URL.Path)
		writeJSON(w, 200, `{"items":[{"id":"primary@x.com","summary":"Me","primary":true,"accessRole":"owner","timeZone":"Europe/Berlin"}]}`)
	})

	cals, err := c.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.True(t, cals[0].Primary)
	assert.Equal(t, "Europe/Berlin", cals[0].TimeZone)
}
