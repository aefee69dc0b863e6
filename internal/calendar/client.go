package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/executor"
	"github.com/teemow/dayplanner/internal/google"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/model"
)

const pageSize = 250

// Client wraps the Google Calendar service
type Client struct {
	svc    *calendar.Service
	exec   *executor.Executor
	logger *slog.Logger
}

// NewClient creates a Calendar client. Authorization is expected to come
// from an executor.NewHTTPClient passed in opts.
func NewClient(ctx context.Context, exec *executor.Executor, opts ...option.ClientOption) (*Client, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &Client{
		svc:    svc,
		exec:   exec,
		logger: logging.WithService(slog.Default(), instrumentation.ServiceCalendar),
	}, nil
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logging.WithService(logger, instrumentation.ServiceCalendar)
}

func request(op string, write bool) executor.Request {
	return executor.Request{Service: instrumentation.ServiceCalendar, Operation: op, Write: write}
}

// ListEvents lists the events of a calendar overlapping [start, end).
// Recurring events are expanded into instances and cancelled instances are
// dropped. Events Google returns in a shape we cannot read are skipped.
func (c *Client) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]model.Event, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if !start.Before(end) {
		return nil, apperr.Validation("calendar.list_events", "end", "end must be after start")
	}

	call := c.svc.Events.List(calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(pageSize)

	events := []model.Event{}
	pageToken := ""
	for {
		page, err := executor.Call(ctx, c.exec, request(instrumentation.OperationList, false), func(ctx context.Context) (*calendar.Events, error) {
			return call.PageToken(pageToken).Context(ctx).Do()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list events of %s: %w", calendarID, err)
		}

		for _, item := range page.Items {
			if item == nil || item.Status == statusCancelled {
				continue
			}
			ev, err := FromExternal(calendarID, item)
			if err != nil {
				c.logger.Warn("skipping unreadable event", slog.String("event_id", item.Id), logging.Err(err))
				continue
			}
			events = append(events, ev)
		}

		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetEvent retrieves a specific event by ID
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (model.Event, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	e, err := executor.Call(ctx, c.exec, request(instrumentation.OperationGet, false), func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("failed to get event: %w", err)
	}
	return FromExternal(calendarID, e)
}

// CreateEvent creates an event with a client-generated id. If Google reports
// the id as taken, an earlier attempt of this call already succeeded and the
// stored event is returned.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev model.Event) (model.Event, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if ev.ID == "" {
		ev.ID = NewEventID()
	}
	body, err := ToExternal(ev)
	if err != nil {
		return model.Event{}, err
	}

	created, err := executor.Call(ctx, c.exec, request(instrumentation.OperationCreate, true), func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Insert(calendarID, body).Context(ctx).Do()
	})
	if google.IsDuplicate(err) {
		c.logger.Info("event id already exists, returning stored event", slog.String("event_id", ev.ID))
		return c.GetEvent(ctx, calendarID, ev.ID)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	return FromExternal(calendarID, created)
}

// UpdateEvent changes the fields set in patch and leaves the rest untouched.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, patch EventPatch) (model.Event, error) {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if eventID == "" {
		return model.Event{}, apperr.Validation("calendar.update_event", "event_id", "event id is required")
	}
	body, err := toPatch(patch)
	if err != nil {
		return model.Event{}, err
	}

	updated, err := executor.Call(ctx, c.exec, request(instrumentation.OperationUpdate, true), func(ctx context.Context) (*calendar.Event, error) {
		return c.svc.Events.Patch(calendarID, eventID, body).Context(ctx).Do()
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("failed to update event: %w", err)
	}
	return FromExternal(calendarID, updated)
}

// DeleteEvent deletes an event
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if eventID == "" {
		return apperr.Validation("calendar.delete_event", "event_id", "event id is required")
	}
	err := c.exec.Execute(ctx, executor.Request{
		Service:   instrumentation.ServiceCalendar,
		Operation: instrumentation.OperationDelete,
		Write:     true,
		Do: func(ctx context.Context) error {
			return c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ListCalendars lists all calendars accessible to the user
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	calendars := []CalendarInfo{}
	pageToken := ""
	for {
		page, err := executor.Call(ctx, c.exec, request(instrumentation.OperationListAll, false), func(ctx context.Context) (*calendar.CalendarList, error) {
			return c.svc.CalendarList.List().PageToken(pageToken).Context(ctx).Do()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list calendars: %w", err)
		}
		for _, entry := range page.Items {
			calendars = append(calendars, toCalendarInfo(entry))
		}
		if page.NextPageToken == "" {
			return calendars, nil
		}
		pageToken = page.NextPageToken
	}
}

// NewEventID returns a random id valid for Calendar (base32hex characters).
func NewEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
