package calendar_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/teambition/rrule-go"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/calendar"
	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tools/common"
)

const argsOp = "calendar_tools.args"

// RegisterEventTools registers event-related tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	// List events tool (read-only, always available)
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List calendar events within a time range"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start time for the range (RFC3339 format, e.g., '2025-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End time for the range (RFC3339 format, e.g., '2025-01-31T23:59:59Z')"),
		),
	)

	s.AddTool(listEventsTool, common.InstrumentedToolHandler("calendar_list_events", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	// Get event tool
	getEventTool := mcp.NewTool("calendar_get_event",
		mcp.WithDescription("Get details of a specific calendar event"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to retrieve"),
		),
	)

	s.AddTool(getEventTool, common.InstrumentedToolHandler("calendar_get_event", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetEvent(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	createEventTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create a new calendar event (timed, all-day or recurring)"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title/summary"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time (RFC3339 format), or start date (YYYY-MM-DD) for all-day events"),
		),
		mcp.WithString("end",
			mcp.Description("End time (RFC3339 format), or exclusive end date for all-day events (default: one day after start)"),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Create an all-day event"),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated list of attendee email addresses"),
		),
		mcp.WithString("recurrence",
			mcp.Description("Recurrence rule, e.g. 'FREQ=WEEKLY;BYDAY=MO;COUNT=10'"),
		),
	)

	s.AddTool(createEventTool, common.InstrumentedToolHandler("calendar_create_event", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, sc)
		}))

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Update an existing calendar event. Only the given fields change."),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Description("New event title/summary"),
		),
		mcp.WithString("description",
			mcp.Description("New event description"),
		),
		mcp.WithString("location",
			mcp.Description("New event location"),
		),
		mcp.WithString("start",
			mcp.Description("New start time (RFC3339 format), or date for all-day events"),
		),
		mcp.WithString("end",
			mcp.Description("New end time (RFC3339 format), or exclusive end date for all-day events"),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Switch between all-day and timed (requires both start and end)"),
		),
		mcp.WithString("attendees",
			mcp.Description("New comma-separated list of attendee email addresses (empty string removes all)"),
		),
	)

	s.AddTool(updateEventTool, common.InstrumentedToolHandler("calendar_update_event", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateEvent(ctx, request, sc)
		}))

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete a calendar event"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar ID (use 'primary' for primary calendar)"),
		),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to delete"),
		),
	)

	s.AddTool(deleteEventTool, common.InstrumentedToolHandler("calendar_delete_event", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvent(ctx, request, sc)
		}))

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := common.StringArg(args, "calendarId", calendar.DefaultCalendarID)

	timeMin, err := model.ParseInstant("timeMin", common.StringArg(args, "timeMin", ""))
	if err != nil {
		return common.ErrorResult("list events", err), nil
	}
	timeMax, err := model.ParseInstant("timeMax", common.StringArg(args, "timeMax", ""))
	if err != nil {
		return common.ErrorResult("list events", err), nil
	}
	if !timeMin.Before(timeMax) {
		return common.ErrorResult("list events", apperr.Validation(argsOp, "timeMax", "timeMax must be after timeMin")), nil
	}

	events, err := sc.CalendarClient().ListEvents(ctx, calendarID, timeMin, timeMax)
	if err != nil {
		return common.ErrorResult("list events", err), nil
	}

	return common.JSONResult(map[string]interface{}{
		"calendar_id": calendarID,
		"count":       len(events),
		"events":      common.NewEventOutputs(events),
	})
}

func handleGetEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := common.StringArg(args, "calendarId", calendar.DefaultCalendarID)

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return common.ErrorResult("get event", err), nil
	}

	ev, err := sc.CalendarClient().GetEvent(ctx, calendarID, eventID)
	if err != nil {
		return common.ErrorResult("get event", err), nil
	}
	return common.JSONResult(common.NewEventOutput(ev))
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ev, calendarID, err := eventFromArgs(request.GetArguments())
	if err != nil {
		return common.ErrorResult("create event", err), nil
	}

	created, err := sc.CalendarClient().CreateEvent(ctx, calendarID, ev)
	if err != nil {
		return common.ErrorResult("create event", err), nil
	}
	return common.JSONResult(common.NewEventOutput(created))
}

// eventFromArgs builds a new event from the create arguments.
func eventFromArgs(args map[string]interface{}) (model.Event, string, error) {
	calendarID := common.StringArg(args, "calendarId", calendar.DefaultCalendarID)

	summary, err := common.RequiredString(args, "summary")
	if err != nil {
		return model.Event{}, "", err
	}

	allDay := common.BoolArg(args, "allDay", false)
	start, end, err := parseTimes(args, allDay, true)
	if err != nil {
		return model.Event{}, "", err
	}
	if end == nil {
		if !allDay {
			return model.Event{}, "", apperr.Validation(argsOp, "end", "end is required for timed events")
		}
		next := start.AddDate(0, 0, 1)
		end = &next
	}

	ev := model.Event{
		Title:       summary,
		Description: common.StringArg(args, "description", ""),
		Location:    common.StringArg(args, "location", ""),
		Start:       *start,
		End:         *end,
		AllDay:      allDay,
		Attendees:   model.NormalizeAttendees(common.ListArg(args, "attendees")),
	}
	if !ev.Start.Before(ev.End) {
		return model.Event{}, "", apperr.Validation(argsOp, "end", "end must be after start")
	}

	if raw := common.StringArg(args, "recurrence", ""); raw != "" {
		rule, err := parseRecurrence(raw)
		if err != nil {
			return model.Event{}, "", err
		}
		ev.Recurrence = []string{rule}
	}
	return ev, calendarID, nil
}

// parseTimes reads the start and end arguments. All-day values are dates,
// timed values are RFC 3339 instants. Missing arguments yield nil.
func parseTimes(args map[string]interface{}, allDay, startRequired bool) (*time.Time, *time.Time, error) {
	parse := func(field string) (*time.Time, error) {
		raw := common.StringArg(args, field, "")
		if raw == "" {
			return nil, nil
		}
		var t time.Time
		var err error
		if allDay {
			t, err = model.ParseDate(field, raw)
		} else {
			t, err = model.ParseInstant(field, raw)
		}
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	start, err := parse("start")
	if err != nil {
		return nil, nil, err
	}
	if start == nil && startRequired {
		return nil, nil, apperr.Validation(argsOp, "start", "start is required")
	}
	end, err := parse("end")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// parseRecurrence validates an RRULE and returns it in RFC 5545 property
// form.
func parseRecurrence(raw string) (string, error) {
	rule := strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:")
	if _, err := rrule.StrToROption(rule); err != nil {
		return "", apperr.Validation(argsOp, "recurrence", "invalid recurrence rule %q: %v", raw, err)
	}
	return "RRULE:" + rule, nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := common.StringArg(args, "calendarId", calendar.DefaultCalendarID)

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return common.ErrorResult("update event", err), nil
	}

	patch, err := patchFromArgs(args)
	if err != nil {
		return common.ErrorResult("update event", err), nil
	}

	updated, err := sc.CalendarClient().UpdateEvent(ctx, calendarID, eventID, patch)
	if err != nil {
		return common.ErrorResult("update event", err), nil
	}
	return common.JSONResult(common.NewEventOutput(updated))
}

// patchFromArgs builds a sparse patch from the update arguments.
func patchFromArgs(args map[string]interface{}) (calendar.EventPatch, error) {
	patch := calendar.EventPatch{
		Title:       common.OptionalString(args, "summary"),
		Description: common.OptionalString(args, "description"),
		Location:    common.OptionalString(args, "location"),
		AllDay:      common.OptionalBool(args, "allDay"),
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return calendar.EventPatch{}, apperr.Validation(argsOp, "summary", "summary must not be empty")
	}

	allDay := patch.AllDay != nil && *patch.AllDay
	start, end, err := parseTimes(args, allDay, false)
	if err != nil {
		return calendar.EventPatch{}, err
	}
	patch.Start, patch.End = start, end

	if _, ok := args["attendees"]; ok {
		attendees := model.NormalizeAttendees(common.ListArg(args, "attendees"))
		if attendees == nil {
			attendees = []string{}
		}
		patch.Attendees = &attendees
	}
	return patch, nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	calendarID := common.StringArg(args, "calendarId", calendar.DefaultCalendarID)

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return common.ErrorResult("delete event", err), nil
	}

	if err := sc.CalendarClient().DeleteEvent(ctx, calendarID, eventID); err != nil {
		return common.ErrorResult("delete event", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Successfully deleted event %s", eventID)), nil
}
