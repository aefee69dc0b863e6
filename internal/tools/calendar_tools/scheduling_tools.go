package calendar_tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/schedule"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tools/common"
)

// conflictOutput is a conflict with the titles of both events.
type conflictOutput struct {
	model.Conflict
	TitleA         string `json:"event_a_title"`
	TitleB         string `json:"event_b_title"`
	OverlapMinutes int    `json:"overlap_minutes"`
}

// RegisterSchedulingTools registers scheduling and availability tools with the MCP server
func RegisterSchedulingTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	findConflictsTool := mcp.NewTool("calendar_find_conflicts",
		mcp.WithDescription("Find overlapping timed events across calendars in a time range"),
		mcp.WithString("timeMin",
			mcp.Required(),
			mcp.Description("Start time for the range (RFC3339 format, e.g., '2025-01-01T00:00:00Z')"),
		),
		mcp.WithString("timeMax",
			mcp.Required(),
			mcp.Description("End time for the range (RFC3339 format, e.g., '2025-01-07T00:00:00Z')"),
		),
		mcp.WithString("calendarIds",
			mcp.Description("Comma-separated calendar IDs to check (default: configured calendars)"),
		),
	)

	s.AddTool(findConflictsTool, common.InstrumentedToolHandler("calendar_find_conflicts", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindConflicts(ctx, request, sc)
		}))

	findFreeTimeTool := mcp.NewTool("calendar_find_free_time",
		mcp.WithDescription("Find free time windows within working hours on a given day"),
		mcp.WithString("date",
			mcp.Description("Date in YYYY-MM-DD format, or 'today'/'tomorrow' (default: today)"),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone for the day (default: configured timezone)"),
		),
		mcp.WithString("calendarIds",
			mcp.Description("Comma-separated calendar IDs to consider busy (default: configured calendars)"),
		),
		mcp.WithNumber("minDurationMinutes",
			mcp.Description("Shortest free window to report, in minutes (default: configured minimum)"),
		),
		mcp.WithString("workStart",
			mcp.Description("Start of working hours as HH:MM (default: configured work start)"),
		),
		mcp.WithString("workEnd",
			mcp.Description("End of working hours as HH:MM (default: configured work end)"),
		),
	)

	s.AddTool(findFreeTimeTool, common.InstrumentedToolHandler("calendar_find_free_time", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFindFreeTime(ctx, request, sc, time.Now())
		}))

	return nil
}

func handleFindConflicts(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	timeMin, err := model.ParseInstant("timeMin", common.StringArg(args, "timeMin", ""))
	if err != nil {
		return common.ErrorResult("find conflicts", err), nil
	}
	timeMax, err := model.ParseInstant("timeMax", common.StringArg(args, "timeMax", ""))
	if err != nil {
		return common.ErrorResult("find conflicts", err), nil
	}
	if !timeMin.Before(timeMax) {
		return common.ErrorResult("find conflicts", apperr.Validation(argsOp, "timeMax", "timeMax must be after timeMin")), nil
	}

	events, err := listAcross(ctx, sc.CalendarClient(), calendarIDs(args, sc), timeMin, timeMax)
	if err != nil {
		return common.ErrorResult("find conflicts", err), nil
	}

	titles := make(map[string]string, len(events))
	for _, ev := range events {
		titles[ev.ID] = ev.Title
	}

	conflicts := []conflictOutput{}
	for _, c := range schedule.ComputeConflicts(events) {
		conflicts = append(conflicts, conflictOutput{
			Conflict:       c,
			TitleA:         titles[c.EventA],
			TitleB:         titles[c.EventB],
			OverlapMinutes: int(c.Overlap.Duration() / time.Minute),
		})
	}

	return common.JSONResult(map[string]interface{}{
		"count":     len(conflicts),
		"conflicts": conflicts,
	})
}

func handleFindFreeTime(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, now time.Time) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	loc, err := common.Location(args, "timezone", sc.Location())
	if err != nil {
		return common.ErrorResult("find free time", err), nil
	}
	date, err := common.DateOrToday(args, "date", loc, now)
	if err != nil {
		return common.ErrorResult("find free time", err), nil
	}
	workStart, workEnd, err := workingHours(args, sc.Schedule().WorkStart, sc.Schedule().WorkEnd)
	if err != nil {
		return common.ErrorResult("find free time", err), nil
	}

	minDuration := sc.Schedule().MinFreeWindow
	if m := common.NumberArg(args, "minDurationMinutes", -1); m >= 0 {
		minDuration = time.Duration(m) * time.Minute
	}

	dayStart, _, err := schedule.DayBounds(date, loc)
	if err != nil {
		return common.ErrorResult("find free time", err), nil
	}
	window := schedule.WorkingWindow(dayStart, loc, workStart, workEnd)

	events, err := listAcross(ctx, sc.CalendarClient(), calendarIDs(args, sc), window.Start, window.End)
	if err != nil {
		return common.ErrorResult("find free time", err), nil
	}

	free := schedule.ComputeFreeWindows(events, window.Start, window.End, minDuration)
	busy := schedule.BusyIntervals(events, window.Start, window.End)

	var freeMinutes int
	for _, f := range free {
		freeMinutes += int(f.Duration() / time.Minute)
	}

	return common.JSONResult(map[string]interface{}{
		"date":          date,
		"timezone":      loc.String(),
		"working_hours": window,
		"free_windows":  common.NewIntervalOutputs(free),
		"busy":          common.NewIntervalOutputs(busy),
		"free_minutes":  freeMinutes,
	})
}

// workingHours reads workStart and workEnd, falling back to the defaults.
func workingHours(args map[string]interface{}, defStart, defEnd schedule.ClockTime) (schedule.ClockTime, schedule.ClockTime, error) {
	parse := func(field string, def schedule.ClockTime) (schedule.ClockTime, error) {
		raw := common.StringArg(args, field, "")
		if raw == "" {
			return def, nil
		}
		c, err := schedule.ParseClock(raw)
		if err != nil {
			return schedule.ClockTime{}, apperr.Validation(argsOp, field, "%s %q must be HH:MM", field, raw)
		}
		return c, nil
	}

	start, err := parse("workStart", defStart)
	if err != nil {
		return start, start, err
	}
	end, err := parse("workEnd", defEnd)
	if err != nil {
		return start, end, err
	}
	if !start.Before(end) {
		return start, end, apperr.Validation(argsOp, "workEnd", "working hours end %s must be after start %s", end, start)
	}
	return start, end, nil
}
