package day_tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tools/common"
)

const toolDayOverview = "day_get_overview"

// dayOutput is a DayView with per-event durations and per-task overdue
// flags.
type dayOutput struct {
	model.DayView
	Events           []common.EventOutput    `json:"events"`
	AllDayEvents     []common.EventOutput    `json:"all_day_events"`
	FreeWindows      []common.IntervalOutput `json:"free_windows"`
	DueTasks         []common.TaskOutput     `json:"due_tasks"`
	OverdueTasks     []common.TaskOutput     `json:"overdue_tasks"`
	UnscheduledTasks []common.TaskOutput     `json:"unscheduled_tasks"`
}

func newDayOutput(v model.DayView, now time.Time) dayOutput {
	return dayOutput{
		DayView:          v,
		Events:           common.NewEventOutputs(v.Events),
		AllDayEvents:     common.NewEventOutputs(v.AllDayEvents),
		FreeWindows:      common.NewIntervalOutputs(v.FreeWindows),
		DueTasks:         common.NewTaskOutputs(v.DueTasks, now),
		OverdueTasks:     common.NewTaskOutputs(v.OverdueTasks, now),
		UnscheduledTasks: common.NewTaskOutputs(v.UnscheduledTasks, now),
	}
}

// RegisterDayTools registers the day overview tool. It only reads, so it is
// available in read-only mode.
func RegisterDayTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	overviewTool := mcp.NewTool(toolDayOverview,
		mcp.WithDescription("Get a complete overview of one day: events, conflicts, free time within working hours, and due, overdue and unscheduled tasks"),
		mcp.WithString("date",
			mcp.Description("Date in YYYY-MM-DD format, or 'today'/'tomorrow' (default: today)"),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone for the day, e.g. 'Europe/Berlin' (default: configured timezone)"),
		),
		mcp.WithString("taskListIds",
			mcp.Description("Comma-separated task list IDs (default: configured task lists)"),
		),
	)

	s.AddTool(overviewTool, common.InstrumentedToolHandler(toolDayOverview, true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDayOverview(ctx, request, sc, time.Now())
		}))

	return nil
}

func handleDayOverview(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, now time.Time) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	loc, err := common.Location(args, "timezone", sc.Location())
	if err != nil {
		return common.ErrorResult("get day overview", err), nil
	}
	date, err := common.DateOrToday(args, "date", loc, now)
	if err != nil {
		return common.ErrorResult("get day overview", err), nil
	}

	view, err := sc.Aggregator().GetDayOverview(ctx, date, loc.String(), common.ListArg(args, "taskListIds"))
	if err != nil {
		return common.ErrorResult("get day overview", err), nil
	}

	return common.JSONResult(newDayOutput(view, now.In(loc)))
}
