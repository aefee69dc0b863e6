package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayplanner/internal/server"
)

const (
	ScheduleURI  = "dayplanner://schedule"
	CalendarsURI = "dayplanner://calendars"
)

// feedInfo omits the feed URL, which often embeds a private token.
type feedInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type scheduleInfo struct {
	Timezone             string     `json:"timezone"`
	WorkStart            string     `json:"work_start"`
	WorkEnd              string     `json:"work_end"`
	MinFreeWindowMinutes int        `json:"min_free_window_minutes"`
	Calendars            []string   `json:"calendars"`
	TaskLists            []string   `json:"task_lists"`
	Feeds                []feedInfo `json:"feeds"`
}

// RegisterResources registers the planner resources
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	scheduleResource := mcp.NewResource(
		ScheduleURI,
		"Planning Schedule",
		mcp.WithResourceDescription("Working hours, timezone and the calendars, task lists and feeds that make up a day overview"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(scheduleResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSchedule(ctx, request, sc)
	})

	calendarsResource := mcp.NewResource(
		CalendarsURI,
		"Calendars",
		mcp.WithResourceDescription("Calendars visible to the authorized Google account"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(calendarsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleCalendars(ctx, request, sc)
	})

	return nil
}

func handleSchedule(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	cfg := sc.Schedule()

	info := scheduleInfo{
		Timezone:             cfg.Timezone,
		WorkStart:            cfg.WorkStart.String(),
		WorkEnd:              cfg.WorkEnd.String(),
		MinFreeWindowMinutes: int(cfg.MinFreeWindow.Minutes()),
		Calendars:            nonNil(cfg.Calendars),
		TaskLists:            nonNil(cfg.TaskLists),
		Feeds:                make([]feedInfo, 0, len(cfg.Feeds)),
	}
	for _, f := range cfg.Feeds {
		info.Feeds = append(info.Feeds, feedInfo{ID: f.ID, Name: f.Name})
	}

	return jsonContents(request.Params.URI, info)
}

func handleCalendars(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	calendars, err := sc.CalendarClient().ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	return jsonContents(request.Params.URI, map[string]interface{}{
		"account":   sc.Credentials().Account(),
		"count":     len(calendars),
		"calendars": calendars,
	})
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
