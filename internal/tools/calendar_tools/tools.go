package calendar_tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayplanner/internal/calendar"
	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tools/common"
)

// RegisterCalendarTools registers all Calendar-related tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEventTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}

	if err := RegisterCalendarListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register calendar list tools: %w", err)
	}

	if err := RegisterSchedulingTools(s, sc); err != nil {
		return fmt.Errorf("failed to register scheduling tools: %w", err)
	}

	return nil
}

// calendarIDs returns the calendarIds argument, or the configured calendars.
func calendarIDs(args map[string]interface{}, sc *server.ServerContext) []string {
	if ids := common.ListArg(args, "calendarIds"); len(ids) > 0 {
		return ids
	}
	if ids := sc.Schedule().Calendars; len(ids) > 0 {
		return ids
	}
	return []string{calendar.DefaultCalendarID}
}

// listAcross lists events from several calendars. An event shared between
// calendars is returned once.
func listAcross(ctx context.Context, client *calendar.Client, ids []string, from, to time.Time) ([]model.Event, error) {
	type key struct {
		id    string
		start int64
	}
	seen := map[key]bool{}
	var out []model.Event
	for _, id := range ids {
		events, err := client.ListEvents(ctx, id, from, to)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", id, err)
		}
		for _, ev := range events {
			k := key{ev.ID, ev.Start.UnixNano()}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
