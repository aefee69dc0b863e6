package common

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

// EventOutput is an event as returned by the tools.
type EventOutput struct {
	model.Event
	DurationMinutes int `json:"duration_minutes"`
}

// NewEventOutput converts an event for output.
func NewEventOutput(ev model.Event) EventOutput {
	return EventOutput{Event: ev, DurationMinutes: int(ev.Duration() / time.Minute)}
}

// NewEventOutputs converts a slice of events. The result is never nil.
func NewEventOutputs(events []model.Event) []EventOutput {
	out := make([]EventOutput, 0, len(events))
	for _, ev := range events {
		out = append(out, NewEventOutput(ev))
	}
	return out
}

// TaskOutput is a task as returned by the tools.
type TaskOutput struct {
	model.Task
	IsOverdue bool `json:"is_overdue"`
}

// NewTaskOutputs converts a slice of tasks, judging overdue against now.
func NewTaskOutputs(tasks []model.Task, now time.Time) []TaskOutput {
	out := make([]TaskOutput, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskOutput{Task: t, IsOverdue: t.IsOverdue(now)})
	}
	return out
}

// IntervalOutput is a free window or busy span with its length.
type IntervalOutput struct {
	model.Interval
	DurationMinutes int `json:"duration_minutes"`
}

// NewIntervalOutputs converts a slice of intervals.
func NewIntervalOutputs(intervals []model.Interval) []IntervalOutput {
	out := make([]IntervalOutput, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, IntervalOutput{Interval: iv, DurationMinutes: int(iv.Duration() / time.Minute)})
	}
	return out
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult reports a failed operation to the caller, tagged with the
// error kind.
func ErrorResult(action string, err error) *mcp.CallToolResult {
	kind := apperr.KindOf(err)
	if kind == apperr.KindPermanentAuth {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s [%s]: %v (run \"dayplanner auth\" to re-authorize)", action, kind, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s [%s]: %v", action, kind, err))
}
