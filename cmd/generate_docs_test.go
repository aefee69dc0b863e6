package cmd

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestGetCategoryFromToolName(t *testing.T) {
	tests := map[string]string{
		"day_get_overview":        "Day Planning Tools",
		"calendar_find_free_time": "Google Calendar Tools",
		"tasks_complete_task":     "Google Tasks Tools",
		"google_save_auth_code":   "Google Authorization Tools",
		"unknown":                 "Other",
	}
	for name, want := range tests {
		if got := getCategoryFromToolName(name); got != want {
			t.Errorf("getCategoryFromToolName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestGenerateToolsMarkdown(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("tasks_list_tasks",
			mcp.WithDescription("List tasks in a task list"),
			mcp.WithString("taskListId", mcp.Description("The ID of the task list")),
		),
		mcp.NewTool("day_get_overview",
			mcp.WithDescription("Get the overview of a day"),
			mcp.WithString("date", mcp.Required(), mcp.Description("The date")),
		),
	}

	md := generateToolsMarkdown(tools)

	for _, want := range []string{
		"# MCP Tools Reference",
		"- [Day Planning Tools](#day-planning-tools)",
		"### day_get_overview",
		"- `date` (required): The date",
		"- `taskListId` (optional): The ID of the task list",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown is missing %q:\n%s", want, md)
		}
	}
	if strings.Index(md, "## Day Planning Tools") > strings.Index(md, "## Google Tasks Tools") {
		t.Error("categories are not sorted")
	}
}

func TestNewDocsServerContext(t *testing.T) {
	sc, err := newDocsServerContext(t.Context())
	if err != nil {
		t.Fatalf("newDocsServerContext() error = %v", err)
	}
	defer func() { _ = sc.Shutdown() }()

	if sc.Aggregator() == nil || sc.CalendarClient() == nil {
		t.Error("expected wired clients")
	}
}
