package tasks_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
	"github.com/teemow/dayplanner/internal/server"
	"github.com/teemow/dayplanner/internal/tasks"
	"github.com/teemow/dayplanner/internal/tools/batch"
	"github.com/teemow/dayplanner/internal/tools/common"
)

const argsOp = "tasks_tools.args"

// RegisterTasksTools registers all Tasks-related tools with the MCP server
func RegisterTasksTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := registerTaskListTools(s, sc); err != nil {
		return fmt.Errorf("failed to register task list tools: %w", err)
	}

	// Register task tools (some operations require !readOnly)
	if err := registerTaskTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register task tools: %w", err)
	}

	return nil
}

// registerTaskListTools registers task list tools
func registerTaskListTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listTaskListsTool := mcp.NewTool("tasks_list_task_lists",
		mcp.WithDescription("List all task lists for the authenticated user"),
	)

	s.AddTool(listTaskListsTool, common.InstrumentedToolHandler("tasks_list_task_lists", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			lists, err := sc.TasksClient().ListTaskLists(ctx)
			if err != nil {
				return common.ErrorResult("list task lists", err), nil
			}
			return common.JSONResult(map[string]interface{}{
				"count":      len(lists),
				"task_lists": lists,
			})
		}))

	return nil
}

// registerTaskTools registers task tools
func registerTaskTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTasksTool := mcp.NewTool("tasks_list_tasks",
		mcp.WithDescription("List tasks in a task list"),
		mcp.WithString("taskListId",
			mcp.Description("The ID of the task list (default: '@default')"),
		),
		mcp.WithBoolean("showCompleted",
			mcp.Description("Include completed tasks (default: false)"),
		),
	)

	s.AddTool(listTasksTool, common.InstrumentedToolHandler("tasks_list_tasks", true, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListTasks(ctx, request, sc, time.Now())
		}))

	if readOnly {
		return nil
	}

	createTaskTool := mcp.NewTool("tasks_create_task",
		mcp.WithDescription("Create a new task in a task list"),
		mcp.WithString("taskListId",
			mcp.Description("The ID of the task list (default: '@default')"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Task title"),
		),
		mcp.WithString("notes",
			mcp.Description("Task notes"),
		),
		mcp.WithString("due",
			mcp.Description("Due date (YYYY-MM-DD) or due time (RFC3339 format)"),
		),
	)

	s.AddTool(createTaskTool, common.InstrumentedToolHandler("tasks_create_task", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateTask(ctx, request, sc, time.Now())
		}))

	updateTaskTool := mcp.NewTool("tasks_update_task",
		mcp.WithDescription("Update a task. Only the given fields change."),
		mcp.WithString("taskListId",
			mcp.Description("The ID of the task list (default: '@default')"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to update"),
		),
		mcp.WithString("title",
			mcp.Description("New task title"),
		),
		mcp.WithString("notes",
			mcp.Description("New task notes"),
		),
		mcp.WithString("due",
			mcp.Description("New due date (YYYY-MM-DD) or due time (RFC3339 format)"),
		),
		mcp.WithBoolean("clearDue",
			mcp.Description("Remove the due date"),
		),
	)

	s.AddTool(updateTaskTool, common.InstrumentedToolHandler("tasks_update_task", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateTask(ctx, request, sc, time.Now())
		}))

	completeTaskTool := mcp.NewTool("tasks_complete_task",
		mcp.WithDescription("Mark a task as completed"),
		mcp.WithString("taskListId",
			mcp.Description("The ID of the task list (default: '@default')"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to complete, or an array of IDs"),
		),
	)

	s.AddTool(completeTaskTool, common.InstrumentedToolHandler("tasks_complete_task", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCompleteTask(ctx, request, sc, time.Now())
		}))

	deleteTaskTool := mcp.NewTool("tasks_delete_task",
		mcp.WithDescription("Delete a task"),
		mcp.WithString("taskListId",
			mcp.Description("The ID of the task list (default: '@default')"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to delete"),
		),
	)

	s.AddTool(deleteTaskTool, common.InstrumentedToolHandler("tasks_delete_task", false, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteTask(ctx, request, sc)
		}))

	return nil
}

func handleListTasks(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, now time.Time) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	taskListID := common.StringArg(args, "taskListId", tasks.DefaultTaskListID)

	list, err := sc.TasksClient().ListTasks(ctx, taskListID, common.BoolArg(args, "showCompleted", false))
	if err != nil {
		return common.ErrorResult("list tasks", err), nil
	}

	return common.JSONResult(map[string]interface{}{
		"task_list_id": taskListID,
		"count":        len(list),
		"tasks":        common.NewTaskOutputs(list, now.In(sc.Location())),
	})
}

func handleCreateTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, now time.Time) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	taskListID := common.StringArg(args, "taskListId", tasks.DefaultTaskListID)

	task, err := taskFromArgs(args)
	if err != nil {
		return common.ErrorResult("create task", err), nil
	}

	created, err := sc.TasksClient().CreateTask(ctx, taskListID, task)
	if err != nil {
		return common.ErrorResult("create task", err), nil
	}
	return taskResult(created, now.In(sc.Location()))
}

// taskFromArgs builds a new task from the create arguments.
func taskFromArgs(args map[string]interface{}) (model.Task, error) {
	title, err := common.RequiredString(args, "title")
	if err != nil {
		return model.Task{}, err
	}
	task := model.Task{
		Title: title,
		Notes: common.StringArg(args, "notes", ""),
	}
	if raw := common.StringArg(args, "due", ""); raw != "" {
		due, dateOnly, err := common.DueArg("due", raw)
		if err != nil {
			return model.Task{}, err
		}
		task.Due = &due
		task.DueDateOnly = dateOnly
	}
	return task, nil
}

func handleUpdateTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, now time.Time) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	taskListID := common.StringArg(args, "taskListId", tasks.DefaultTaskListID)

	taskID, err := common.RequiredString(args, "taskId")
	if err != nil {
		return common.ErrorResult("update task", err), nil
	}
	patch, err := patchFromArgs(args)
	if err != nil {
		return common.ErrorResult("update task", err), nil
	}

	updated, err := sc.TasksClient().UpdateTask(ctx, taskListID, taskID, patch)
	if err != nil {
		return common.ErrorResult("update task", err), nil
	}
	return taskResult(updated, now.In(sc.Location()))
}

// patchFromArgs builds a sparse patch from the update arguments.
func patchFromArgs(args map[string]interface{}) (tasks.TaskPatch, error) {
	patch := tasks.TaskPatch{
		Title:    common.OptionalString(args, "title"),
		Notes:    common.OptionalString(args, "notes"),
		ClearDue: common.BoolArg(args, "clearDue", false),
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return tasks.TaskPatch{}, apperr.Validation(argsOp, "title", "title must not be empty")
	}

	raw := common.StringArg(args, "due", "")
	if raw != "" && patch.ClearDue {
		return tasks.TaskPatch{}, apperr.Validation(argsOp, "due", "due and clearDue are mutually exclusive")
	}
	if raw != "" {
		due, dateOnly, err := common.DueArg("due", raw)
		if err != nil {
			return tasks.TaskPatch{}, err
		}
		patch.Due = &due
		patch.DueDateOnly = dateOnly
	}
	return patch, nil
}

func handleCompleteTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, now time.Time) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	taskListID := common.StringArg(args, "taskListId", tasks.DefaultTaskListID)

	// taskId can be a single id or an array of ids
	taskIDs, err := batch.ParseStringOrArray(args["taskId"], "taskId")
	if err != nil {
		return common.ErrorResult("complete task", err), nil
	}

	client := sc.TasksClient()
	if len(taskIDs) == 1 {
		completed, err := client.CompleteTask(ctx, taskListID, taskIDs[0])
		if err != nil {
			return common.ErrorResult("complete task", err), nil
		}
		return taskResult(completed, now.In(sc.Location()))
	}

	results := batch.ProcessBatch(ctx, taskIDs, func(ctx context.Context, taskID string) (interface{}, error) {
		completed, err := client.CompleteTask(ctx, taskListID, taskID)
		if err != nil {
			return nil, err
		}
		return common.NewTaskOutputs([]model.Task{completed}, now.In(sc.Location()))[0], nil
	})
	return common.JSONResult(batch.Summarize(results))
}

func handleDeleteTask(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	taskListID := common.StringArg(args, "taskListId", tasks.DefaultTaskListID)

	taskID, err := common.RequiredString(args, "taskId")
	if err != nil {
		return common.ErrorResult("delete task", err), nil
	}

	if err := sc.TasksClient().DeleteTask(ctx, taskListID, taskID); err != nil {
		return common.ErrorResult("delete task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Successfully deleted task %s", taskID)), nil
}

func taskResult(t model.Task, now time.Time) (*mcp.CallToolResult, error) {
	return common.JSONResult(common.NewTaskOutputs([]model.Task{t}, now)[0])
}
