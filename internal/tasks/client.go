package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/executor"
	"github.com/teemow/dayplanner/internal/instrumentation"
	"github.com/teemow/dayplanner/internal/logging"
	"github.com/teemow/dayplanner/internal/model"
)

const pageSize = 100

// Client wraps the Google Tasks service
type Client struct {
	svc    *tasks.Service
	exec   *executor.Executor
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a Tasks client. Authorization is expected to come from
// an executor.NewHTTPClient passed in opts.
func NewClient(ctx context.Context, exec *executor.Executor, opts ...option.ClientOption) (*Client, error) {
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tasks service: %w", err)
	}
	return &Client{
		svc:    svc,
		exec:   exec,
		logger: logging.WithService(slog.Default(), instrumentation.ServiceTasks),
		now:    time.Now,
	}, nil
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logging.WithService(logger, instrumentation.ServiceTasks)
}

func request(op string, write bool) executor.Request {
	return executor.Request{Service: instrumentation.ServiceTasks, Operation: op, Write: write}
}

func listID(id string) string {
	if id == "" {
		return DefaultTaskListID
	}
	return id
}

// ListTaskLists lists all task lists for the authenticated user
func (c *Client) ListTaskLists(ctx context.Context) ([]model.TaskList, error) {
	lists := []model.TaskList{}
	pageToken := ""
	for {
		page, err := executor.Call(ctx, c.exec, request(instrumentation.OperationListAll, false), func(ctx context.Context) (*tasks.TaskLists, error) {
			return c.svc.Tasklists.List().MaxResults(pageSize).PageToken(pageToken).Context(ctx).Do()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list task lists: %w", err)
		}
		for _, tl := range page.Items {
			lists = append(lists, toTaskList(tl))
		}
		if page.NextPageToken == "" {
			return lists, nil
		}
		pageToken = page.NextPageToken
	}
}

// ListTasks lists the tasks of a list. Completed (and therefore hidden)
// tasks are included only when includeCompleted is set. Deleted tasks and
// tasks Google returns in a shape we cannot read are skipped.
func (c *Client) ListTasks(ctx context.Context, taskListID string, includeCompleted bool) ([]model.Task, error) {
	taskListID = listID(taskListID)

	out := []model.Task{}
	pageToken := ""
	for {
		page, err := executor.Call(ctx, c.exec, request(instrumentation.OperationList, false), func(ctx context.Context) (*tasks.Tasks, error) {
			return c.svc.Tasks.List(taskListID).
				ShowCompleted(includeCompleted).
				ShowHidden(includeCompleted).
				MaxResults(pageSize).
				PageToken(pageToken).
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks of %s: %w", taskListID, err)
		}

		for _, item := range page.Items {
			if item == nil || item.Deleted {
				continue
			}
			t, err := FromExternal(taskListID, item)
			if err != nil {
				c.logger.Warn("skipping unreadable task", slog.String("task_id", item.Id), logging.Err(err))
				continue
			}
			out = append(out, t)
		}

		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetTask retrieves a specific task by ID
func (c *Client) GetTask(ctx context.Context, taskListID, taskID string) (model.Task, error) {
	taskListID = listID(taskListID)
	t, err := executor.Call(ctx, c.exec, request(instrumentation.OperationGet, false), func(ctx context.Context) (*tasks.Task, error) {
		return c.svc.Tasks.Get(taskListID, taskID).Context(ctx).Do()
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return FromExternal(taskListID, t)
}

// CreateTask creates a new task. Google assigns the id.
func (c *Client) CreateTask(ctx context.Context, taskListID string, task model.Task) (model.Task, error) {
	taskListID = listID(taskListID)
	if task.Title == "" {
		return model.Task{}, apperr.Validation("tasks.create_task", "title", "title is required")
	}
	task.ID = ""
	body, err := ToExternal(task)
	if err != nil {
		return model.Task{}, err
	}

	created, err := executor.Call(ctx, c.exec, request(instrumentation.OperationCreate, true), func(ctx context.Context) (*tasks.Task, error) {
		call := c.svc.Tasks.Insert(taskListID, body)
		if task.Parent != "" {
			call = call.Parent(task.Parent)
		}
		return call.Context(ctx).Do()
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return FromExternal(taskListID, created)
}

// UpdateTask changes the fields set in patch and leaves the rest untouched.
func (c *Client) UpdateTask(ctx context.Context, taskListID, taskID string, patch TaskPatch) (model.Task, error) {
	taskListID = listID(taskListID)
	if taskID == "" {
		return model.Task{}, apperr.Validation("tasks.update_task", "task_id", "task id is required")
	}
	body, err := toPatch(patch)
	if err != nil {
		return model.Task{}, err
	}
	return c.patch(ctx, taskListID, taskID, body, instrumentation.OperationUpdate)
}

// CompleteTask marks a task as completed
func (c *Client) CompleteTask(ctx context.Context, taskListID, taskID string) (model.Task, error) {
	taskListID = listID(taskListID)
	if taskID == "" {
		return model.Task{}, apperr.Validation("tasks.complete_task", "task_id", "task id is required")
	}
	completed := c.now().UTC().Format(time.RFC3339)
	body := &tasks.Task{Status: StatusCompleted, Completed: &completed}
	return c.patch(ctx, taskListID, taskID, body, instrumentation.OperationComplete)
}

func (c *Client) patch(ctx context.Context, taskListID, taskID string, body *tasks.Task, op string) (model.Task, error) {
	updated, err := executor.Call(ctx, c.exec, request(op, true), func(ctx context.Context) (*tasks.Task, error) {
		return c.svc.Tasks.Patch(taskListID, taskID, body).Context(ctx).Do()
	})
	if err != nil {
		return model.Task{}, fmt.Errorf("failed to %s task: %w", op, err)
	}
	return FromExternal(taskListID, updated)
}

// DeleteTask deletes a task
func (c *Client) DeleteTask(ctx context.Context, taskListID, taskID string) error {
	taskListID = listID(taskListID)
	if taskID == "" {
		return apperr.Validation("tasks.delete_task", "task_id", "task id is required")
	}
	err := c.exec.Execute(ctx, executor.Request{
		Service:   instrumentation.ServiceTasks,
		Operation: instrumentation.OperationDelete,
		Write:     true,
		Do: func(ctx context.Context) error {
			return c.svc.Tasks.Delete(taskListID, taskID).Context(ctx).Do()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
