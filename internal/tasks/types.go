package tasks

import (
	"time"

	tasks "google.golang.org/api/tasks/v1"

	"github.com/teemow/dayplanner/internal/apperr"
	"github.com/teemow/dayplanner/internal/model"
)

// DefaultTaskListID addresses the user's default list.
const DefaultTaskListID = "@default"

// Task status values used by the API.
const (
	StatusNeedsAction = "needsAction"
	StatusCompleted   = "completed"
)

// TaskPatch lists the fields to change on an existing task. Nil fields are
// left untouched; ClearDue removes the due date.
type TaskPatch struct {
	Title       *string
	Notes       *string
	Due         *time.Time
	DueDateOnly bool
	ClearDue    bool
}

// ToExternal converts a task to its tasks/v1 form.
func ToExternal(t model.Task) (*tasks.Task, error) {
	out := &tasks.Task{
		Id:     t.ID,
		Title:  t.Title,
		Notes:  t.Notes,
		Parent: t.Parent,
		Status: StatusNeedsAction,
	}
	if t.Due != nil {
		if t.Due.IsZero() {
			return nil, apperr.Validation("tasks.to_external", "due", "due must not be the zero time")
		}
		out.Due = formatDue(*t.Due, t.DueDateOnly)
	}
	if t.Completed {
		out.Status = StatusCompleted
		if t.CompletedAt != nil {
			c := t.CompletedAt.UTC().Format(time.RFC3339)
			out.Completed = &c
		}
	}
	return out, nil
}

// FromExternal converts a tasks/v1 task. Timestamps without an offset are
// rejected with a validation error naming the field.
func FromExternal(listID string, t *tasks.Task) (model.Task, error) {
	if t == nil {
		return model.Task{}, apperr.Validation("tasks.from_external", "task", "task is nil")
	}

	out := model.Task{
		ID:        t.Id,
		ListID:    listID,
		Title:     t.Title,
		Notes:     t.Notes,
		Parent:    t.Parent,
		Position:  t.Position,
		Completed: t.Status == StatusCompleted,
	}

	if t.Due != "" {
		due, err := model.ParseInstant("due", t.Due)
		if err != nil {
			return model.Task{}, err
		}
		due = due.UTC()
		out.Due = &due
		out.DueDateOnly = isMidnightUTC(due)
	}

	if t.Completed != nil && *t.Completed != "" {
		completed, err := model.ParseInstant("completed", *t.Completed)
		if err != nil {
			return model.Task{}, err
		}
		out.CompletedAt = &completed
	}

	return out, nil
}

// SourceID names a task list as an aggregation source.
func SourceID(listID string) string {
	return "tasks:" + listID
}

func formatDue(due time.Time, dateOnly bool) string {
	if dateOnly {
		d := due.UTC()
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	return due.Format(time.RFC3339)
}

func isMidnightUTC(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

func toPatch(p TaskPatch) (*tasks.Task, error) {
	out := &tasks.Task{}
	if p.Title != nil {
		if *p.Title == "" {
			return nil, apperr.Validation("tasks.patch", "title", "title must not be empty")
		}
		out.Title = *p.Title
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
		out.ForceSendFields = append(out.ForceSendFields, "Notes")
	}
	switch {
	case p.ClearDue:
		out.NullFields = append(out.NullFields, "Due")
	case p.Due != nil:
		out.Due = formatDue(*p.Due, p.DueDateOnly)
	}
	return out, nil
}

// toTaskList converts a Google Tasks TaskList to our TaskList type
func toTaskList(tl *tasks.TaskList) model.TaskList {
	if tl == nil {
		return model.TaskList{}
	}

	result := model.TaskList{
		ID:    tl.Id,
		Title: tl.Title,
	}

	if tl.Updated != "" {
		if t, err := time.Parse(time.RFC3339, tl.Updated); err == nil {
			result.Updated = t
		}
	}

	return result
}
