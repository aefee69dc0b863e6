// Package tasks_tools provides MCP tools for managing Google Tasks.
//
// # Available Tools
//
// Read tools:
//   - tasks_list_task_lists: List all task lists
//   - tasks_list_tasks: List tasks in a task list
//
// Write tools (registered only with write access):
//   - tasks_create_task: Create a new task
//   - tasks_update_task: Update a task
//   - tasks_complete_task: Mark a task as completed
//   - tasks_delete_task: Delete a task
//
// Due values are either a plain date (YYYY-MM-DD) or an RFC 3339 timestamp
// with an offset. Every returned task carries an is_overdue flag.
package tasks_tools
