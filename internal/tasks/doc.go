// Package tasks is the Google Tasks adapter.
//
// It converts between tasks/v1 tasks and model.Task and runs every API call
// through an executor.Executor.
//
// Google Tasks stores due values as dates: the time portion of the RFC 3339
// timestamp is always midnight UTC and carries no meaning. Such values are
// marked DueDateOnly so the scheduling engine can anchor them at local
// midnight of the viewer's timezone.
//
// The special list id "@default" addresses the user's default task list.
package tasks
