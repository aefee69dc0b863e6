package google

import (
	calendar "google.golang.org/api/calendar/v3"
	tasks "google.golang.org/api/tasks/v1"
)

// DefaultOAuthScopes are the scopes requested during consent. Both services
// are read-write; write tools are gated separately at registration time.
var DefaultOAuthScopes = []string{
	calendar.CalendarScope,
	tasks.TasksScope,
}
