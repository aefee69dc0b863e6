// Package resources provides MCP resources for exposing planner settings.
// Resources are read-only data sources that MCP clients can fetch, such as
// the working-hours schedule and the calendars the account can see.
package resources
