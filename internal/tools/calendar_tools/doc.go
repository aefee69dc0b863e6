// Package calendar_tools provides MCP (Model Context Protocol) tools for Google Calendar operations.
//
// Read tools list events and calendars and answer scheduling questions
// (conflicts and free time within working hours). Write tools create,
// update and delete events; they are only registered when the server runs
// with write access.
//
// Timestamps are RFC 3339 with an explicit offset. All-day events take
// plain dates (YYYY-MM-DD) and an exclusive end date.
package calendar_tools
