// Package day_tools provides the MCP tool that composes a single day from
// all configured calendars, ICS subscriptions and task lists.
//
// The overview lists timed and all-day events, conflicts between timed
// events, free windows inside working hours, due, overdue and unscheduled
// tasks, and a merged agenda. When some sources fail the result is still
// returned with "partial": true and the failed sources named.
package day_tools
