// Package aggregator composes the day overview.
//
// GetDayOverview fetches every calendar, ICS subscription and task list in
// parallel, joins the results in a fixed order and hands them to
// schedule.BuildDayView. A source that fails is flagged in the view instead
// of failing the call; the call itself fails only when every source failed,
// when credentials are revoked, or when the caller cancels.
package aggregator
