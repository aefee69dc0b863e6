// Package ics reads iCalendar subscriptions as extra, read-only event
// sources.
//
// A Fetcher downloads a feed with conditional requests and keeps the last
// body in memory, Parse turns the VEVENTs into ParsedEvent values, and
// Expand produces model.Event occurrences inside a time window, applying
// RRULE, EXDATE and RECURRENCE-ID overrides.
//
// Example usage:
//
//	fetcher := ics.NewFetcher(nil)
//	events, err := fetcher.Events(ctx, ics.Source{ID: "holidays", URL: url}, start, end)
package ics
