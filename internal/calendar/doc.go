// Package calendar is the Google Calendar adapter.
//
// It converts between calendar/v3 events and model.Event and runs every API
// call through an executor.Executor, which supplies the credential, quota and
// retries.
//
// Example usage:
//
//	client, err := calendar.NewClient(ctx, exec, google.ClientOptions(executor.NewHTTPClient(nil), "")...)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Events of one day
//	events, err := client.ListEvents(ctx, calendar.DefaultCalendarID, dayStart, dayEnd)
package calendar
