// Package logging provides structured logging utilities for dayplanner.
//
// All packages log through log/slog. This package keeps attribute names
// consistent across the credential manager, the request executor, the
// aggregator and the tool layer, and builds the process-wide handler.
//
// # Usage Patterns
//
// Create a logger scoped to an operation:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.list_events")
//	logger.Info("listing events",
//	    logging.Attempt(1),
//	    logging.RequestID(id))
//
// # Security Considerations
//
//   - Access and refresh tokens are never logged; SanitizeToken reports only
//     their length.
//   - Attendee addresses are hashed with AnonymizeEmail before logging.
package logging
