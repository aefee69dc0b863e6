// Package executor runs provider requests under a shared quota with
// credential injection and retry.
//
// Every attempt reserves a slot in a fixed-window quota before it is
// dispatched. The access token travels in the attempt's context and is set
// as a bearer header by Transport, so provider clients built on
// NewHTTPClient never see the credential.
//
// Retries are a small state machine: one forced credential refresh on 401,
// exponential backoff with jitter for throttling, a separate budget for
// network failures, and at most one retry for writes, and only when the
// provider cannot have applied the request.
package executor
