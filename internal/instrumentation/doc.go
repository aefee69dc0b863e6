// Package instrumentation provides OpenTelemetry metrics and tracing for
// dayplanner.
//
// # Metrics
//
// Provider access:
//   - provider_requests_total: attempts against Google APIs and ICS feeds by service, operation, status
//   - provider_request_duration_seconds: attempt latency
//   - provider_retries_total: retries by service and reason (throttled, network, auth)
//   - quota_wait_seconds: time spent waiting for the client-side request window
//
// Credentials:
//   - credential_refresh_total: refreshes by result (success, transient, permanent)
//
// Aggregation:
//   - day_overview_total: day overviews by outcome (complete, partial, failed)
//   - aggregation_source_failures_total: failed sources by source type and error kind
//
// Tools:
//   - tool_invocations_total and tool_duration_seconds by tool and status
//
// # Tracing
//
// Spans are named google.<service>.<operation>, credential.refresh,
// aggregator.day_overview and tool.<name>.
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
// TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG and
// OTEL_SERVICE_NAME. A disabled provider hands out a Metrics value whose
// methods do nothing, so callers never need to check.
package instrumentation
