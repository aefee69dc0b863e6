// Package server holds what the MCP tool handlers share at runtime.
//
// ServerContext carries the credential manager, the request executor, the
// Calendar and Tasks adapters and the day aggregator, all built once by the
// serve command. MetricsServer exposes Prometheus metrics on a dedicated
// listener, and HealthChecker adds liveness and readiness probes to it;
// readiness fails while no credential is stored.
package server
