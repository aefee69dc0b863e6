package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrStatus     = "status"
	attrOperation  = "operation"
	attrService    = "service"
	attrResult     = "result"
	attrReason     = "reason"
	attrTool       = "tool"
	attrSourceType = "source_type"
	attrSource     = "source"
	attrKind       = "kind"
	attrOutcome    = "outcome"
)

// Metrics records dayplanner metrics. A nil *Metrics or a zero Metrics
// records nothing.
type Metrics struct {
	providerRequestsTotal   metric.Int64Counter
	providerRequestDuration metric.Float64Histogram
	providerRetriesTotal    metric.Int64Counter
	quotaWait               metric.Float64Histogram

	credentialRefreshTotal metric.Int64Counter

	dayOverviewTotal         metric.Int64Counter
	dayOverviewDuration      metric.Float64Histogram
	aggregationFailuresTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error
	latencyBuckets := metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)

	m.providerRequestsTotal, err = meter.Int64Counter(
		"provider_requests_total",
		metric.WithDescription("Total number of provider request attempts"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_requests_total counter: %w", err)
	}

	m.providerRequestDuration, err = meter.Float64Histogram(
		"provider_request_duration_seconds",
		metric.WithDescription("Provider request attempt duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_request_duration_seconds histogram: %w", err)
	}

	m.providerRetriesTotal, err = meter.Int64Counter(
		"provider_retries_total",
		metric.WithDescription("Total number of provider request retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_retries_total counter: %w", err)
	}

	m.quotaWait, err = meter.Float64Histogram(
		"quota_wait_seconds",
		metric.WithDescription("Time spent waiting for the client-side request window"),
		metric.WithUnit("s"),
		latencyBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quota_wait_seconds histogram: %w", err)
	}

	m.credentialRefreshTotal, err = meter.Int64Counter(
		"credential_refresh_total",
		metric.WithDescription("Total number of credential refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_refresh_total counter: %w", err)
	}

	m.dayOverviewTotal, err = meter.Int64Counter(
		"day_overview_total",
		metric.WithDescription("Total number of day overviews composed"),
		metric.WithUnit("{overview}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create day_overview_total counter: %w", err)
	}

	m.dayOverviewDuration, err = meter.Float64Histogram(
		"day_overview_duration_seconds",
		metric.WithDescription("Day overview aggregation duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create day_overview_duration_seconds histogram: %w", err)
	}

	m.aggregationFailuresTotal, err = meter.Int64Counter(
		"aggregation_source_failures_total",
		metric.WithDescription("Total number of sources that failed during aggregation"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation_source_failures_total counter: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"tool_invocations_total",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"tool_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordProviderRequest records one attempt against a provider.
//
// Parameters:
//   - service: calendar, tasks, ics or oauth
//   - operation: list, get, create, update, delete, complete, fetch, refresh
//   - status: an HTTP status code as text, or an error kind for transport failures
func (m *Metrics) RecordProviderRequest(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.providerRequestsTotal == nil || m.providerRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.providerRequestsTotal.Add(ctx, 1, attrs)
	m.providerRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRetry records a retry decision. Reason is one of RetryThrottled,
// RetryNetwork or RetryAuth.
func (m *Metrics) RecordRetry(ctx context.Context, service, reason string) {
	if m == nil || m.providerRetriesTotal == nil {
		return
	}

	m.providerRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrReason, reason),
	))
}

// RecordQuotaWait records time a call was suspended by the request window.
func (m *Metrics) RecordQuotaWait(ctx context.Context, service string, wait time.Duration) {
	if m == nil || m.quotaWait == nil {
		return
	}

	m.quotaWait.Record(ctx, wait.Seconds(), metric.WithAttributes(attribute.String(attrService, service)))
}

// RecordCredentialRefresh records a refresh outcome: RefreshSuccess,
// RefreshTransient or RefreshPermanent.
func (m *Metrics) RecordCredentialRefresh(ctx context.Context, result string) {
	if m == nil || m.credentialRefreshTotal == nil {
		return
	}

	m.credentialRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordDayOverview records a finished aggregation with its outcome.
func (m *Metrics) RecordDayOverview(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil || m.dayOverviewTotal == nil || m.dayOverviewDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))
	m.dayOverviewTotal.Add(ctx, 1, attrs)
	m.dayOverviewDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSourceFailure records a source that failed during aggregation. The
// full source name is only attached when detailed labels are enabled.
func (m *Metrics) RecordSourceFailure(ctx context.Context, source, kind string) {
	if m == nil || m.aggregationFailuresTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrSourceType, SourceType(source)),
		attribute.String(attrKind, kind),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrSource, source))
	}
	m.aggregationFailuresTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordToolInvocation records a tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
