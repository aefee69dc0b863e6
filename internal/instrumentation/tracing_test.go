package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestStartProviderSpan(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartProviderSpan(context.Background(), ServiceCalendar, OperationList)
	if GetTraceID(ctx) == "" || GetSpanID(ctx) == "" {
		t.Error("expected trace and span ids in context")
	}
	SetSpanSuccess(span)
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != "google.calendar.list" {
		t.Errorf("span name = %q, want google.calendar.list", ended[0].Name())
	}
	if ended[0].Status().Code != codes.Ok {
		t.Errorf("expected OK status, got %v", ended[0].Status().Code)
	}
}

func TestStartToolSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartToolSpan(context.Background(), "day_get_overview")
	SetSpanError(span, errors.New("boom"))
	AddSpanEvent(span, "retry")
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != "tool.day_get_overview" {
		t.Errorf("span name = %q", ended[0].Name())
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended[0].Status().Code)
	}
	if len(ended[0].Events()) < 2 {
		t.Errorf("expected recorded error and retry events, got %d", len(ended[0].Events()))
	}
}

func TestSetSpanError_Nil(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "credential.refresh")
	SetSpanError(span, nil)
	span.End()

	if got := rec.Ended()[0].Status().Code; got != codes.Unset {
		t.Errorf("nil error should leave status unset, got %v", got)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if GetTraceID(context.Background()) != "" {
		t.Error("expected empty trace id without a span")
	}
	if GetSpanID(context.Background()) != "" {
		t.Error("expected empty span id without a span")
	}
}
