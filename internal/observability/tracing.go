package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartStoreSpan starts a span for interval store operations
func StartStoreSpan(ctx context.Context, operation, store string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("Store %s %s", operation, store),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.kind", store),
			attribute.String("store.operation", operation),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// StoreMetrics holds interval store metrics
type StoreMetrics struct {
	opDuration metric.Float64Histogram
	opCount    metric.Int64Counter
	errorCount metric.Int64Counter
}

// NewStoreMetrics creates interval store metrics instruments
func NewStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter(instrumentationName)

	opDuration, err := meter.Float64Histogram(
		"syncagent.store.duration",
		metric.WithDescription("Interval store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	opCount, err := meter.Int64Counter(
		"syncagent.store.count",
		metric.WithDescription("Total number of interval store operations"),
		metric.WithUnit("{operations}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"syncagent.store.errors",
		metric.WithDescription("Total number of interval store errors"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		opDuration: opDuration,
		opCount:    opCount,
		errorCount: errorCount,
	}, nil
}

// RecordOperation records one interval store call
func (m *StoreMetrics) RecordOperation(ctx context.Context, operation, store string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("store.operation", operation),
		attribute.String("store.kind", store),
	}

	m.opCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.opDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// SyncMetrics holds sync engine metrics
type SyncMetrics struct {
	photoUploads  metric.Int64Counter
	uploadErrors  metric.Int64Counter
	checkpoints   metric.Int64Counter
	scanOutcomes  metric.Int64Counter
	tickOutcomes  metric.Int64Counter
	intervalCount metric.Int64Gauge
}

// NewSyncMetrics creates sync engine metrics instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	photoUploads, err := meter.Int64Counter(
		"syncagent.photo.uploads",
		metric.WithDescription("Total number of photos uploaded"),
		metric.WithUnit("{uploads}"),
	)
	if err != nil {
		return nil, err
	}

	uploadErrors, err := meter.Int64Counter(
		"syncagent.photo.upload_errors",
		metric.WithDescription("Total number of failed photo uploads"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	checkpoints, err := meter.Int64Counter(
		"syncagent.checkpoints",
		metric.WithDescription("Total number of persisted batch checkpoints"),
		metric.WithUnit("{checkpoints}"),
	)
	if err != nil {
		return nil, err
	}

	scanOutcomes, err := meter.Int64Counter(
		"syncagent.scan.outcomes",
		metric.WithDescription("Full scan runs by outcome"),
		metric.WithUnit("{runs}"),
	)
	if err != nil {
		return nil, err
	}

	tickOutcomes, err := meter.Int64Counter(
		"syncagent.periodic.outcomes",
		metric.WithDescription("Periodic sync ticks by outcome"),
		metric.WithUnit("{ticks}"),
	)
	if err != nil {
		return nil, err
	}

	intervalCount, err := meter.Int64Gauge(
		"syncagent.intervals",
		metric.WithDescription("Number of synced intervals after the last persist"),
		metric.WithUnit("{intervals}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		photoUploads:  photoUploads,
		uploadErrors:  uploadErrors,
		checkpoints:   checkpoints,
		scanOutcomes:  scanOutcomes,
		tickOutcomes:  tickOutcomes,
		intervalCount: intervalCount,
	}, nil
}

// RecordPhotoUpload records one uploaded photo
func (m *SyncMetrics) RecordPhotoUpload(ctx context.Context, flow string, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("flow", flow))
	if success {
		m.photoUploads.Add(ctx, 1, attrs)
	} else {
		m.uploadErrors.Add(ctx, 1, attrs)
	}
}

// RecordCheckpoint records one persisted checkpoint
func (m *SyncMetrics) RecordCheckpoint(ctx context.Context, flow string, intervals int) {
	if m == nil {
		return
	}
	m.checkpoints.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", flow)))
	m.intervalCount.Record(ctx, int64(intervals))
}

// RecordScanOutcome records a finished full scan
func (m *SyncMetrics) RecordScanOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.scanOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTickOutcome records a finished periodic tick
func (m *SyncMetrics) RecordTickOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.tickOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
