package odb

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for object database operations.
var (
	tracer = otel.Tracer("telos.odb")
	meter  = otel.Meter("telos.odb")
)

var (
	operationLatency  metric.Float64Histogram
	objectsWritten    metric.Int64Counter
	integrityFailures metric.Int64Counter
	corruptedEntries  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"odb_operation_duration_seconds",
			metric.WithDescription("Duration of object database operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		objectsWritten, err = meter.Int64Counter(
			"odb_objects_written_total",
			metric.WithDescription("Objects newly persisted (idempotent rewrites excluded)"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		integrityFailures, err = meter.Int64Counter(
			"odb_integrity_failures_total",
			metric.WithDescription("Reads whose bytes did not hash to the requested ID"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		corruptedEntries, err = meter.Int64Counter(
			"odb_scan_corrupted_total",
			metric.WithDescription("Corrupted entries reported by scans"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("odb.operation", operation))
	return tracer.Start(ctx, "ObjectDB."+operation, trace.WithAttributes(attrs...))
}

func recordLatency(ctx context.Context, operation string, start time.Time, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	operationLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	))
}

func recordWritten(ctx context.Context, kind string) {
	if err := initMetrics(); err != nil {
		return
	}
	objectsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func recordIntegrityFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	integrityFailures.Add(ctx, 1)
}

func recordCorrupted(ctx context.Context, n int) {
	if err := initMetrics(); err != nil || n == 0 {
		return
	}
	corruptedEntries.Add(ctx, int64(n))
}
