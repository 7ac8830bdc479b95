package index

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for index operations.
var (
	tracer = otel.Tracer("telos.index")
	meter  = otel.Meter("telos.index")
)

var (
	operationLatency metric.Float64Histogram
	indexKeys        metric.Int64Gauge

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationLatency, err = meter.Float64Histogram(
			"index_operation_duration_seconds",
			metric.WithDescription("Duration of index operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		indexKeys, err = meter.Int64Gauge(
			"index_keys",
			metric.WithDescription("Distinct keys per index after a rebuild"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startOperationSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "IndexStore."+operation,
		trace.WithAttributes(
			attribute.String("index.operation", operation),
		),
	)
}

func recordOperationMetrics(ctx context.Context, operation string, start time.Time, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	operationLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	))
}

func recordIndexKeys(ctx context.Context, name Name, keys int) {
	if err := initMetrics(); err != nil {
		return
	}
	indexKeys.Record(ctx, int64(keys), metric.WithAttributes(attribute.String("index", string(name))))
}
