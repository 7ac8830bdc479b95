package query

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("telos.query")
	meter  = otel.Meter("telos.query")
)

var (
	fallbacks    metric.Int64Counter
	queryResults metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fallbacks, err = meter.Int64Counter(
			"query_index_fallback_total",
			metric.WithDescription("Queries answered by a full scan because the index was missing or stale"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryResults, err = meter.Int64Histogram(
			"query_results",
			metric.WithDescription("Number of results per query"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startQuerySpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Query."+operation,
		trace.WithAttributes(attribute.String("query.operation", operation)),
	)
}

func recordFallback(ctx context.Context, index, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("index", index),
		attribute.String("reason", reason),
	))
}

func recordResults(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	queryResults.Record(ctx, int64(n))
}
