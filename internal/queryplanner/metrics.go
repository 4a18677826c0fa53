package queryplanner

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/ragdiary/diaryengine/internal/queryplanner"

// Metrics holds planner instrumentation: cache hit/miss counters per cache
// and a placeholder-outcome counter.
type Metrics struct {
	meter        metric.Meter
	logger       *zap.Logger
	cacheLookups metric.Int64Counter
	placeholders metric.Int64Counter
}

// NewMetrics creates planner metrics instrumentation.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.cacheLookups, err = m.meter.Int64Counter(
		"diaryengine.planner.cache_lookups_total",
		metric.WithDescription("Cache lookups by cache name and outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache lookups counter", zap.Error(err))
	}

	m.placeholders, err = m.meter.Int64Counter(
		"diaryengine.planner.placeholders_total",
		metric.WithDescription("Processed placeholders by kind and outcome"),
		metric.WithUnit("{placeholder}"),
	)
	if err != nil {
		m.logger.Warn("failed to create placeholders counter", zap.Error(err))
	}
}

// RecordCacheLookup counts one lookup against the named cache.
func (m *Metrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("outcome", outcome),
	))
}

// RecordPlaceholder counts one processed placeholder.
func (m *Metrics) RecordPlaceholder(ctx context.Context, kind, outcome string) {
	if m == nil || m.placeholders == nil {
		return
	}
	m.placeholders.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
