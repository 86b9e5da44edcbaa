package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vonatfigyelo/vonatfigyelo"

// Metrics records application level instruments. A nil *Metrics is valid and
// records nothing, so components can take it as an optional dependency.
type Metrics struct {
	cacheLookups     metric.Int64Counter
	upstreamDuration metric.Float64Histogram
	dispatches       metric.Int64Counter
	scheduledJobs    metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	cacheLookups, err := meter.Int64Counter(
		"vonatfigyelo.cache.lookups",
		metric.WithDescription("Cache lookups by cache name and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	upstreamDuration, err := meter.Float64Histogram(
		"vonatfigyelo.upstream.duration",
		metric.WithDescription("Duration of upstream fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter(
		"vonatfigyelo.notification.dispatches",
		metric.WithDescription("Fired notifications by outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	scheduledJobs, err := meter.Int64UpDownCounter(
		"vonatfigyelo.scheduler.jobs",
		metric.WithDescription("Number of live scheduled notification jobs"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cacheLookups:     cacheLookups,
		upstreamDuration: upstreamDuration,
		dispatches:       dispatches,
		scheduledJobs:    scheduledJobs,
	}, nil
}

// RecordCacheLookup counts a hit or miss on the named cache.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache.name", cache),
		attribute.String("cache.result", result),
	))
}

// RecordUpstream records the duration and outcome of an upstream fetch.
func (m *Metrics) RecordUpstream(upstream, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstreamDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
		attribute.Bool("error", err != nil),
	))
}

// RecordDispatch counts a fired notification by outcome
// ("on_time", "delayed", "not_running", "failed").
func (m *Metrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordScheduledJobs adjusts the live job gauge by delta.
func (m *Metrics) RecordScheduledJobs(delta int64) {
	if m == nil {
		return
	}
	m.scheduledJobs.Add(context.Background(), delta)
}
