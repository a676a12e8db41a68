package backfill

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope of the backfill metrics.
const MeterName = "embedfill/backfill"

// Metrics holds the OpenTelemetry instruments updated by the loop.
type Metrics struct {
	fetched        metric.Int64Counter
	written        metric.Int64Counter
	writeFailures  metric.Int64Counter
	deadLettered   metric.Int64Counter
	batches        metric.Int64Counter
	encodeDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.fetched, err = meter.Int64Counter("embedfill_records_fetched_total",
		metric.WithDescription("Records fetched for embedding"))
	if err != nil {
		return nil, err
	}

	m.written, err = meter.Int64Counter("embedfill_records_written_total",
		metric.WithDescription("Embeddings written and marked processed"))
	if err != nil {
		return nil, err
	}

	m.writeFailures, err = meter.Int64Counter("embedfill_write_failures_total",
		metric.WithDescription("Failed per-record embedding writes"))
	if err != nil {
		return nil, err
	}

	m.deadLettered, err = meter.Int64Counter("embedfill_dead_lettered_total",
		metric.WithDescription("Records excluded after repeated write failures"))
	if err != nil {
		return nil, err
	}

	m.batches, err = meter.Int64Counter("embedfill_batches_total",
		metric.WithDescription("Non-empty batches processed"))
	if err != nil {
		return nil, err
	}

	m.encodeDuration, err = meter.Float64Histogram("embedfill_encode_duration_seconds",
		metric.WithDescription("Duration of provider encode calls"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(MeterName))
	return m
}

func (m *Metrics) recordBatch(ctx context.Context, fetched, written, failed int) {
	m.batches.Add(ctx, 1)
	m.fetched.Add(ctx, int64(fetched))
	m.written.Add(ctx, int64(written))
	m.writeFailures.Add(ctx, int64(failed))
}

func (m *Metrics) recordDeadLettered(ctx context.Context, n int) {
	if n > 0 {
		m.deadLettered.Add(ctx, int64(n))
	}
}

func (m *Metrics) recordEncode(ctx context.Context, d time.Duration) {
	m.encodeDuration.Record(ctx, d.Seconds())
}
