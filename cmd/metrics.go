package cmd

import (
	"context"

	"embedfill/internal/application/backfill"
	"embedfill/internal/application/common/slogger"
	"embedfill/internal/version"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

// runMetrics owns the meter provider of a single run.
type runMetrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	metrics  *backfill.Metrics
}

func newRunMetrics(ctx context.Context, enabled bool) (*runMetrics, error) {
	if !enabled {
		return &runMetrics{metrics: backfill.NoopMetrics()}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "embedfill"),
			attribute.String("service.version", version.GetVersion().Version),
		),
	)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	m, err := backfill.NewMetrics(provider.Meter(backfill.MeterName))
	if err != nil {
		return nil, err
	}
	return &runMetrics{provider: provider, reader: reader, metrics: m}, nil
}

// snapshot collects the current counter totals and histogram counts by name.
func (r *runMetrics) snapshot(ctx context.Context) (map[string]float64, error) {
	out := map[string]float64{}
	if r.reader == nil {
		return out, nil
	}

	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += float64(dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name+"_count"] += float64(dp.Count)
					out[m.Name+"_sum"] += dp.Sum
				}
			}
		}
	}
	return out, nil
}

// logAndShutdown logs the final metric values and shuts the provider down.
func (r *runMetrics) logAndShutdown(ctx context.Context) {
	if r.provider == nil {
		return
	}
	if snap, err := r.snapshot(ctx); err != nil {
		slogger.Warn(ctx, "Failed to collect metrics", slogger.Field("error", err.Error()))
	} else {
		fields := slogger.Fields{}
		for k, v := range snap {
			fields[k] = v
		}
		slogger.Info(ctx, "Backfill metrics", fields)
	}
	if err := r.provider.Shutdown(ctx); err != nil {
		slogger.Warn(ctx, "Failed to shut down meter provider", slogger.Field("error", err.Error()))
	}
}
