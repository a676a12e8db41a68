package backfill

import (
	"context"
	"errors"
	"strconv"

	"embedfill/internal/application/common/slogger"
	"embedfill/internal/port/outbound"
)

// LogReporter writes one structured log line per batch and per run.
type LogReporter struct{}

func (LogReporter) ReportBatch(ctx context.Context, p outbound.BatchProgress) error {
	slogger.Info(ctx, "processed: "+strconv.Itoa(p.Processed), slogger.Fields{
		"run_id":         p.RunID,
		"batch":          p.Batch,
		"fetched":        p.Fetched,
		"written":        p.Written,
		"write_failures": p.WriteFailures,
		"processed":      p.Processed,
	})
	return nil
}

func (LogReporter) ReportDone(ctx context.Context, s outbound.RunSummary) error {
	fields := slogger.Fields{
		"run_id":         s.RunID,
		"status":         s.Status,
		"processed":      s.Processed,
		"written":        s.Written,
		"write_failures": s.WriteFailures,
		"batches":        s.Batches,
		"dead_lettered":  len(s.DeadLettered),
		"duration_ms":    s.Duration.Milliseconds(),
	}
	if s.Error != "" {
		fields["error"] = s.Error
		slogger.Error(ctx, "Backfill run failed", fields)
		return nil
	}
	slogger.Info(ctx, "Backfill run complete", fields)
	return nil
}

// MultiReporter fans every report out to all of its reporters.
type MultiReporter []outbound.ProgressReporter

func (m MultiReporter) ReportBatch(ctx context.Context, p outbound.BatchProgress) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportBatch(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiReporter) ReportDone(ctx context.Context, s outbound.RunSummary) error {
	var errs []error
	for _, r := range m {
		if err := r.ReportDone(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
