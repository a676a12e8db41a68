// Package backfill drives the batched embedding backfill: fetch unprocessed
// records, encode their content, write each embedding back, repeat until a
// fetch comes back empty.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"embedfill/internal/application/common/logging"
	"embedfill/internal/application/common/retry"
	"embedfill/internal/application/common/slogger"
	"embedfill/internal/domain/entity"
	"embedfill/internal/domain/valueobject"
	"embedfill/internal/port/outbound"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize         = 100
	DefaultWriteConcurrency  = 4
	DefaultMaxRecordFailures = 3
)

// Config tunes a Loop.
type Config struct {
	BatchSize         int
	WriteConcurrency  int
	MaxRecordFailures int
	// FetchRetry and EncodeRetry bound retries of the two fatal stages;
	// nil disables retrying that stage.
	FetchRetry  *retry.RetryConfig
	EncodeRetry *retry.RetryConfig
	// FetchRetryable classifies fetch errors; nil uses retry.DefaultRetryableChecker.
	FetchRetryable retry.RetryableChecker
	// RunID identifies the run in logs and events; generated when empty.
	RunID string
}

// DefaultConfig returns the defaults: 100-record batches, 4 concurrent
// writes, 3 write failures before dead-lettering, 3 fetch retries and
// fail-fast encoding.
func DefaultConfig() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		WriteConcurrency:  DefaultWriteConcurrency,
		MaxRecordFailures: DefaultMaxRecordFailures,
		FetchRetry:        retry.DefaultRetryConfig(),
	}
}

// Result summarizes a run. Processed is the running total of fetched records,
// so a record re-fetched after a failed write is counted again.
type Result struct {
	RunID         string
	Status        valueobject.RunStatus
	Processed     int
	Written       int
	WriteFailures int
	Batches       int
	DeadLettered  []int64
	Duration      time.Duration
}

// Summary converts r into the event published when the run ends.
func (r Result) Summary(err error) outbound.RunSummary {
	s := outbound.RunSummary{
		RunID:         r.RunID,
		Status:        r.Status.String(),
		Processed:     r.Processed,
		Written:       r.Written,
		WriteFailures: r.WriteFailures,
		Batches:       r.Batches,
		DeadLettered:  r.DeadLettered,
		Duration:      r.Duration,
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Loop is the backfill driver. A Loop runs one pass at a time; Run is not
// safe for concurrent use.
type Loop struct {
	store       outbound.RecordStore
	provider    outbound.EmbeddingProvider
	reporter    outbound.ProgressReporter
	metrics     *Metrics
	config      Config
	fetchRetry  *retry.RetryExecutor
	encodeRetry *retry.RetryExecutor
}

// New creates a Loop. A nil reporter logs progress; nil metrics record nothing.
// Zero config values fall back to the defaults.
func New(
	store outbound.RecordStore,
	provider outbound.EmbeddingProvider,
	reporter outbound.ProgressReporter,
	metrics *Metrics,
	config Config,
) *Loop {
	if reporter == nil {
		reporter = LogReporter{}
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.WriteConcurrency <= 0 {
		config.WriteConcurrency = DefaultWriteConcurrency
	}
	if config.MaxRecordFailures <= 0 {
		config.MaxRecordFailures = DefaultMaxRecordFailures
	}

	return &Loop{
		store:       store,
		provider:    provider,
		reporter:    reporter,
		metrics:     metrics,
		config:      config,
		fetchRetry:  retry.NewRetryExecutorWithChecker(retryConfigOrOnce(config.FetchRetry), config.FetchRetryable),
		encodeRetry: retry.NewRetryExecutor(retryConfigOrOnce(config.EncodeRetry)),
	}
}

func retryConfigOrOnce(c *retry.RetryConfig) *retry.RetryConfig {
	if c == nil {
		once := *retry.DefaultRetryConfig()
		once.MaxRetries = 0
		return &once
	}
	return c
}

// Run processes batches until a fetch returns no records (DONE) or a fetch,
// encode or cancellation ends the run (FAILED, returned as *StageError).
// Per-record write failures never end a run. Cancellation is observed only
// between batches; a batch whose writes have started is always settled.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	runID := l.config.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx = logging.WithCorrelationID(ctx, runID)

	start := time.Now()
	result := Result{RunID: runID, Status: valueobject.RunStatusRunning}
	tracker := NewFailureTracker(l.config.MaxRecordFailures)

	slogger.Info(ctx, "Backfill run started", slogger.Fields{
		"run_id":              runID,
		"batch_size":          l.config.BatchSize,
		"write_concurrency":   l.config.WriteConcurrency,
		"max_record_failures": l.config.MaxRecordFailures,
	})

	for {
		if err := ctx.Err(); err != nil {
			return l.finish(ctx, result, start, NewStageError(StageCanceled, err))
		}

		batch, err := l.fetch(ctx, tracker.Excluded())
		if err != nil {
			return l.finish(ctx, result, start, l.stageError(ctx, StageFetch, err))
		}
		if batch.IsEmpty() {
			return l.finish(ctx, result, start, nil)
		}

		vectors, err := l.encode(ctx, batch.Contents())
		if err != nil {
			return l.finish(ctx, result, start, l.stageError(ctx, StageEncode, err))
		}
		records, err := batch.WithEmbeddings(vectors)
		if err != nil {
			return l.finish(ctx, result, start, NewStageError(StageEncode, fmt.Errorf("%w: %w", ErrEncodeShape, err)))
		}

		written, failed, deadLettered := l.writeBatch(ctx, records, tracker)

		result.Processed += batch.Len()
		result.Written += written
		result.WriteFailures += failed
		result.Batches++
		result.DeadLettered = append(result.DeadLettered, deadLettered...)

		l.metrics.recordBatch(ctx, batch.Len(), written, failed)
		l.metrics.recordDeadLettered(ctx, len(deadLettered))

		progress := outbound.BatchProgress{
			RunID:         runID,
			Batch:         result.Batches,
			Fetched:       batch.Len(),
			Written:       written,
			WriteFailures: failed,
			Processed:     result.Processed,
			Timestamp:     time.Now().UTC(),
		}
		if err := l.reporter.ReportBatch(ctx, progress); err != nil {
			slogger.Warn(ctx, "Failed to report batch progress", slogger.Field("error", err.Error()))
		}
	}
}

func (l *Loop) fetch(ctx context.Context, exclude []int64) (entity.Batch, error) {
	var records []entity.Record
	err := l.fetchRetry.Execute(ctx, func(ctx context.Context) error {
		var err error
		records, err = l.store.FetchUnprocessed(ctx, l.config.BatchSize, exclude)
		return err
	})
	if err != nil {
		return entity.Batch{}, err
	}
	if len(records) > l.config.BatchSize {
		return entity.Batch{}, fmt.Errorf("store returned %d records for limit %d", len(records), l.config.BatchSize)
	}
	return entity.NewBatch(records), nil
}

func (l *Loop) encode(ctx context.Context, contents []string) ([]valueobject.Embedding, error) {
	var vectors []valueobject.Embedding
	start := time.Now()
	err := l.encodeRetry.Execute(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = l.provider.Encode(ctx, contents)
		return err
	})
	l.metrics.recordEncode(ctx, time.Since(start))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// writeBatch writes each record's embedding with at most WriteConcurrency
// writes in flight and waits for all of them. Writes run detached from ctx
// cancellation so a started batch is never abandoned half-written.
func (l *Loop) writeBatch(
	ctx context.Context,
	records []entity.Record,
	tracker *FailureTracker,
) (written, failed int, deadLettered []int64) {
	writeCtx := context.WithoutCancel(ctx)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(l.config.WriteConcurrency)

	for _, rec := range records {
		id := rec.ID()
		g.Go(func() error {
			err := l.store.MarkProcessed(writeCtx, id, rec.Embedding())

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				written++
				return nil
			}

			failed++
			dead := tracker.RecordFailure(id)
			fields := slogger.Fields{
				"record_id": id,
				"failures":  tracker.Failures(id),
			}
			if dead {
				deadLettered = append(deadLettered, id)
				slogger.ErrorWithError(writeCtx, err, "Record dead-lettered after repeated write failures", fields)
			} else {
				slogger.ErrorWithError(writeCtx, err, "Failed to write embedding", fields)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(deadLettered)
	return written, failed, deadLettered
}

// stageError attributes err to stage, unless it was caused by cancellation.
func (l *Loop) stageError(ctx context.Context, stage Stage, err error) *StageError {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return NewStageError(StageCanceled, err)
	}
	return NewStageError(stage, err)
}

func (l *Loop) finish(ctx context.Context, result Result, start time.Time, runErr *StageError) (Result, error) {
	result.Duration = time.Since(start)

	next := valueobject.RunStatusDone
	var err error
	if runErr != nil {
		next = valueobject.RunStatusFailed
		err = runErr
	}
	if !result.Status.CanTransitionTo(next) {
		return result, fmt.Errorf("run %s: invalid status transition %s -> %s", result.RunID, result.Status, next)
	}
	result.Status = next

	// the summary must still go out when the run was canceled
	reportCtx := context.WithoutCancel(ctx)
	if rerr := l.reporter.ReportDone(reportCtx, result.Summary(err)); rerr != nil {
		slogger.Warn(reportCtx, "Failed to report run summary", slogger.Field("error", rerr.Error()))
	}
	return result, err
}
