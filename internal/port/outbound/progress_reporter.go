package outbound

import (
	"context"
	"time"
)

// BatchProgress is emitted after every completed batch.
type BatchProgress struct {
	RunID         string    `json:"run_id"`
	Batch         int       `json:"batch"`
	Fetched       int       `json:"fetched"`
	Written       int       `json:"written"`
	WriteFailures int       `json:"write_failures"`
	Processed     int       `json:"processed"`
	Timestamp     time.Time `json:"timestamp"`
}

// RunSummary is emitted once when a run ends.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Status        string        `json:"status"`
	Processed     int           `json:"processed"`
	Written       int           `json:"written"`
	WriteFailures int           `json:"write_failures"`
	Batches       int           `json:"batches"`
	DeadLettered  []int64       `json:"dead_lettered,omitempty"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}

// ProgressReporter receives progress notifications from the backfill loop.
// Reporter errors are logged by the caller and never stop a run.
type ProgressReporter interface {
	ReportBatch(ctx context.Context, progress BatchProgress) error
	ReportDone(ctx context.Context, summary RunSummary) error
}
