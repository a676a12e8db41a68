package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"embedfill/internal/application/common/logging"
	"embedfill/internal/application/common/slogger"
	"embedfill/internal/port/outbound"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) logging.ApplicationLogger {
	t.Helper()
	logger, err := logging.NewApplicationLogger(logging.Config{Level: "debug", Format: "json", Output: "buffer"})
	require.NoError(t, err)
	slogger.SetGlobalLogger(logger)
	t.Cleanup(func() { _ = slogger.Configure("info", "json") })
	return logger
}

func TestLogReporter_ReportBatch(t *testing.T) {
	logger := captureLogs(t)

	err := LogReporter{}.ReportBatch(context.Background(), outbound.BatchProgress{RunID: "run-9", Batch: 1, Fetched: 100, Processed: 100})
	require.NoError(t, err)

	out := logging.BufferedOutput(logger)
	assert.Contains(t, out, `"message":"processed: 100"`)
	assert.Contains(t, out, `"run_id":"run-9"`)
}

func TestLogReporter_ReportDone(t *testing.T) {
	logger := captureLogs(t)

	require.NoError(t, LogReporter{}.ReportDone(context.Background(), outbound.RunSummary{Status: "done", Processed: 3, Duration: time.Second}))
	require.NoError(t, LogReporter{}.ReportDone(context.Background(), outbound.RunSummary{Status: "failed", Error: "backfill encode failed: oom"}))

	out := logging.BufferedOutput(logger)
	assert.Contains(t, out, "Backfill run complete")
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "backfill encode failed: oom")
}

func TestMultiReporter(t *testing.T) {
	failing := &recordingReporter{err: errors.New("nats: no servers available")}
	ok := &recordingReporter{}
	multi := MultiReporter{failing, ok}

	err := multi.ReportBatch(context.Background(), outbound.BatchProgress{Batch: 1})
	assert.ErrorContains(t, err, "no servers available")
	assert.Len(t, ok.batches, 1, "later reporters still run")

	err = multi.ReportDone(context.Background(), outbound.RunSummary{Status: "done"})
	assert.Error(t, err)
	assert.Len(t, ok.done, 1)

	assert.NoError(t, MultiReporter{ok}.ReportBatch(context.Background(), outbound.BatchProgress{}))
}
