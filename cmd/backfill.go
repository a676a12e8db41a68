package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"embedfill/internal/adapter/outbound/embeddings"
	"embedfill/internal/application/backfill"
	"embedfill/internal/application/common/logging"
	"embedfill/internal/application/common/slogger"
	"embedfill/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// newBackfillCmd creates and returns the backfill command.
func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Compute embeddings for every unprocessed row",
		Long: `Compute embeddings for every row whose processed flag is false and write
them back, batch by batch, until a fetch returns no rows.

Rows whose write keeps failing are skipped for the rest of the run after
backfill.max_record_failures attempts. The command exits non-zero when
setup, a fetch or an encode fails, or when it is interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := GetConfig()
			if err != nil {
				return backfill.NewStageError(backfill.StageSetup, err)
			}

			result, err := runBackfill(ctx, cfg, uuid.New().String())
			fmt.Fprintf(cmd.OutOrStdout(), "processed: %d\n", result.Processed)
			return err
		},
	}

	cmd.Flags().Int("batch-size", 100, "Records fetched and encoded per batch")
	cmd.Flags().Int("write-concurrency", 4, "Concurrent embedding writes per batch")
	cmd.Flags().String("backend", "simple", "Embedding backend (simple, openai, ollama)")
	cmd.Flags().String("model", "", "Embedding model name")
	cmd.Flags().String("table", "chunks", "Table holding the records")

	bindFlag("backfill.batch_size", cmd, "batch-size")
	bindFlag("backfill.write_concurrency", cmd, "write-concurrency")
	bindFlag("embedding.backend", cmd, "backend")
	bindFlag("embedding.model", cmd, "model")
	bindFlag("backfill.table", cmd, "table")
	return cmd
}

// runBackfill wires the store, provider, reporters and metrics and runs one pass.
// Any wiring failure is returned as a setup StageError.
func runBackfill(ctx context.Context, cfg *config.Config, runID string) (backfill.Result, error) {
	ctx = logging.WithCorrelationID(ctx, runID)
	setupErr := func(err error) (backfill.Result, error) {
		slogger.ErrorWithError(ctx, err, "Backfill setup failed", nil)
		return backfill.Result{RunID: runID}, backfill.NewStageError(backfill.StageSetup, err)
	}

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return setupErr(err)
	}
	defer pool.Close()

	provider, err := embeddings.NewProvider(embeddingConfig(cfg))
	if err != nil {
		return setupErr(fmt.Errorf("create embedding provider: %w", err))
	}
	defer func() {
		if err := provider.Close(); err != nil {
			slogger.Warn(ctx, "Failed to close embedding provider", slogger.Field("error", err.Error()))
		}
	}()

	metrics, err := newRunMetrics(ctx, cfg.Metrics.Enabled)
	if err != nil {
		return setupErr(fmt.Errorf("create metrics: %w", err))
	}
	defer metrics.logAndShutdown(context.WithoutCancel(ctx))

	reporter, closeReporter := newReporter(ctx, cfg)
	defer closeReporter()

	if counts, err := repo.CountRecords(ctx); err == nil {
		info := provider.ModelInfo()
		slogger.Info(ctx, "Starting backfill", slogger.Fields{
			"table":       cfg.Backfill.Table,
			"total":       counts.Total,
			"unprocessed": counts.Unprocessed,
			"backend":     info.Backend,
			"model":       info.Model,
			"dimensions":  info.Dimensions,
		})
		if counts.MissingContent > 0 {
			slogger.Warn(ctx, "Skipping unprocessed records without content",
				slogger.Field("missing_content", counts.MissingContent))
		}
	} else {
		slogger.Warn(ctx, "Failed to count records", slogger.Field("error", err.Error()))
	}

	loop := backfill.New(repo, provider, reporter, metrics.metrics, loopConfig(cfg, runID))
	return loop.Run(ctx)
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newBackfillCmd())
}
