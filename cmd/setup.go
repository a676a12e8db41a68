package cmd

import (
	"context"
	"fmt"

	"embedfill/internal/adapter/outbound/embeddings"
	"embedfill/internal/adapter/outbound/messaging"
	"embedfill/internal/adapter/outbound/repository"
	"embedfill/internal/application/backfill"
	"embedfill/internal/application/common/retry"
	"embedfill/internal/application/common/slogger"
	"embedfill/internal/config"
	"embedfill/internal/port/outbound"

	"github.com/jackc/pgx/v5/pgxpool"
)

func databaseConfig(cfg *config.Config) repository.DatabaseConfig {
	return repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         cfg.Database.Schema,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MinConnections,
		SSLMode:        cfg.Database.SSLMode,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}
}

func tableConfig(cfg *config.Config) repository.TableConfig {
	return repository.TableConfig{
		Table:           cfg.Backfill.Table,
		IDColumn:        cfg.Backfill.IDColumn,
		ContentColumn:   cfg.Backfill.ContentColumn,
		EmbeddingColumn: cfg.Backfill.EmbeddingColumn,
		ProcessedColumn: cfg.Backfill.ProcessedColumn,
	}
}

func embeddingConfig(cfg *config.Config) embeddings.Config {
	return embeddings.Config{
		Backend:    cfg.Embedding.Backend,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
		RateLimit:  cfg.Embedding.RateLimit,
		BatchSize:  cfg.Embedding.BatchSize,
	}
}

func loopConfig(cfg *config.Config, runID string) backfill.Config {
	stageRetry := func(n int) *retry.RetryConfig {
		rc := retry.DefaultRetryConfig()
		rc.MaxRetries = n
		if cfg.Backfill.RetryInitialDelay > 0 {
			rc.InitialDelay = cfg.Backfill.RetryInitialDelay
		}
		if cfg.Backfill.RetryMaxDelay > 0 {
			rc.MaxDelay = cfg.Backfill.RetryMaxDelay
		}
		return rc
	}

	return backfill.Config{
		BatchSize:         cfg.Backfill.BatchSize,
		WriteConcurrency:  cfg.Backfill.WriteConcurrency,
		MaxRecordFailures: cfg.Backfill.MaxRecordFailures,
		FetchRetry:        stageRetry(cfg.Backfill.FetchRetries),
		EncodeRetry:       stageRetry(cfg.Backfill.EncodeRetries),
		FetchRetryable: retry.AnyChecker{
			retry.CheckerFunc(repository.IsRetryable),
			&retry.DefaultRetryableChecker{},
		},
		RunID: runID,
	}
}

// openStore connects to the database and checks that the configured table is usable.
func openStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *repository.PostgreSQLRecordRepository, error) {
	dbConfig := databaseConfig(cfg)
	pool, err := repository.NewDatabaseConnection(ctx, dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", dbConfig.RedactedConnString(), err)
	}

	repo := repository.NewPostgreSQLRecordRepository(pool, tableConfig(cfg))
	if err := repo.VerifySchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, repo, nil
}

// newReporter always logs progress and, when enabled, publishes it over NATS.
// A NATS connection failure only disables the NATS reporter.
func newReporter(ctx context.Context, cfg *config.Config) (outbound.ProgressReporter, func()) {
	reporters := backfill.MultiReporter{backfill.LogReporter{}}
	cleanup := func() {}

	if !cfg.NATS.Enabled {
		return reporters, cleanup
	}

	natsReporter, err := messaging.NewNATSReporter(cfg.NATS)
	if err == nil {
		err = natsReporter.Connect()
	}
	if err != nil {
		slogger.Warn(ctx, "NATS progress reporting disabled", slogger.Fields2(
			"url", cfg.NATS.URL,
			"error", err.Error(),
		))
		return reporters, cleanup
	}

	cleanup = func() { closeNATSReporter(ctx, natsReporter) }
	return append(reporters, natsReporter), cleanup
}

// closeNATSReporter logs the publish totals and connection health, then closes the connection.
func closeNATSReporter(ctx context.Context, r *messaging.NATSReporter) {
	metrics := r.GetMessageMetrics()
	health := r.GetConnectionHealth()
	slogger.Info(ctx, "NATS progress reporter closing", slogger.Fields{
		"published":          metrics.PublishedCount,
		"failed":             metrics.FailedCount,
		"average_latency_ms": metrics.AverageLatency.Milliseconds(),
		"connected":          health.Connected,
		"reconnects":         health.Reconnects,
		"last_error":         health.LastError,
	})

	if err := r.Close(); err != nil {
		slogger.Warn(ctx, "Failed to close NATS connection", slogger.Field("error", err.Error()))
	}
}
