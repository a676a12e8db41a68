package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const validYAML = `
database:
  host: localhost
  port: 5432
  user: postgres
  name: corpus
embedding:
  backend: openai
  model: text-embedding-3-small
  base_url: http://localhost:8080/v1
  dimensions: 1536
  timeout: 30s
  rate_limit: 2.5
backfill:
  table: public.chunks
  processed_column: vectored
  batch_size: 100
  write_concurrency: 4
  max_record_failures: 3
  fetch_retries: 3
  retry_initial_delay: 500ms
search:
  limit: 8
  query_prefix: "query: "
nats:
  enabled: true
  url: nats://nats:4222
  subject: embedfill.progress
log:
  level: debug
  format: text
metrics:
  enabled: true
`

func loadYAML(t *testing.T, data string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(data)); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	return v
}

func TestNew_LoadsAllSections(t *testing.T) {
	cfg, err := New(loadYAML(t, validYAML))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if cfg.Database.Name != "corpus" || cfg.Database.Port != 5432 {
		t.Errorf("unexpected database config: %+v", cfg.Database)
	}
	if cfg.Embedding.Backend != "openai" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Timeout != 30*time.Second {
		t.Errorf("Embedding.Timeout = %v, want 30s", cfg.Embedding.Timeout)
	}
	if cfg.Embedding.RateLimit != 2.5 {
		t.Errorf("Embedding.RateLimit = %v, want 2.5", cfg.Embedding.RateLimit)
	}
	if cfg.Backfill.Table != "public.chunks" || cfg.Backfill.BatchSize != 100 {
		t.Errorf("unexpected backfill config: %+v", cfg.Backfill)
	}
	if cfg.Backfill.RetryInitialDelay != 500*time.Millisecond {
		t.Errorf("Backfill.RetryInitialDelay = %v, want 500ms", cfg.Backfill.RetryInitialDelay)
	}
	if !cfg.NATS.Enabled || cfg.NATS.Subject != "embedfill.progress" {
		t.Errorf("unexpected nats config: %+v", cfg.NATS)
	}
	if cfg.Search.Limit != 8 || cfg.Search.QueryPrefix != "query: " {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Log.Format != "text" || !cfg.Metrics.Enabled {
		t.Errorf("unexpected log/metrics config: %+v %+v", cfg.Log, cfg.Metrics)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database:  DatabaseConfig{Host: "localhost", Port: 5432, Name: "corpus"},
			Embedding: EmbeddingConfig{Backend: "simple"},
			Backfill: BackfillConfig{
				Table:             "chunks",
				BatchSize:         100,
				WriteConcurrency:  4,
				MaxRecordFailures: 3,
			},
			Search: SearchConfig{Limit: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid simple", mutate: func(*Config) {}},
		{name: "valid ollama", mutate: func(c *Config) { c.Embedding = EmbeddingConfig{Backend: "Ollama", Model: "nomic-embed-text"} }},
		{name: "missing host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "database.host"},
		{name: "missing name", mutate: func(c *Config) { c.Database.Name = "" }, wantErr: "database.name"},
		{name: "bad port", mutate: func(c *Config) { c.Database.Port = 0 }, wantErr: "database.port"},
		{name: "unknown backend", mutate: func(c *Config) { c.Embedding.Backend = "mps" }, wantErr: "embedding.backend"},
		{name: "remote without model", mutate: func(c *Config) { c.Embedding.Backend = "openai" }, wantErr: "embedding.model"},
		{name: "negative dims", mutate: func(c *Config) { c.Embedding.Dimensions = -1 }, wantErr: "embedding.dimensions"},
		{name: "zero search limit", mutate: func(c *Config) { c.Search.Limit = 0 }, wantErr: "search.limit"},
		{name: "negative request batch", mutate: func(c *Config) { c.Embedding.BatchSize = -1 }, wantErr: "embedding.batch_size"},
		{name: "negative rate", mutate: func(c *Config) { c.Embedding.RateLimit = -1 }, wantErr: "embedding.rate_limit"},
		{name: "missing table", mutate: func(c *Config) { c.Backfill.Table = "" }, wantErr: "backfill.table"},
		{name: "zero batch", mutate: func(c *Config) { c.Backfill.BatchSize = 0 }, wantErr: "backfill.batch_size"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Backfill.WriteConcurrency = 0 }, wantErr: "backfill.write_concurrency"},
		{name: "zero failures", mutate: func(c *Config) { c.Backfill.MaxRecordFailures = 0 }, wantErr: "backfill.max_record_failures"},
		{name: "negative retries", mutate: func(c *Config) { c.Backfill.FetchRetries = -1 }, wantErr: "retry counts"},
		{name: "nats without url", mutate: func(c *Config) { c.NATS.Enabled = true }, wantErr: "nats.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(loadYAML(t, "database:\n  host: localhost\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("New() error = %v, want invalid configuration", err)
	}
}

func TestNew_DecodeError(t *testing.T) {
	_, err := New(loadYAML(t, "backfill:\n  batch_size: lots\n"))
	if err == nil || !strings.Contains(err.Error(), "unable to decode config") {
		t.Errorf("New() error = %v, want decode error", err)
	}
}
