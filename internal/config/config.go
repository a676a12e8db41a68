package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Backfill  BackfillConfig  `mapstructure:"backfill"`
	Search    SearchConfig    `mapstructure:"search"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	Schema         string        `mapstructure:"schema"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxConnections int           `mapstructure:"max_connections"`
	MinConnections int           `mapstructure:"min_connections"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Backend    string        `mapstructure:"backend"` // simple, openai or ollama
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"` // encode calls per second, 0 = unlimited
	BatchSize  int           `mapstructure:"batch_size"` // texts per backend request, 0 = backend default
}

// BackfillConfig holds the target table layout and loop tuning.
type BackfillConfig struct {
	Table             string        `mapstructure:"table"`
	IDColumn          string        `mapstructure:"id_column"`
	ContentColumn     string        `mapstructure:"content_column"`
	EmbeddingColumn   string        `mapstructure:"embedding_column"`
	ProcessedColumn   string        `mapstructure:"processed_column"`
	BatchSize         int           `mapstructure:"batch_size"`
	WriteConcurrency  int           `mapstructure:"write_concurrency"`
	MaxRecordFailures int           `mapstructure:"max_record_failures"`
	FetchRetries      int           `mapstructure:"fetch_retries"`
	EncodeRetries     int           `mapstructure:"encode_retries"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
}

// SearchConfig tunes nearest-neighbour queries over backfilled records.
type SearchConfig struct {
	Limit       int    `mapstructure:"limit"`
	QueryPrefix string `mapstructure:"query_prefix"` // prepended to the query text, e.g. "query: " for e5 models
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig toggles OpenTelemetry metric collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var validBackends = map[string]bool{"simple": true, "openai": true, "ollama": true}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) (*Config, error) {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	backend := strings.ToLower(c.Embedding.Backend)
	if !validBackends[backend] {
		return fmt.Errorf("embedding.backend must be one of simple, openai, ollama (got %q)", c.Embedding.Backend)
	}
	if backend != "simple" && c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required for backend %s", backend)
	}
	if c.Embedding.Dimensions < 0 {
		return errors.New("embedding.dimensions cannot be negative")
	}
	if c.Embedding.BatchSize < 0 {
		return fmt.Errorf("embedding.batch_size must not be negative, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.RateLimit < 0 {
		return errors.New("embedding.rate_limit cannot be negative")
	}

	if c.Backfill.Table == "" {
		return errors.New("backfill.table is required")
	}
	if c.Backfill.BatchSize < 1 {
		return errors.New("backfill.batch_size must be at least 1")
	}
	if c.Backfill.WriteConcurrency < 1 {
		return errors.New("backfill.write_concurrency must be at least 1")
	}
	if c.Backfill.MaxRecordFailures < 1 {
		return errors.New("backfill.max_record_failures must be at least 1")
	}
	if c.Backfill.FetchRetries < 0 || c.Backfill.EncodeRetries < 0 {
		return errors.New("backfill retry counts cannot be negative")
	}

	if c.Search.Limit < 1 {
		return errors.New("search.limit must be at least 1")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled is true")
	}

	return nil
}
