package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"embedfill/internal/application/common/slogger"
	"embedfill/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "EMBEDFILL"

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
)

// flagBinding ties a command flag to a viper key.
type flagBinding struct {
	key  string
	cmd  *cobra.Command
	name string
}

var flagBindings []flagBinding

func bindFlag(key string, cmd *cobra.Command, name string) {
	flagBindings = append(flagBindings, flagBinding{key: key, cmd: cmd, name: name})
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "embedfill",
	Short: "Backfill vector embeddings for unprocessed table rows",
	Long: `embedfill computes embeddings for rows of a PostgreSQL table that do not
have one yet and writes them back through pgvector, batch by batch, until
no unprocessed rows remain.

The system supports:
- Local deterministic, OpenAI-compatible and Ollama embedding backends
- Bounded batches with concurrent per-row writes
- Retry of transient database and provider failures
- Progress events over NATS and OpenTelemetry metrics
- Nearest-neighbour search over the rows already embedded`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	bindFlag("log.level", rootCmd, "log-level")
	bindFlag("log.format", rootCmd, "log-format")
}

func initConfig() {
	v, err := newViper(cfgFile)
	if err != nil {
		cfgErr = err
		return
	}

	cfg, cfgErr = config.New(v)
	if cfgErr != nil {
		return
	}

	if err := slogger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
	}
}

// newViper layers defaults, the config file, EMBEDFILL_* environment
// variables and bound flags, lowest to highest precedence.
func newViper(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	for _, b := range flagBindings {
		flag := b.cmd.Flags().Lookup(b.name)
		if flag == nil {
			flag = b.cmd.PersistentFlags().Lookup(b.name)
		}
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(b.key, flag); err != nil {
			return nil, fmt.Errorf("error binding %s flag: %w", b.name, err)
		}
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connect_timeout", "5s")

	// Embedding defaults
	v.SetDefault("embedding.backend", "simple")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", "60s")
	v.SetDefault("embedding.rate_limit", 0)
	v.SetDefault("embedding.batch_size", 0)

	// Backfill defaults
	v.SetDefault("backfill.table", "chunks")
	v.SetDefault("backfill.id_column", "id")
	v.SetDefault("backfill.content_column", "content")
	v.SetDefault("backfill.embedding_column", "embedding")
	v.SetDefault("backfill.processed_column", "vectored")
	v.SetDefault("backfill.batch_size", 100)
	v.SetDefault("backfill.write_concurrency", 4)
	v.SetDefault("backfill.max_record_failures", 3)
	v.SetDefault("backfill.fetch_retries", 3)
	v.SetDefault("backfill.encode_retries", 0)
	v.SetDefault("backfill.retry_initial_delay", "200ms")
	v.SetDefault("backfill.retry_max_delay", "5s")

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "embedfill.progress")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", false)

	// Search defaults
	v.SetDefault("search.limit", 5)
	v.SetDefault("search.query_prefix", "")
}

// GetConfig returns the loaded configuration
func GetConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
