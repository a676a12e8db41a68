package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// DatabaseConfig represents database connection configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	Schema          string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SSLMode         string
	ConnectTimeout  time.Duration
}

// Validate validates the database configuration.
func (c DatabaseConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.MaxConnections < 0 || c.MinConnections < 0 {
		return errors.New("connection limits cannot be negative")
	}
	if c.MaxConnections > 0 && c.MinConnections > c.MaxConnections {
		return errors.New("min connections cannot exceed max connections")
	}
	return nil
}

// ConnString builds a libpq-style URL for the configuration.
func (c DatabaseConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

const vectorExtensionQuery = "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')"

// registerVectorTypes registers the pgvector codecs when the extension is installed.
// A database without the extension still connects, so VerifySchema can name the problem.
func registerVectorTypes(
	ctx context.Context,
	installed func(context.Context) (bool, error),
	register func(context.Context) error,
) error {
	ok, err := installed(ctx)
	if err != nil {
		return fmt.Errorf("failed to check vector extension: %w", err)
	}
	if !ok {
		return nil
	}
	if err := register(ctx); err != nil {
		return fmt.Errorf("failed to register pgvector types: %w", err)
	}
	return nil
}

// NewDatabaseConnection creates a new database connection pool.
// Pooled connections have the pgvector types registered when the extension exists.
func NewDatabaseConnection(ctx context.Context, config DatabaseConfig) (*pgxpool.Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConnections > 0 {
		poolConfig.MaxConns = int32(config.MaxConnections)
	} else {
		poolConfig.MaxConns = 10
	}
	poolConfig.MinConns = int32(config.MinConnections)

	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerVectorTypes(ctx,
			func(ctx context.Context) (bool, error) {
				var installed bool
				err := conn.QueryRow(ctx, vectorExtensionQuery).Scan(&installed)
				return installed, err
			},
			func(ctx context.Context) error { return pgxvec.RegisterTypes(ctx, conn) },
		)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if pingErr := pool.Ping(pingCtx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return pool, nil
}

// RedactedConnString returns the connection string with the password hidden.
func (c DatabaseConfig) RedactedConnString() string {
	u, err := url.Parse(c.ConnString())
	if err != nil {
		return ""
	}
	return u.Redacted()
}
