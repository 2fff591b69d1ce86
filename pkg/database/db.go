package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Supported database/sql driver names.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

type Config struct {
	DSN    string
	Driver string
	// MaxIdleConns caps the idle connections kept in the pool. database/sql
	// has no minimum pool size, so idle connections are kept but never pre-opened.
	MaxIdleConns int
	MaxConns     int
	// Timeout bounds the initial ping.
	Timeout          time.Duration
	StatementTimeout time.Duration
	TimeZone         string
	ClientEncoding   string
}

// ConfigFromEnv reads DB config from environment variables
func ConfigFromEnv() Config {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(envOr("DATABASE_USER", "athena"), envOr("DATABASE_PASSWORD", "athena")),
			Host:     net.JoinHostPort(envOr("DATABASE_HOST", "localhost"), envOr("DATABASE_PORT", "5432")),
			Path:     "/" + envOr("DATABASE_NAME", "athena"),
			RawQuery: "sslmode=" + envOr("DATABASE_SSLMODE", "disable"),
		}
		dsn = u.String()
	}
	driver := envOr("DATABASE_DRIVER", DriverPQ)
	return Config{
		DSN:              dsn,
		Driver:           driver,
		MaxIdleConns:     envInt("DATABASE_MAX_IDLE_CONNS", envInt("DATABASE_MIN_POOL_SIZE", 4)),
		MaxConns:         envInt("DATABASE_MAX_POOL_SIZE", 10),
		Timeout:          5 * time.Second,
		StatementTimeout: time.Duration(envInt("DATABASE_STATEMENT_TIMEOUT_MS", 0)) * time.Millisecond,
		TimeZone:         os.Getenv("DATABASE_TIMEZONE"),
		ClientEncoding:   os.Getenv("DATABASE_CLIENT_ENCODING"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Connect opens a pooled *sqlx.DB and verifies connectivity with a ping.
func Connect(cfg Config) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPQ
	}
	if driver != DriverPQ && driver != DriverPGX {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	dsn, err := withRuntimeParams(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	idle := cfg.MaxIdleConns
	if idle > maxConns {
		idle = maxConns
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(30 * time.Minute)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return sqlx.NewDb(db, driver), nil
}

// withRuntimeParams appends session settings to the DSN so every pooled
// connection gets them, not only the one that happened to run a SET.
// Both lib/pq and pgx forward unknown URL parameters as run-time parameters.
func withRuntimeParams(cfg Config) (string, error) {
	if cfg.StatementTimeout <= 0 && cfg.TimeZone == "" && cfg.ClientEncoding == "" {
		return cfg.DSN, nil
	}
	u, err := url.Parse(cfg.DSN)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("runtime parameters require a URL-style DSN")
	}
	q := u.Query()
	if cfg.StatementTimeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10))
	}
	if cfg.TimeZone != "" {
		q.Set("timezone", cfg.TimeZone)
	}
	if cfg.ClientEncoding != "" {
		q.Set("client_encoding", cfg.ClientEncoding)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
