package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS          = 5000
	defaultMaxOpenConns    = 1
	defaultMaxIdleConns    = 1
	defaultConnMaxLifetime = 5 * time.Minute

	maxOpenConnsEnvKey    = "BLOBGUARD_DB_MAX_OPEN_CONNS"
	connMaxLifetimeEnvKey = "BLOBGUARD_DB_CONN_MAX_LIFETIME"

	timeLayout = time.RFC3339Nano
)

// Store wraps the SQLite vault of tracked blobs.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MigrationPlan reports schema migration status for the open vault.
func (s *Store) MigrationPlan() (*MigrationStatus, error) {
	return MigrationPlan(s.db)
}

// poolSettings sizes the connection pool. SQLite serializes writers, so
// one open connection is the default.
type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func poolSettingsFromEnv() poolSettings {
	settings := poolSettings{
		maxOpen:     positiveIntEnv(maxOpenConnsEnvKey, defaultMaxOpenConns),
		maxIdle:     defaultMaxIdleConns,
		maxLifetime: positiveDurationEnv(connMaxLifetimeEnvKey, defaultConnMaxLifetime),
	}
	if settings.maxIdle > settings.maxOpen {
		settings.maxIdle = settings.maxOpen
	}
	return settings
}

var vaultPragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA foreign_keys = ON;",
	fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
}

func configureDB(db *sql.DB) error {
	for _, stmt := range vaultPragmas {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply %q: %w", stmt, err)
		}
	}

	pool := poolSettingsFromEnv()
	db.SetMaxOpenConns(pool.maxOpen)
	db.SetMaxIdleConns(pool.maxIdle)
	db.SetConnMaxLifetime(pool.maxLifetime)
	return nil
}

func sqliteDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	// Per-connection pragmas survive pool recycling.
	u.RawQuery = fmt.Sprintf("_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", busyTimeoutMS)
	return u.String(), nil
}

// positiveIntEnv returns the env value when it parses as a positive int.
func positiveIntEnv(key string, fallback int) int {
	if value, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && value > 0 {
		return value
	}
	return fallback
}

// positiveDurationEnv accepts a Go duration or a bare number of seconds.
func positiveDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
