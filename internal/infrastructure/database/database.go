package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/posfleet-core/internal/schema"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// fileName is the SQLite file created inside the application data directory.
	fileName = "posfleet.db"

	// memoryPath selects a private in-memory SQLite database.
	memoryPath = ":memory:"
)

// Sentinel errors. Every startup failure wraps one of these so the caller can
// tell a configuration problem from an unreachable server.
var (
	ErrConfig      = errors.New("database: invalid configuration")
	ErrNoDataDir   = errors.New("database: cannot resolve application data directory")
	ErrUnreachable = errors.New("database: cannot connect")
	ErrBootstrap   = errors.New("database: schema bootstrap failed")
)

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Embedded forces SQLite even when URL is set.
	Embedded bool

	// URL is the PostgreSQL connection string. Empty selects SQLite.
	URL string

	// Path is the SQLite file. Empty resolves to the per-user application
	// data directory. ":memory:" opens a private in-memory database.
	Path string

	// AppName is the application data subdirectory name.
	AppName string

	// WALMode enables Write-Ahead Logging on SQLite.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a SQLite lock (seconds).
	BusyTimeout int

	// MaxOpenConns and MaxIdleConns size the PostgreSQL pool.
	MaxOpenConns int
	MaxIdleConns int

	// QueryTimeout bounds each storage call. Zero disables the bound.
	QueryTimeout time.Duration
}

// Selection is the outcome of Resolve: which backend and where.
type Selection struct {
	Backend schema.Backend
	Path    string
	URL     string
}

// String describes the selection without credentials.
func (s Selection) String() string {
	if s.Backend == schema.BackendSQLite {
		return "sqlite:" + s.Path
	}
	if u, err := url.Parse(s.URL); err == nil && u.Scheme != "" {
		return "postgres:" + u.Redacted()
	}
	return "postgres:(dsn)"
}

// Resolve picks exactly one backend from cfg without touching the network
// or the filesystem beyond locating the data directory.
func Resolve(cfg Config) (Selection, error) {
	if cfg.Embedded || strings.TrimSpace(cfg.URL) == "" {
		path := cfg.Path
		if path == "" {
			p, err := AppDataPath(cfg.AppName)
			if err != nil {
				return Selection{}, err
			}
			path = p
		}
		return Selection{Backend: schema.BackendSQLite, Path: path}, nil
	}

	dsn := strings.TrimSpace(cfg.URL)
	if strings.Contains(dsn, "://") {
		if _, err := pq.ParseURL(dsn); err != nil {
			return Selection{}, fmt.Errorf("%w: malformed connection string: %v", ErrConfig, err)
		}
	} else if !strings.Contains(dsn, "=") {
		return Selection{}, fmt.Errorf("%w: connection string is neither a postgres:// URL nor key=value pairs", ErrConfig)
	}
	return Selection{Backend: schema.BackendPostgres, URL: dsn}, nil
}

// AppDataPath returns the SQLite file location under the platform's per-user
// configuration directory (XDG_CONFIG_HOME, ~/Library/Application Support,
// or %AppData%).
func AppDataPath(appName string) (string, error) {
	if appName == "" {
		appName = "PosFleet"
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDataDir, err)
	}
	return filepath.Join(base, appName, fileName), nil
}

// DB wraps a sqlx.DB with the active backend's dialect.
// Exactly one DB is opened per process and shared by every request.
type DB struct {
	*sqlx.DB
	sel          Selection
	dialect      schema.Dialect
	queryTimeout time.Duration
}

// Open resolves the backend, connects, and bootstraps the schema.
//
// On any failure the handle is closed and the returned error names the cause
// (directory, permission, connection string, unreachable server, DDL). The
// caller must not serve requests after an error.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	sel, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	var sqlxDB *sqlx.DB
	switch sel.Backend {
	case schema.BackendSQLite:
		sqlxDB, err = openSQLite(sel.Path, cfg)
	default:
		sqlxDB, err = openPostgres(sel.URL, cfg)
	}
	if err != nil {
		return nil, err
	}

	dialect, _ := schema.DialectFor(sel.Backend)
	db := &DB{
		DB:           sqlxDB,
		sel:          sel,
		dialect:      dialect,
		queryTimeout: cfg.QueryTimeout,
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w (%s): %v", ErrUnreachable, sel, err)
	}

	if err := db.Bootstrap(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	if sel.Backend == schema.BackendSQLite && sel.Path != memoryPath {
		_ = os.Chmod(sel.Path, filePermissions) //nolint:errcheck // Permissions are advisory on some platforms
	}

	return db, nil
}

func openSQLite(path string, cfg Config) (*sqlx.DB, error) {
	if path != memoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("%w: creating database directory %s: %v", ErrConfig, dir, err)
		}
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode && path != memoryPath {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sqlx.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrConfig, path, err)
	}

	// One connection serialises writes and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if path != memoryPath {
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(connMaxIdleTime)
	}
	return db, nil
}

func openPostgres(dsn string, cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)
	return db, nil
}

// Close closes the database connection gracefully.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Backend returns the active backend.
func (db *DB) Backend() schema.Backend {
	return db.sel.Backend
}

// Dialect returns the schema dialect of the active backend.
func (db *DB) Dialect() schema.Dialect {
	return db.dialect
}

// Path returns the SQLite file path, or "" for PostgreSQL.
func (db *DB) Path() string {
	return db.sel.Path
}

// Selection returns how the backend was chosen.
func (db *DB) Selection() Selection {
	return db.sel
}

// WithTimeout derives a context bounded by the configured query timeout.
func (db *DB) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.queryTimeout)
}

// HealthCheck verifies the database is accessible and functioning.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction, committing if fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Tables lists the user tables present in the database.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	var q string
	switch db.sel.Backend {
	case schema.BackendSQLite:
		q = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		q = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}
	var names []string
	if err := db.SelectContext(ctx, &names, q); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return names, nil
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}
