package sqlite

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type openConfig struct {
	maxOpenConns    int
	connMaxIdleTime time.Duration
	migrations      fs.FS
}

type Option func(*openConfig)

// WithMaxOpenConns caps the pool. sqlite serializes writers, so anything
// above 1 only helps readers on a WAL database.
func WithMaxOpenConns(n int) Option {
	return func(c *openConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}

// WithConnMaxIdleTime closes pooled connections unused for d.
func WithConnMaxIdleTime(d time.Duration) Option {
	return func(c *openConfig) { c.connMaxIdleTime = d }
}

// WithMigrations replaces the embedded schema. fsys must hold golang-migrate
// files at its root.
func WithMigrations(fsys fs.FS) Option {
	return func(c *openConfig) { c.migrations = fsys }
}

// NewSQLiteStorage opens dsn, brings its schema up to date and returns the
// repository. Pragmas belong in the dsn, e.g.
// "file:streamchat.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000".
func NewSQLiteStorage(dsn string, logger *zap.Logger, opts ...Option) (store.Repository, error) {
	cfg := openConfig{maxOpenConns: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.migrations == nil {
		sub, err := fs.Sub(migrations, "migrations")
		if err != nil {
			return nil, err
		}
		cfg.migrations = sub
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpenConns)
	if cfg.connMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.connMaxIdleTime)
	}

	version, err := migrateUp(db, cfg.migrations)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Database ready",
		zap.String("dsn", dsn),
		zap.Uint("schema_version", version),
		zap.Int("max_open_conns", cfg.maxOpenConns),
	)
	return NewSqliteRepository(db), nil
}

// migrateUp applies pending migrations and returns the resulting version.
// A database left dirty by an earlier failed run is an error.
func migrateUp(db *sqlx.DB, source fs.FS) (uint, error) {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return 0, err
	}
	src, err := iofs.New(source, ".")
	if err != nil {
		return 0, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return 0, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
