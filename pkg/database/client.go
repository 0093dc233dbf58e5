// Package database provides the PostgreSQL connection pool and migration
// utilities for the highlight worker.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Client wraps the shared *sql.DB pool.
type Client struct {
	db *sql.DB
}

// DB returns the underlying pool for direct queries.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the connection pool. Call last during shutdown.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens the pool, verifies connectivity, and applies pending
// migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	client, err := NewClientFromDSN(ctx, cfg.DSN(), cfg.Database)
	if err != nil {
		return nil, err
	}

	client.db.SetMaxOpenConns(cfg.MaxOpenConns)
	client.db.SetMaxIdleConns(cfg.MaxIdleConns)
	client.db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	client.db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return client, nil
}

// NewClientFromDSN opens a pool over an explicit connection string and
// applies pending migrations. Tests hand it container-provided DSNs.
func NewClientFromDSN(ctx context.Context, dsn, dbName string) (*Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, dbName); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db}, nil
}

// runMigrations applies the embedded SQL migrations with golang-migrate.
func runMigrations(db *sql.DB, dbName string) error {
	hasMigrations, err := hasEmbeddedMigrations()
	if err != nil {
		return fmt.Errorf("failed to check embedded migrations: %w", err)
	}
	if !hasMigrations {
		return errors.New("no embedded migration files found — binary may be built incorrectly")
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the database
	// driver, which calls db.Close() on the shared pool.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return true, nil
		}
	}
	return false, nil
}
