// Package postgres implements the downstream store: a Postgres-backed,
// idempotent bulk-write layer for blocks, transactions, and logs.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/lib/pq"              // goose's migration runner dials through lib/pq's dialect

	"github.com/evmwatch/indexer/internal/infra/storage/postgres/sqlc"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL            string `yaml:"url"`
	MaxConns       int    `yaml:"max_conns"`
	MinConns       int    `yaml:"min_conns"`
	MigrationsPath string `yaml:"migrations_path"`
}

// DB wraps the Postgres connection pool and the query layer bound to it.
type DB struct {
	*sqlx.DB
	Queries *sqlc.Queries
}

// NewDB opens a pgx-backed connection pool, runs pending goose migrations,
// and returns a DB ready for use.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	sqlxDB, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	minConns := cfg.MinConns
	if minConns <= 0 {
		minConns = 2
	}

	sqlxDB.SetMaxOpenConns(maxConns)
	sqlxDB.SetMaxIdleConns(minConns)
	sqlxDB.SetConnMaxLifetime(time.Hour)
	sqlxDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlxDB.PingContext(ctx); err != nil {
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}

	migrationsPath := cfg.MigrationsPath
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := goose.Up(sqlxDB.DB, migrationsPath); err != nil {
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{
		DB:      sqlxDB,
		Queries: sqlc.New(sqlxDB.DB),
	}, nil
}

// Health checks whether the database is reachable.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
