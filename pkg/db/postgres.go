// Package db owns the PostgreSQL connection pool and schema migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Pool limits: a single-server MCP process with background pipelines. The
// pool is shared by every pipeline and the retrieval engine; the database is
// the serialization point.
const (
	maxConns        = 10
	minConns        = 1
	connIdleTimeout = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// NewPool connects a pgx pool and registers the pgvector types on every
// connection.
func NewPool(ctx context.Context, databaseURL string, logger *log.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database URL")
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = connIdleTimeout
	cfg.MaxConnLifetime = connMaxLifetime
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging database")
	}

	logger.Info("Connected to PostgreSQL", "max_conns", maxConns)
	return pool, nil
}

// ValidatePGVector fails fast when the vector extension is missing. The
// migrations create it, but a restricted role may not be allowed to.
func ValidatePGVector(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	row := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')")
	if err := row.Scan(&exists); err != nil {
		return errors.Wrap(err, "checking pgvector extension")
	}
	if !exists {
		return errors.New("pgvector extension is not installed")
	}
	return nil
}

// RunMigrations applies pending goose migrations from the embedded FS.
func RunMigrations(databaseURL string, logger *log.Logger) error {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return errors.Wrap(err, "opening migration connection")
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error("Failed to close migration connection", "error", err)
		}
	}()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return errors.Wrap(err, "running migrations")
	}

	logger.Info("Migrations completed")
	return nil
}

// MigrationStatus prints the goose status table for the migrate CLI.
func MigrationStatus(databaseURL string) error {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return errors.Wrap(err, "opening migration connection")
	}
	defer func() { _ = sqlDB.Close() }()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}
	return goose.Status(sqlDB, "migrations")
}
