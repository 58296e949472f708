package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/articleforge/articleforge/internal/job/model"
)

// PGConfig holds PostgreSQL connection configuration.
type PGConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPGPool creates a new PostgreSQL connection pool.
func NewPGPool(ctx context.Context, cfg PGConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = int32(cfg.MaxConnections)
	config.MinConns = int32(cfg.MinConnections)
	config.MaxConnLifetime = cfg.MaxConnLifetime
	config.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Postgres implements Store on a single key/value table. Job records
// are opaque JSON values here just as they are in Redis; the relational
// engine only provides durability and the keyed upsert.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed store and ensures its schema.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS job_records (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create job_records table: %w", err)
	}
	return nil
}

// Put upserts the record under its id.
func (s *Postgres) Put(ctx context.Context, rec *model.Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, Key(rec.ID), data); err != nil {
		return fmt.Errorf("failed to store job %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves the record for the id.
func (s *Postgres) Get(ctx context.Context, id string) (*model.Record, error) {
	query := `SELECT value FROM job_records WHERE key = $1`

	var data []byte
	err := s.pool.QueryRow(ctx, query, Key(id)).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return model.Decode(data)
}

// Close releases the underlying pool.
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
