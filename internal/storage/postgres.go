package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenBusSpoofer/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Verify connectivity before handing out the client
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS telemetry_frames (
	id           BIGSERIAL PRIMARY KEY,
	received_at  TIMESTAMPTZ NOT NULL,
	topic        TEXT NOT NULL,
	raw_register TEXT NOT NULL,
	register     SMALLINT,
	line         TEXT NOT NULL,
	stored       BYTEA,
	accepted     BOOLEAN NOT NULL
);
ALTER TABLE telemetry_frames ALTER COLUMN register DROP NOT NULL;
CREATE INDEX IF NOT EXISTS telemetry_frames_register_idx
	ON telemetry_frames (register, received_at DESC);

CREATE TABLE IF NOT EXISTS table_reloads (
	id         BIGSERIAL PRIMARY KEY,
	loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	table_name TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	entries    INTEGER NOT NULL,
	success    BOOLEAN NOT NULL,
	error      TEXT
);
`

// EnsureSchema creates the audit tables if they do not exist
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
