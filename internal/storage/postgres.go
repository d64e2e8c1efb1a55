package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{&sqlStore{db: db, logger: logger, dialect: postgresDialect}}, nil
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Split requests
	CREATE TABLE IF NOT EXISTS split_requests (
		id TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		total_amount BIGINT NOT NULL CHECK (total_amount > 0),
		status TEXT NOT NULL,
		dao_verification_required BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	-- Split lines, owned by their request
	CREATE TABLE IF NOT EXISTS split_lines (
		request_id TEXT NOT NULL REFERENCES split_requests(id) ON DELETE CASCADE,
		line_index INTEGER NOT NULL,
		recipient TEXT NOT NULL,
		share_bp INTEGER NOT NULL CHECK (share_bp > 0 AND share_bp <= 10000),
		amount BIGINT NOT NULL,
		state TEXT NOT NULL DEFAULT 'unpaid',
		paid_at TIMESTAMPTZ,
		PRIMARY KEY (request_id, line_index),
		UNIQUE (request_id, recipient)
	);

	-- DAO verification records
	CREATE TABLE IF NOT EXISTS dao_records (
		campaign_id TEXT NOT NULL,
		address TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (campaign_id, address)
	);

	-- Recurring payment plans
	CREATE TABLE IF NOT EXISTS recurring_plans (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		payer TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		amount BIGINT NOT NULL DEFAULT 0,
		interval_seconds BIGINT NOT NULL,
		next_due_at TIMESTAMPTZ NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);

	-- Delegation deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		version TEXT NOT NULL,
		delegation_manager TEXT NOT NULL,
		owner TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (chain_id, address)
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_split_requests_creator ON split_requests(creator);
	CREATE INDEX IF NOT EXISTS idx_split_requests_campaign ON split_requests(campaign_id);
	CREATE INDEX IF NOT EXISTS idx_split_requests_created ON split_requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_dao_records_status ON dao_records(status);
	CREATE INDEX IF NOT EXISTS idx_recurring_plans_due ON recurring_plans(active, next_due_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete", "backend", s.dialect.name)
	return nil
}
