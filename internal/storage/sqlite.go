package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// foreign_keys and busy_timeout are per-connection, so they go in the DSN
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{&sqlStore{db: db, logger: logger, dialect: sqliteDialect}}, nil
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Split requests
	CREATE TABLE IF NOT EXISTS split_requests (
		id TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		campaign_id TEXT NOT NULL DEFAULT '',
		total_amount INTEGER NOT NULL CHECK (total_amount > 0),
		status TEXT NOT NULL,
		dao_verification_required INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Split lines, owned by their request
	CREATE TABLE IF NOT EXISTS split_lines (
		request_id TEXT NOT NULL REFERENCES split_requests(id) ON DELETE CASCADE,
		line_index INTEGER NOT NULL,
		recipient TEXT NOT NULL,
		share_bp INTEGER NOT NULL CHECK (share_bp > 0 AND share_bp <= 10000),
		amount INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'unpaid',
		paid_at TEXT,
		PRIMARY KEY (request_id, line_index),
		UNIQUE (request_id, recipient)
	);

	-- DAO verification records
	CREATE TABLE IF NOT EXISTS dao_records (
		campaign_id TEXT NOT NULL,
		address TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (campaign_id, address)
	);

	-- Recurring payment plans
	CREATE TABLE IF NOT EXISTS recurring_plans (
		id TEXT PRIMARY KEY,
		campaign_id TEXT NOT NULL,
		payer TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0,
		interval_seconds INTEGER NOT NULL,
		next_due_at TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- Delegation deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		version TEXT NOT NULL,
		delegation_manager TEXT NOT NULL,
		owner TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (chain_id, address)
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_used_at TEXT,
		revoked_at TEXT
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
