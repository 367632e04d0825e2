package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations hold the ledger schema. Statements are idempotent so the
// set can run on every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		public_id  TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		role       TEXT NOT NULL,
		full_name  TEXT,
		email      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		public_id       TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users (public_id) ON DELETE CASCADE,
		description     TEXT NOT NULL DEFAULT '',
		assigned_price  BIGINT NOT NULL,
		completed_price BIGINT NOT NULL,
		status          TEXT NOT NULL,
		date            DATE NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS billing_cycles (
		public_id  TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users (public_id) ON DELETE CASCADE,
		start_date DATE NOT NULL,
		end_date   DATE NOT NULL,
		status     TEXT NOT NULL DEFAULT 'opened'
	)`,

	`CREATE INDEX IF NOT EXISTS billing_cycles_user_status_idx
		ON billing_cycles (user_id, status)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		public_id  TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE REFERENCES users (public_id) ON DELETE CASCADE,
		balance    BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// source_event_id is UNIQUE: one causing event can never produce two
	// ledger entries, no matter how often it is delivered.
	`CREATE TABLE IF NOT EXISTS transactions (
		public_id        TEXT PRIMARY KEY,
		source_event_id  TEXT NOT NULL UNIQUE,
		account_id       TEXT NOT NULL REFERENCES accounts (public_id),
		billing_cycle_id TEXT NOT NULL REFERENCES billing_cycles (public_id),
		type             TEXT NOT NULL,
		debit            BIGINT NOT NULL DEFAULT 0,
		credit           BIGINT NOT NULL DEFAULT 0,
		purpose          TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS transactions_account_idx
		ON transactions (account_id, created_at)`,

	// The ledger is append-only: rows are never updated or deleted.
	`CREATE OR REPLACE FUNCTION reject_ledger_change() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'ledger transactions are immutable';
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS transactions_immutable ON transactions`,

	`CREATE TRIGGER transactions_immutable
		BEFORE UPDATE OR DELETE ON transactions
		FOR EACH ROW EXECUTE FUNCTION reject_ledger_change()`,
}

// Migrate applies the ledger schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
