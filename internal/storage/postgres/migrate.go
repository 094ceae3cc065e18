package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist yet.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			account_number TEXT UNIQUE NOT NULL,
			holder_name TEXT NOT NULL DEFAULT '',
			username TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			balance NUMERIC(24,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			last_login_ip TEXT NOT NULL DEFAULT '',
			last_login_at TIMESTAMPTZ,
			last_login_device TEXT NOT NULL DEFAULT '',
			failed_login_attempts INT NOT NULL DEFAULT 0,
			locked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			reference_number TEXT UNIQUE NOT NULL,
			sender_id TEXT NOT NULL REFERENCES accounts(id),
			recipient_id TEXT REFERENCES accounts(id),
			amount NUMERIC(24,2) NOT NULL CHECK (amount > 0),
			created_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT 'OTHER',
			merchant_name TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			device_info TEXT NOT NULL DEFAULT '',
			is_fraud_suspected BOOLEAN NOT NULL DEFAULT FALSE,
			fraud_reason TEXT NOT NULL DEFAULT '',
			is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
			recurring_pattern TEXT NOT NULL DEFAULT '',
			is_disputed BOOLEAN NOT NULL DEFAULT FALSE,
			dispute_reason TEXT NOT NULL DEFAULT '',
			dispute_date TIMESTAMPTZ,
			dispute_status TEXT NOT NULL DEFAULT '',
			balance_after NUMERIC(24,2),
			idempotency_key TEXT NOT NULL DEFAULT ''
		);`,
		`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS idempotency_key TEXT NOT NULL DEFAULT '';`,
		`CREATE UNIQUE INDEX IF NOT EXISTS transactions_idempotency_idx
			ON transactions (sender_id, idempotency_key) WHERE idempotency_key <> '';`,
		`CREATE INDEX IF NOT EXISTS transactions_sender_created_idx ON transactions (sender_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (status);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			message TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			reference_id TEXT NOT NULL DEFAULT '',
			reference_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS notifications_account_idx ON notifications (account_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS notification_preferences (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id),
			enable_real_time BOOLEAN NOT NULL,
			enable_email BOOLEAN NOT NULL,
			email_for_transactions BOOLEAN NOT NULL,
			email_for_security BOOLEAN NOT NULL,
			email_for_system BOOLEAN NOT NULL,
			email_transaction_threshold NUMERIC(24,2) NOT NULL,
			enable_sms BOOLEAN NOT NULL,
			sms_for_transactions BOOLEAN NOT NULL,
			sms_for_security BOOLEAN NOT NULL,
			sms_for_system BOOLEAN NOT NULL,
			sms_transaction_threshold NUMERIC(24,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}
