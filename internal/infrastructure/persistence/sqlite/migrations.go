package sqlite

import "database/sql"

// RunMigrations creates the engine's tables if they do not yet exist.
// State machines and amounts are stored as JSON blobs (state_json,
// amount_json) rather than normalised columns: the domain packages own
// their own invariants, and the store is a leaf that just round-trips
// whatever they hand it.
func RunMigrations(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			client_order_id TEXT NOT NULL,
			state TEXT NOT NULL,
			frequency_millis INTEGER NOT NULL,
			amount_json TEXT NOT NULL,
			counterparty_url TEXT NOT NULL,
			memo TEXT NOT NULL,
			sending_priority_json TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			first_payment_at DATETIME NOT NULL,
			last_payment_at DATETIME,
			removed INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS outgoing_payments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			client_order_id TEXT NOT NULL,
			counterparty_url TEXT NOT NULL,
			memo TEXT NOT NULL,
			sending_priority_json TEXT NOT NULL,
			amount_json TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			execute_at DATETIME NOT NULL,
			state_json TEXT NOT NULL,
			plugin_update_json TEXT,
			removed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_payments_order_id ON outgoing_payments (order_id);`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_payments_client_order_id ON outgoing_payments (client_order_id);`,

		`CREATE TABLE IF NOT EXISTS incoming_payments (
			id TEXT PRIMARY KEY,
			client_order_id TEXT NOT NULL,
			memo TEXT NOT NULL,
			amount_json TEXT,
			expected_amount_json TEXT NOT NULL,
			internal_state TEXT NOT NULL,
			received_by_plugins_json TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			removed INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incoming_payments_client_order_id ON incoming_payments (client_order_id);`,

		`CREATE TABLE IF NOT EXISTS outbox_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			published INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
