package sqlite

// Migrations returns the schema migration statements. Each string is a
// single SQL statement; SQLite executes one at a time.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id           TEXT PRIMARY KEY,
			external_id  TEXT NOT NULL UNIQUE,
			provider     TEXT NOT NULL,
			amount_minor INTEGER NOT NULL DEFAULT 0,
			currency     TEXT NOT NULL DEFAULT '',
			occurred_at  TEXT NOT NULL,
			person_name  TEXT NOT NULL DEFAULT '',
			product_type TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			confidence   TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			reference    TEXT NOT NULL DEFAULT '',
			metadata     TEXT,
			raw          TEXT,
			person_id    TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_person ON transactions(person_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_occurred ON transactions(occurred_at)`,

		`CREATE TABLE IF NOT EXISTS persons (
			id                    TEXT PRIMARY KEY,
			first_name            TEXT NOT NULL DEFAULT '',
			last_name             TEXT NOT NULL DEFAULT '',
			email                 TEXT NOT NULL DEFAULT '',
			phone                 TEXT NOT NULL DEFAULT '',
			phone_digits          TEXT NOT NULL DEFAULT '',
			member_id             TEXT NOT NULL DEFAULT '',
			customer_id           TEXT NOT NULL DEFAULT '',
			source                TEXT NOT NULL DEFAULT '',
			tags                  TEXT,
			stage                 TEXT NOT NULL DEFAULT 'prospect',
			ltv_all_minor             INTEGER NOT NULL DEFAULT 0,
			ltv_ads_minor             INTEGER NOT NULL DEFAULT 0,
			ltv_pt_minor              INTEGER NOT NULL DEFAULT 0,
			ltv_classes_minor         INTEGER NOT NULL DEFAULT 0,
			ltv_six_week_minor        INTEGER NOT NULL DEFAULT 0,
			ltv_online_coaching_minor INTEGER NOT NULL DEFAULT 0,
			ltv_community_minor       INTEGER NOT NULL DEFAULT 0,
			ltv_corporate_minor       INTEGER NOT NULL DEFAULT 0,
			created_at            TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_email ON persons(email)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_member ON persons(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_customer ON persons(customer_id)`,

		`CREATE TABLE IF NOT EXISTS match_queue (
			id             TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			reason         TEXT NOT NULL,
			candidate_ids  TEXT,
			created_at     TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS counterparty_mappings (
			provider  TEXT NOT NULL,
			key       TEXT NOT NULL,
			person_id TEXT NOT NULL,
			PRIMARY KEY (provider, key)
		)`,
	}
}
