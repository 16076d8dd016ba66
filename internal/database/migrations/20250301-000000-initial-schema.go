package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250301-000000",
		Description: "Initial schema: affiliates, offers, links, clicks, registrations, deposits",
		Up: []string{
			// Affiliates are owned by the dashboard service; this API only
			// credits available_balance.
			`CREATE TABLE IF NOT EXISTS affiliates (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				available_balance REAL NOT NULL DEFAULT 0,
				total_earnings REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS offers (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				website_url TEXT NOT NULL,
				commission_model TEXT NOT NULL,
				cpa_amount REAL NOT NULL DEFAULT 0,
				revshare_percent REAL NOT NULL DEFAULT 0,
				cookie_duration_days INTEGER NOT NULL DEFAULT 90,
				postback_token TEXT NOT NULL UNIQUE,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS affiliate_links (
				id TEXT PRIMARY KEY,
				affiliate_id TEXT NOT NULL,
				offer_id TEXT NOT NULL,
				code TEXT NOT NULL UNIQUE,
				destination_url TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				clicks INTEGER NOT NULL DEFAULT 0,
				conversions INTEGER NOT NULL DEFAULT 0,
				total_commission REAL NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				FOREIGN KEY (affiliate_id) REFERENCES affiliates(id),
				FOREIGN KEY (offer_id) REFERENCES offers(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_links_affiliate ON affiliate_links(affiliate_id)`,
			`CREATE INDEX IF NOT EXISTS idx_links_offer ON affiliate_links(offer_id)`,

			`CREATE TABLE IF NOT EXISTS clicks (
				id TEXT PRIMARY KEY,
				affiliate_id TEXT NOT NULL,
				link_id TEXT NOT NULL,
				client_ip TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				referrer TEXT NOT NULL DEFAULT '',
				converted INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				FOREIGN KEY (link_id) REFERENCES affiliate_links(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_clicks_link ON clicks(link_id)`,
			`CREATE INDEX IF NOT EXISTS idx_clicks_affiliate ON clicks(affiliate_id)`,

			// The UNIQUE constraints are the idempotency mechanism: a retried
			// postback hits the constraint instead of creating a second row.
			`CREATE TABLE IF NOT EXISTS registrations (
				id TEXT PRIMARY KEY,
				affiliate_id TEXT NOT NULL,
				offer_id TEXT NOT NULL,
				link_id TEXT NOT NULL,
				customer_id TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				deposited INTEGER NOT NULL DEFAULT 0,
				cpa_commission REAL NOT NULL DEFAULT 0,
				idempotency_key TEXT NOT NULL UNIQUE,
				created_at TEXT NOT NULL,
				UNIQUE(offer_id, customer_id),
				FOREIGN KEY (offer_id) REFERENCES offers(id),
				FOREIGN KEY (link_id) REFERENCES affiliate_links(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_registrations_affiliate ON registrations(affiliate_id)`,
			`CREATE INDEX IF NOT EXISTS idx_registrations_link ON registrations(link_id)`,

			// registration_id is nullable: deposits may arrive before their
			// registration postback and are matched by (offer_id, customer_id).
			`CREATE TABLE IF NOT EXISTS deposits (
				id TEXT PRIMARY KEY,
				registration_id TEXT,
				affiliate_id TEXT NOT NULL,
				offer_id TEXT NOT NULL,
				link_id TEXT NOT NULL,
				customer_id TEXT NOT NULL,
				amount REAL NOT NULL,
				currency TEXT NOT NULL DEFAULT '',
				commission REAL NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'confirmed',
				external_ref TEXT NOT NULL DEFAULT '',
				idempotency_key TEXT NOT NULL UNIQUE,
				created_at TEXT NOT NULL,
				FOREIGN KEY (registration_id) REFERENCES registrations(id) ON DELETE SET NULL,
				FOREIGN KEY (offer_id) REFERENCES offers(id),
				FOREIGN KEY (link_id) REFERENCES affiliate_links(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_deposits_affiliate ON deposits(affiliate_id)`,
			`CREATE INDEX IF NOT EXISTS idx_deposits_link ON deposits(link_id)`,
			`CREATE INDEX IF NOT EXISTS idx_deposits_customer ON deposits(offer_id, customer_id)`,
		},
	})
}
