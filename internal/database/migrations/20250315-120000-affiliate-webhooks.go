package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250315-120000",
		Description: "Add affiliate_webhooks and webhook_deliveries tables",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS affiliate_webhooks (
				id TEXT PRIMARY KEY,
				affiliate_id TEXT NOT NULL,
				name TEXT NOT NULL,
				url TEXT NOT NULL,
				secret_encrypted TEXT NOT NULL DEFAULT '',
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(affiliate_id, name),
				FOREIGN KEY (affiliate_id) REFERENCES affiliates(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_affiliate_webhooks_affiliate ON affiliate_webhooks(affiliate_id, is_active)`,

			`CREATE TABLE IF NOT EXISTS webhook_deliveries (
				id TEXT PRIMARY KEY,
				webhook_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				status_code INTEGER,
				error_message TEXT NOT NULL DEFAULT '',
				attempt_number INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 5,
				next_retry_at TEXT,
				created_at TEXT NOT NULL,
				delivered_at TEXT,
				FOREIGN KEY (webhook_id) REFERENCES affiliate_webhooks(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_status ON webhook_deliveries(status, next_retry_at)`,
			`CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_webhook ON webhook_deliveries(webhook_id)`,
		},
	})
}
