package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250308-110000",
		Description: "Add postback_events audit log",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS postback_events (
				id TEXT PRIMARY KEY,
				offer_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				link_code TEXT NOT NULL DEFAULT '',
				customer_id TEXT NOT NULL DEFAULT '',
				amount REAL NOT NULL DEFAULT 0,
				currency TEXT NOT NULL DEFAULT '',
				idempotency_key TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				error_message TEXT NOT NULL DEFAULT '',
				raw_query TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				FOREIGN KEY (offer_id) REFERENCES offers(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_postback_events_offer ON postback_events(offer_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_postback_events_status ON postback_events(status)`,
		},
	})
}
