package repository

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/betlinkr/betlinkr-api/internal/database/migrations"
	"github.com/betlinkr/betlinkr-api/internal/models"
)

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories backed by a fresh test database.
func setupTestRepos(t *testing.T) (*Repositories, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db), db
}

func testTime() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

// InsertTestAffiliate inserts an affiliate row with a zero balance.
func InsertTestAffiliate(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := testTime().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO affiliates (id, email, name, available_balance, total_earnings, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, ?, ?)`,
		id, id+"@example.com", "Affiliate "+id, now, now)
	if err != nil {
		t.Fatalf("failed to insert test affiliate: %v", err)
	}
}

// InsertTestOffer inserts an active offer with the given commission terms.
func InsertTestOffer(t *testing.T, db *sql.DB, id, token string, model models.CommissionModel, cpa, revshare float64) {
	t.Helper()
	now := testTime().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO offers (id, name, website_url, commission_model, cpa_amount,
		revshare_percent, cookie_duration_days, postback_token, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 90, ?, 1, ?, ?)`,
		id, "Offer "+id, "https://house.example.com", string(model), cpa, revshare, token, now, now)
	if err != nil {
		t.Fatalf("failed to insert test offer: %v", err)
	}
}

// InsertTestLink inserts an active tracking link with zeroed aggregates.
func InsertTestLink(t *testing.T, db *sql.DB, id, affiliateID, offerID, code string) {
	t.Helper()
	now := testTime().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO affiliate_links (id, affiliate_id, offer_id, code, destination_url,
		is_active, clicks, conversions, total_commission, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, 0, 0, ?, ?)`,
		id, affiliateID, offerID, code, "https://house.example.com/promo", now, now)
	if err != nil {
		t.Fatalf("failed to insert test link: %v", err)
	}
}

// insertConversionFixture seeds the affiliate/offer/link triple most
// conversion tests need.
func insertConversionFixture(t *testing.T, db *sql.DB) (affiliateID, offerID, linkID string) {
	t.Helper()
	InsertTestAffiliate(t, db, "aff-1")
	InsertTestOffer(t, db, "offer-1", "tok-offer-1", models.CommissionHybrid, 100, 25)
	InsertTestLink(t, db, "link-1", "aff-1", "offer-1", "abc123")
	return "aff-1", "offer-1", "link-1"
}
