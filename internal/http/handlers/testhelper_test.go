package handlers

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/betlinkr/betlinkr-api/internal/config"
	"github.com/betlinkr/betlinkr-api/internal/database/migrations"
	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                8080,
		BaseURL:             "http://localhost:8080",
		EncryptionKey:       []byte("0123456789abcdef0123456789abcdef"),
		CookieName:          "bl_attr",
		CookieSecure:        false,
		DefaultCookieDays:   90,
		RequestTimeout:      15 * time.Second,
		NotifierMaxAttempts: 5,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServices wires the full service stack against an in-memory
// database.
func setupTestServices(t *testing.T) (*service.Services, *repository.Repositories) {
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

	repos := repository.NewRepositories(db)
	services, err := service.NewServices(testConfig(), repos, testLogger())
	if err != nil {
		t.Fatalf("failed to create services: %v", err)
	}
	return services, repos
}

func seedTrackingFixture(t *testing.T, repos *repository.Repositories) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	affiliate := &models.Affiliate{
		ID: "aff-1", Email: "aff-1@example.com", Name: "Affiliate One",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repos.Affiliate.Create(ctx, affiliate); err != nil {
		t.Fatalf("failed to seed affiliate: %v", err)
	}

	offer := &models.Offer{
		ID: "offer-1", Name: "BetMax", WebsiteURL: "https://betmax.example.com",
		CommissionModel: models.CommissionHybrid, CPAAmount: 100, RevSharePercent: 25,
		CookieDurationDays: 90, PostbackToken: "tok-1", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repos.Offer.Create(ctx, offer); err != nil {
		t.Fatalf("failed to seed offer: %v", err)
	}

	link := &models.AffiliateLink{
		ID: "link-1", AffiliateID: "aff-1", OfferID: "offer-1", Code: "abc123",
		DestinationURL: "https://betmax.example.com/promo", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := repos.Link.Create(ctx, link); err != nil {
		t.Fatalf("failed to seed link: %v", err)
	}
}
