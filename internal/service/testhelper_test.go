package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/betlinkr/betlinkr-api/internal/crypto"
	"github.com/betlinkr/betlinkr-api/internal/database/migrations"
	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	return enc
}

// setupTestRepos creates all repositories backed by a fresh in-memory database.
func setupTestRepos(t *testing.T) *repository.Repositories {
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

	return repository.NewRepositories(db)
}

func seedAffiliate(t *testing.T, repos *repository.Repositories, id string) *models.Affiliate {
	t.Helper()
	now := time.Now().UTC()
	a := &models.Affiliate{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "Affiliate " + id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Affiliate.Create(context.Background(), a); err != nil {
		t.Fatalf("failed to seed affiliate: %v", err)
	}
	return a
}

func seedOffer(t *testing.T, repos *repository.Repositories, id, token string, model models.CommissionModel, cpa, revshare float64) *models.Offer {
	t.Helper()
	now := time.Now().UTC()
	o := &models.Offer{
		ID:                 id,
		Name:               "Offer " + id,
		WebsiteURL:         "https://house.example.com",
		CommissionModel:    model,
		CPAAmount:          cpa,
		RevSharePercent:    revshare,
		CookieDurationDays: 90,
		PostbackToken:      token,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := repos.Offer.Create(context.Background(), o); err != nil {
		t.Fatalf("failed to seed offer: %v", err)
	}
	return o
}

func seedLink(t *testing.T, repos *repository.Repositories, id, affiliateID, offerID, code string) *models.AffiliateLink {
	t.Helper()
	now := time.Now().UTC()
	l := &models.AffiliateLink{
		ID:             id,
		AffiliateID:    affiliateID,
		OfferID:        offerID,
		Code:           code,
		DestinationURL: "https://house.example.com/promo",
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repos.Link.Create(context.Background(), l); err != nil {
		t.Fatalf("failed to seed link: %v", err)
	}
	return l
}

func registrationEvent(offerID, linkCode, customerID string) *models.Event {
	now := time.Now().UTC()
	return &models.Event{
		Type:       models.EventRegistration,
		OfferID:    offerID,
		LinkCode:   linkCode,
		CustomerID: customerID,
		OccurredAt: now,
		ReceivedAt: now,
	}
}

func depositEvent(offerID, linkCode, customerID string, amount float64, externalRef string) *models.Event {
	now := time.Now().UTC()
	return &models.Event{
		Type:        models.EventDeposit,
		OfferID:     offerID,
		LinkCode:    linkCode,
		CustomerID:  customerID,
		Amount:      amount,
		Currency:    "USD",
		ExternalRef: externalRef,
		OccurredAt:  now,
		ReceivedAt:  now,
	}
}
