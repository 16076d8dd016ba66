package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

func TestOfferCreateAndGetByToken(t *testing.T) {
	repos, _ := setupTestRepos(t)
	ctx := context.Background()

	offer := &models.Offer{
		ID:                 "offer-1",
		Name:               "BetMax Casino",
		WebsiteURL:         "https://betmax.example.com",
		CommissionModel:    models.CommissionHybrid,
		CPAAmount:          150,
		RevSharePercent:    30,
		CookieDurationDays: 60,
		PostbackToken:      "tok-secret",
		IsActive:           true,
		CreatedAt:          testTime(),
		UpdatedAt:          testTime(),
	}
	if err := repos.Offer.Create(ctx, offer); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.Offer.GetByToken(ctx, "tok-secret")
	if err != nil {
		t.Fatalf("GetByToken() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByToken() = nil, want offer")
	}
	if got.ID != "offer-1" {
		t.Errorf("ID = %s, want offer-1", got.ID)
	}
	if got.CommissionModel != models.CommissionHybrid {
		t.Errorf("CommissionModel = %s, want hybrid", got.CommissionModel)
	}
	if got.CookieDurationDays != 60 {
		t.Errorf("CookieDurationDays = %d, want 60", got.CookieDurationDays)
	}

	missing, err := repos.Offer.GetByToken(ctx, "wrong-token")
	if err != nil {
		t.Fatalf("GetByToken() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetByToken(wrong) = %v, want nil", missing)
	}
}

func TestOfferRotateToken(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	InsertTestOffer(t, db, "offer-1", "tok-old", models.CommissionCPA, 100, 0)

	if err := repos.Offer.RotateToken(ctx, "offer-1", "tok-new"); err != nil {
		t.Fatalf("RotateToken() error = %v", err)
	}

	// Old token stops resolving immediately
	old, _ := repos.Offer.GetByToken(ctx, "tok-old")
	if old != nil {
		t.Error("old token still resolves after rotation")
	}
	got, _ := repos.Offer.GetByToken(ctx, "tok-new")
	if got == nil || got.ID != "offer-1" {
		t.Fatalf("GetByToken(new) = %v, want offer-1", got)
	}

	if err := repos.Offer.RotateToken(ctx, "no-such-offer", "tok-x"); err != sql.ErrNoRows {
		t.Errorf("RotateToken() on missing offer = %v, want sql.ErrNoRows", err)
	}
}

func TestOfferList(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	InsertTestOffer(t, db, "offer-1", "tok-1", models.CommissionCPA, 100, 0)
	InsertTestOffer(t, db, "offer-2", "tok-2", models.CommissionRevShare, 0, 25)

	offers, err := repos.Offer.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("len(offers) = %d, want 2", len(offers))
	}
}

func TestOfferUpdate(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	InsertTestOffer(t, db, "offer-1", "tok-1", models.CommissionCPA, 100, 0)

	offer, _ := repos.Offer.GetByID(ctx, "offer-1")
	offer.Name = "Renamed"
	offer.CPAAmount = 175
	offer.IsActive = false
	offer.UpdatedAt = time.Now().UTC()
	if err := repos.Offer.Update(ctx, offer); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := repos.Offer.GetByID(ctx, "offer-1")
	if got.Name != "Renamed" {
		t.Errorf("Name = %s, want Renamed", got.Name)
	}
	if got.CPAAmount != 175 {
		t.Errorf("CPAAmount = %f, want 175", got.CPAAmount)
	}
	if got.IsActive {
		t.Error("IsActive = true, want false")
	}
	// Token survives updates; only RotateToken changes it
	if got.PostbackToken != "tok-1" {
		t.Errorf("PostbackToken = %s, want tok-1", got.PostbackToken)
	}
}
