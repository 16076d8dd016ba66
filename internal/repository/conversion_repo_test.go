package repository

import (
	"context"
	"math"
	"testing"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

func registrationFixture(affiliateID, offerID, linkID string) *models.Registration {
	ev := &models.Event{
		Type:       models.EventRegistration,
		OfferID:    offerID,
		CustomerID: "cust-1",
	}
	return &models.Registration{
		ID:             "reg-1",
		AffiliateID:    affiliateID,
		OfferID:        offerID,
		LinkID:         linkID,
		CustomerID:     "cust-1",
		Email:          "player@example.com",
		CPACommission:  100,
		IdempotencyKey: ev.IdempotencyKey(),
		CreatedAt:      testTime(),
	}
}

func TestCreateRegistration(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}

	got, err := repos.Conversion.GetRegistrationByCustomer(ctx, offerID, "cust-1")
	if err != nil {
		t.Fatalf("GetRegistrationByCustomer() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetRegistrationByCustomer() = nil, want registration")
	}
	if got.ID != "reg-1" {
		t.Errorf("ID = %s, want reg-1", got.ID)
	}
	if got.CPACommission != 100 {
		t.Errorf("CPACommission = %f, want 100", got.CPACommission)
	}
	if got.Deposited {
		t.Error("Deposited = true, want false")
	}

	// Ledger moved with the row
	link, err := repos.Link.GetByID(ctx, linkID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if link.Conversions != 1 {
		t.Errorf("link.Conversions = %d, want 1", link.Conversions)
	}
	if link.TotalCommission != 100 {
		t.Errorf("link.TotalCommission = %f, want 100", link.TotalCommission)
	}

	aff, err := repos.Affiliate.GetByID(ctx, affiliateID)
	if err != nil {
		t.Fatalf("Affiliate.GetByID() error = %v", err)
	}
	if aff.AvailableBalance != 100 {
		t.Errorf("AvailableBalance = %f, want 100", aff.AvailableBalance)
	}
	if aff.TotalEarnings != 100 {
		t.Errorf("TotalEarnings = %f, want 100", aff.TotalEarnings)
	}
}

func TestCreateRegistrationDuplicate(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}

	// Replay with a fresh row ID: the idempotency key collides
	replay := registrationFixture(affiliateID, offerID, linkID)
	replay.ID = "reg-2"
	if err := repos.Conversion.CreateRegistration(ctx, replay); err != ErrDuplicate {
		t.Fatalf("CreateRegistration() replay error = %v, want ErrDuplicate", err)
	}

	// The failed replay must not have touched the ledger
	link, err := repos.Link.GetByID(ctx, linkID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if link.Conversions != 1 {
		t.Errorf("link.Conversions after replay = %d, want 1", link.Conversions)
	}
	if link.TotalCommission != 100 {
		t.Errorf("link.TotalCommission after replay = %f, want 100", link.TotalCommission)
	}

	aff, _ := repos.Affiliate.GetByID(ctx, affiliateID)
	if aff.AvailableBalance != 100 {
		t.Errorf("AvailableBalance after replay = %f, want 100", aff.AvailableBalance)
	}
}

func TestCreateRegistrationSameCustomerDifferentKey(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}

	// Same (offer, customer) under a different idempotency key still collides
	// on the customer uniqueness constraint.
	second := registrationFixture(affiliateID, offerID, linkID)
	second.ID = "reg-2"
	second.IdempotencyKey = "some-other-key"
	if err := repos.Conversion.CreateRegistration(ctx, second); err != ErrDuplicate {
		t.Fatalf("CreateRegistration() error = %v, want ErrDuplicate", err)
	}
}

func depositFixture(affiliateID, offerID, linkID string, regID *string) *models.Deposit {
	ev := &models.Event{
		Type:        models.EventDeposit,
		OfferID:     offerID,
		CustomerID:  "cust-1",
		Amount:      200,
		ExternalRef: "txn-1",
		OccurredAt:  testTime(),
	}
	return &models.Deposit{
		ID:             "dep-1",
		RegistrationID: regID,
		AffiliateID:    affiliateID,
		OfferID:        offerID,
		LinkID:         linkID,
		CustomerID:     "cust-1",
		Amount:         200,
		Currency:       "USD",
		Commission:     50,
		Status:         models.DepositConfirmed,
		ExternalRef:    "txn-1",
		IdempotencyKey: ev.IdempotencyKey(),
		CreatedAt:      testTime(),
	}
}

func TestCreateDeposit(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}

	dep := depositFixture(affiliateID, offerID, linkID, &reg.ID)
	if err := repos.Conversion.CreateDeposit(ctx, dep); err != nil {
		t.Fatalf("CreateDeposit() error = %v", err)
	}

	got, err := repos.Conversion.GetDepositByKey(ctx, dep.IdempotencyKey)
	if err != nil {
		t.Fatalf("GetDepositByKey() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetDepositByKey() = nil, want deposit")
	}
	if got.RegistrationID == nil || *got.RegistrationID != "reg-1" {
		t.Errorf("RegistrationID = %v, want reg-1", got.RegistrationID)
	}
	if got.Commission != 50 {
		t.Errorf("Commission = %f, want 50", got.Commission)
	}

	// The linked registration is flagged deposited
	regAfter, _ := repos.Conversion.GetRegistrationByCustomer(ctx, offerID, "cust-1")
	if !regAfter.Deposited {
		t.Error("registration Deposited = false, want true after deposit")
	}

	// Ledger carries the CPA credit plus the deposit commission
	link, _ := repos.Link.GetByID(ctx, linkID)
	if link.Conversions != 2 {
		t.Errorf("link.Conversions = %d, want 2", link.Conversions)
	}
	if link.TotalCommission != 150 {
		t.Errorf("link.TotalCommission = %f, want 150", link.TotalCommission)
	}
	aff, _ := repos.Affiliate.GetByID(ctx, affiliateID)
	if aff.AvailableBalance != 150 {
		t.Errorf("AvailableBalance = %f, want 150", aff.AvailableBalance)
	}
}

func TestCreateDepositDuplicate(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	dep := depositFixture(affiliateID, offerID, linkID, nil)
	if err := repos.Conversion.CreateDeposit(ctx, dep); err != nil {
		t.Fatalf("CreateDeposit() error = %v", err)
	}

	replay := depositFixture(affiliateID, offerID, linkID, nil)
	replay.ID = "dep-2"
	if err := repos.Conversion.CreateDeposit(ctx, replay); err != ErrDuplicate {
		t.Fatalf("CreateDeposit() replay error = %v, want ErrDuplicate", err)
	}

	link, _ := repos.Link.GetByID(ctx, linkID)
	if link.TotalCommission != 50 {
		t.Errorf("link.TotalCommission after replay = %f, want 50", link.TotalCommission)
	}
}

func TestCreateDepositBeforeRegistration(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	// Deposit postback arrives first; it stands alone.
	dep := depositFixture(affiliateID, offerID, linkID, nil)
	if err := repos.Conversion.CreateDeposit(ctx, dep); err != nil {
		t.Fatalf("CreateDeposit() error = %v", err)
	}

	got, _ := repos.Conversion.GetDepositByKey(ctx, dep.IdempotencyKey)
	if got.RegistrationID != nil {
		t.Errorf("RegistrationID = %v, want nil for standalone deposit", got.RegistrationID)
	}

	// The late registration does not retroactively attach the deposit.
	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}
	got, _ = repos.Conversion.GetDepositByKey(ctx, dep.IdempotencyKey)
	if got.RegistrationID != nil {
		t.Errorf("RegistrationID = %v after late registration, want nil", got.RegistrationID)
	}
	regAfter, _ := repos.Conversion.GetRegistrationByCustomer(ctx, offerID, "cust-1")
	if regAfter.Deposited {
		t.Error("late registration Deposited = true, want false")
	}
}

func TestSumCommissionByLinkMatchesLedger(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}
	dep := depositFixture(affiliateID, offerID, linkID, &reg.ID)
	if err := repos.Conversion.CreateDeposit(ctx, dep); err != nil {
		t.Fatalf("CreateDeposit() error = %v", err)
	}

	sum, err := repos.Conversion.SumCommissionByLink(ctx, linkID)
	if err != nil {
		t.Fatalf("SumCommissionByLink() error = %v", err)
	}

	link, _ := repos.Link.GetByID(ctx, linkID)
	if math.Abs(sum-link.TotalCommission) > 0.005 {
		t.Errorf("recomputed sum = %f, ledger total = %f", sum, link.TotalCommission)
	}
	if sum != 150 {
		t.Errorf("SumCommissionByLink() = %f, want 150", sum)
	}
}

func TestListConversionsByLink(t *testing.T) {
	repos, db := setupTestRepos(t)
	ctx := context.Background()
	affiliateID, offerID, linkID := insertConversionFixture(t, db)

	reg := registrationFixture(affiliateID, offerID, linkID)
	if err := repos.Conversion.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration() error = %v", err)
	}
	dep := depositFixture(affiliateID, offerID, linkID, &reg.ID)
	if err := repos.Conversion.CreateDeposit(ctx, dep); err != nil {
		t.Fatalf("CreateDeposit() error = %v", err)
	}

	regs, err := repos.Conversion.ListRegistrationsByLink(ctx, linkID, 10, 0)
	if err != nil {
		t.Fatalf("ListRegistrationsByLink() error = %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("len(regs) = %d, want 1", len(regs))
	}

	deps, err := repos.Conversion.ListDepositsByLink(ctx, linkID, 10, 0)
	if err != nil {
		t.Fatalf("ListDepositsByLink() error = %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("len(deps) = %d, want 1", len(deps))
	}
	if deps[0].Status != models.DepositConfirmed {
		t.Errorf("Status = %s, want confirmed", deps[0].Status)
	}
}
