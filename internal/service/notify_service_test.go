package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

func setupNotifyService(t *testing.T) (*NotifyService, *WebhookService, *repository.Repositories) {
	t.Helper()
	repos := setupTestRepos(t)
	enc := testEncryptor(t)
	logger := testLogger()
	notify := NewNotifyService(repos.Webhook, repos.WebhookDelivery, enc, 3, logger)
	webhooks := NewWebhookService(repos.Webhook, repos.WebhookDelivery, enc, logger)
	return notify, webhooks, repos
}

func conversionResult(link *models.AffiliateLink) *ConversionResult {
	return &ConversionResult{
		Registration: &models.Registration{
			ID:          "reg-1",
			AffiliateID: link.AffiliateID,
			OfferID:     link.OfferID,
			LinkID:      link.ID,
			CustomerID:  "cust-1",
			CreatedAt:   time.Now().UTC(),
		},
		Commission: 100,
	}
}

func TestNotifyConversionEnqueues(t *testing.T) {
	notify, webhooks, repos := setupNotifyService(t)
	ctx := context.Background()

	seedAffiliate(t, repos, "aff-1")
	seedOffer(t, repos, "offer-1", "tok-1", models.CommissionCPA, 100, 0)
	link := seedLink(t, repos, "link-1", "aff-1", "offer-1", "abc123")

	active, _, err := webhooks.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: "https://hooks.example.com/a", IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	inactive, _, err := webhooks.Create(ctx, "aff-1", WebhookInput{
		Name: "staging", URL: "https://hooks.example.com/b", IsActive: false,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notify.NotifyConversion(ctx, link, conversionResult(link))

	got, err := repos.WebhookDelivery.GetByWebhookID(ctx, active.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetByWebhookID() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("deliveries for active webhook = %d, want 1", len(got))
	}
	if got[0].Status != models.DeliveryPending {
		t.Errorf("Status = %s, want pending", got[0].Status)
	}
	if got[0].EventType != models.EventRegistration {
		t.Errorf("EventType = %s, want registration", got[0].EventType)
	}
	if got[0].MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got[0].MaxAttempts)
	}

	none, _ := repos.WebhookDelivery.GetByWebhookID(ctx, inactive.ID, 10, 0)
	if len(none) != 0 {
		t.Errorf("deliveries for inactive webhook = %d, want 0", len(none))
	}
}

func TestDeliverSuccessSignsPayload(t *testing.T) {
	notify, webhooks, repos := setupNotifyService(t)
	ctx := context.Background()

	var gotHeaders http.Header
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	seedAffiliate(t, repos, "aff-1")
	seedOffer(t, repos, "offer-1", "tok-1", models.CommissionCPA, 100, 0)
	link := seedLink(t, repos, "link-1", "aff-1", "offer-1", "abc123")

	_, secret, err := webhooks.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: server.URL, IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notify.NotifyConversion(ctx, link, conversionResult(link))
	delivery, err := repos.WebhookDelivery.ClaimPending(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if delivery == nil {
		t.Fatal("ClaimPending() = nil, want enqueued delivery")
	}

	if err := notify.Deliver(ctx, delivery); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	updated, _ := repos.WebhookDelivery.GetByID(ctx, delivery.ID)
	if updated.Status != models.DeliverySuccess {
		t.Fatalf("Status = %s, want success", updated.Status)
	}
	if updated.StatusCode == nil || *updated.StatusCode != 200 {
		t.Errorf("StatusCode = %v, want 200", updated.StatusCode)
	}
	if updated.DeliveredAt == nil {
		t.Error("DeliveredAt = nil, want set")
	}

	// The receiver can verify the signature with the issued secret
	verifier, err := svix.NewWebhook(secret)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}
	if err := verifier.Verify(gotBody, gotHeaders); err != nil {
		t.Errorf("signature verification failed: %v", err)
	}
}

func TestDeliverFailureSchedulesRetry(t *testing.T) {
	notify, webhooks, repos := setupNotifyService(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	seedAffiliate(t, repos, "aff-1")
	seedOffer(t, repos, "offer-1", "tok-1", models.CommissionCPA, 100, 0)
	link := seedLink(t, repos, "link-1", "aff-1", "offer-1", "abc123")

	if _, _, err := webhooks.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: server.URL, IsActive: true,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notify.NotifyConversion(ctx, link, conversionResult(link))
	delivery, _ := repos.WebhookDelivery.ClaimPending(ctx, time.Now().UTC())
	if delivery == nil {
		t.Fatal("ClaimPending() = nil, want delivery")
	}

	if err := notify.Deliver(ctx, delivery); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	updated, _ := repos.WebhookDelivery.GetByID(ctx, delivery.ID)
	if updated.Status != models.DeliveryRetrying {
		t.Fatalf("Status = %s, want retrying", updated.Status)
	}
	if updated.NextRetryAt == nil {
		t.Fatal("NextRetryAt = nil, want scheduled retry")
	}
	if updated.StatusCode == nil || *updated.StatusCode != 500 {
		t.Errorf("StatusCode = %v, want 500", updated.StatusCode)
	}
	// First retry is one base delay out
	wait := time.Until(*updated.NextRetryAt)
	if wait < 20*time.Second || wait > 40*time.Second {
		t.Errorf("retry scheduled %s out, want ~30s", wait)
	}
}

func TestDeliverGivesUpAtMaxAttempts(t *testing.T) {
	notify, webhooks, repos := setupNotifyService(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	seedAffiliate(t, repos, "aff-1")
	seedOffer(t, repos, "offer-1", "tok-1", models.CommissionCPA, 100, 0)
	link := seedLink(t, repos, "link-1", "aff-1", "offer-1", "abc123")

	if _, _, err := webhooks.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: server.URL, IsActive: true,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notify.NotifyConversion(ctx, link, conversionResult(link))
	delivery, _ := repos.WebhookDelivery.ClaimPending(ctx, time.Now().UTC())
	if delivery == nil {
		t.Fatal("ClaimPending() = nil, want delivery")
	}

	// Simulate the final claimed attempt
	delivery.AttemptNumber = delivery.MaxAttempts
	if err := notify.Deliver(ctx, delivery); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	updated, _ := repos.WebhookDelivery.GetByID(ctx, delivery.ID)
	if updated.Status != models.DeliveryFailed {
		t.Fatalf("Status = %s, want failed", updated.Status)
	}
	if updated.NextRetryAt != nil {
		t.Errorf("NextRetryAt = %v after final attempt, want nil", updated.NextRetryAt)
	}
}

func TestDeliverRemovedWebhook(t *testing.T) {
	notify, webhooks, repos := setupNotifyService(t)
	ctx := context.Background()

	seedAffiliate(t, repos, "aff-1")
	seedOffer(t, repos, "offer-1", "tok-1", models.CommissionCPA, 100, 0)
	link := seedLink(t, repos, "link-1", "aff-1", "offer-1", "abc123")

	webhook, _, err := webhooks.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: "https://hooks.example.com/x", IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notify.NotifyConversion(ctx, link, conversionResult(link))
	delivery, _ := repos.WebhookDelivery.ClaimPending(ctx, time.Now().UTC())
	if delivery == nil {
		t.Fatal("ClaimPending() = nil, want delivery")
	}

	// Deactivate between enqueue and delivery
	if _, err := webhooks.Update(ctx, "aff-1", webhook.ID, WebhookInput{
		Name: "prod", URL: "https://hooks.example.com/x", IsActive: false,
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if err := notify.Deliver(ctx, delivery); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	updated, _ := repos.WebhookDelivery.GetByID(ctx, delivery.ID)
	if updated.Status != models.DeliveryFailed {
		t.Fatalf("Status = %s, want failed for deactivated webhook", updated.Status)
	}
}
