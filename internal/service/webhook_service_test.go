package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/betlinkr/betlinkr-api/internal/crypto"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

func setupWebhookService(t *testing.T) (*WebhookService, *repository.Repositories, *crypto.Encryptor) {
	t.Helper()
	repos := setupTestRepos(t)
	enc := testEncryptor(t)
	svc := NewWebhookService(repos.Webhook, repos.WebhookDelivery, enc, testLogger())
	return svc, repos, enc
}

func TestWebhookCreate(t *testing.T) {
	svc, repos, enc := setupWebhookService(t)
	ctx := context.Background()
	seedAffiliate(t, repos, "aff-1")

	webhook, secret, err := svc.Create(ctx, "aff-1", WebhookInput{
		Name:     "prod",
		URL:      "https://hooks.example.com/conv",
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Secret format the signer accepts: whsec_ + standard base64
	if !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("secret = %s, want whsec_ prefix", secret)
	}
	if _, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_")); err != nil {
		t.Errorf("secret body is not standard base64: %v", err)
	}

	// Stored encrypted, decrypts back to the issued secret
	if webhook.SecretEncrypted == secret {
		t.Error("secret stored in plaintext")
	}
	plain, err := enc.Decrypt(webhook.SecretEncrypted)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if plain != secret {
		t.Errorf("decrypted secret = %s, want %s", plain, secret)
	}
}

func TestWebhookCreateValidation(t *testing.T) {
	svc, repos, _ := setupWebhookService(t)
	ctx := context.Background()
	seedAffiliate(t, repos, "aff-1")

	cases := []WebhookInput{
		{Name: "", URL: "https://hooks.example.com/x"},
		{Name: "prod", URL: ""},
		{Name: "prod", URL: "not a url"},
		{Name: "prod", URL: "ftp://hooks.example.com/x"},
	}
	for _, input := range cases {
		if _, _, err := svc.Create(ctx, "aff-1", input); !IsMalformed(err) {
			t.Errorf("Create(%+v) error = %v, want MalformedEventError", input, err)
		}
	}
}

func TestWebhookNameTaken(t *testing.T) {
	svc, repos, _ := setupWebhookService(t)
	ctx := context.Background()
	seedAffiliate(t, repos, "aff-1")

	input := WebhookInput{Name: "prod", URL: "https://hooks.example.com/x", IsActive: true}
	if _, _, err := svc.Create(ctx, "aff-1", input); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, _, err := svc.Create(ctx, "aff-1", input); err != ErrNameTaken {
		t.Fatalf("Create() duplicate name error = %v, want ErrNameTaken", err)
	}
}

func TestWebhookUpdateKeepsSecret(t *testing.T) {
	svc, repos, _ := setupWebhookService(t)
	ctx := context.Background()
	seedAffiliate(t, repos, "aff-1")

	webhook, _, err := svc.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: "https://hooks.example.com/x", IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	originalSecret := webhook.SecretEncrypted

	updated, err := svc.Update(ctx, "aff-1", webhook.ID, WebhookInput{
		Name: "prod", URL: "https://hooks.example.com/new", IsActive: false,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.SecretEncrypted != originalSecret {
		t.Error("secret changed on update, want unchanged")
	}
	if updated.URL != "https://hooks.example.com/new" {
		t.Errorf("URL = %s, want updated URL", updated.URL)
	}
}

func TestWebhookOwnership(t *testing.T) {
	svc, repos, _ := setupWebhookService(t)
	ctx := context.Background()
	seedAffiliate(t, repos, "aff-1")
	seedAffiliate(t, repos, "aff-2")

	webhook, _, err := svc.Create(ctx, "aff-1", WebhookInput{
		Name: "prod", URL: "https://hooks.example.com/x", IsActive: true,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Get(ctx, "aff-2", webhook.ID); err != ErrNotFound {
		t.Errorf("Get() by stranger error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, "aff-2", webhook.ID); err != ErrNotFound {
		t.Errorf("Delete() by stranger error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Deliveries(ctx, "aff-2", webhook.ID, 10, 0); err != ErrNotFound {
		t.Errorf("Deliveries() by stranger error = %v, want ErrNotFound", err)
	}
}
