package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/betlinkr/betlinkr-api/internal/crypto"
	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// WebhookInput holds the writable fields of an affiliate webhook.
type WebhookInput struct {
	Name     string
	URL      string
	IsActive bool
}

// WebhookService manages affiliate notification webhooks. Signing secrets
// are generated here, returned exactly once on creation, and stored
// encrypted at rest.
type WebhookService struct {
	webhooks   repository.WebhookRepository
	deliveries repository.WebhookDeliveryRepository
	encryptor  *crypto.Encryptor
	logger     *slog.Logger
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	webhooks repository.WebhookRepository,
	deliveries repository.WebhookDeliveryRepository,
	encryptor *crypto.Encryptor,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		webhooks:   webhooks,
		deliveries: deliveries,
		encryptor:  encryptor,
		logger:     logger,
	}
}

// Create registers a new webhook for an affiliate and returns it together
// with the plaintext signing secret. The secret is not retrievable later.
func (s *WebhookService) Create(ctx context.Context, affiliateID string, input WebhookInput) (*models.AffiliateWebhook, string, error) {
	if err := validateWebhookInput(input); err != nil {
		return nil, "", err
	}

	secret, err := generateSigningSecret()
	if err != nil {
		return nil, "", err
	}
	encrypted, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}

	now := time.Now().UTC()
	webhook := &models.AffiliateWebhook{
		ID:              ulid.Make().String(),
		AffiliateID:     affiliateID,
		Name:            strings.TrimSpace(input.Name),
		URL:             strings.TrimSpace(input.URL),
		SecretEncrypted: encrypted,
		IsActive:        input.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.webhooks.Create(ctx, webhook); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, "", ErrNameTaken
		}
		return nil, "", fmt.Errorf("failed to create webhook: %w", err)
	}

	s.logger.Info("webhook created",
		"webhook_id", webhook.ID, "affiliate_id", affiliateID, "name", webhook.Name)
	return webhook, secret, nil
}

// Get returns a webhook owned by the given affiliate, or ErrNotFound.
func (s *WebhookService) Get(ctx context.Context, affiliateID, id string) (*models.AffiliateWebhook, error) {
	webhook, err := s.webhooks.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook: %w", err)
	}
	if webhook == nil || webhook.AffiliateID != affiliateID {
		return nil, ErrNotFound
	}
	return webhook, nil
}

// ListByAffiliate returns all webhooks owned by an affiliate.
func (s *WebhookService) ListByAffiliate(ctx context.Context, affiliateID string) ([]*models.AffiliateWebhook, error) {
	return s.webhooks.GetByAffiliateID(ctx, affiliateID)
}

// Update applies the writable fields. The secret never changes on update;
// delete and recreate to rotate it.
func (s *WebhookService) Update(ctx context.Context, affiliateID, id string, input WebhookInput) (*models.AffiliateWebhook, error) {
	if err := validateWebhookInput(input); err != nil {
		return nil, err
	}

	webhook, err := s.Get(ctx, affiliateID, id)
	if err != nil {
		return nil, err
	}

	webhook.Name = strings.TrimSpace(input.Name)
	webhook.URL = strings.TrimSpace(input.URL)
	webhook.IsActive = input.IsActive

	if err := s.webhooks.Update(ctx, webhook); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}
	return webhook, nil
}

// Delete removes a webhook. Pending deliveries for it will fail their next
// attempt and expire through the normal retry path.
func (s *WebhookService) Delete(ctx context.Context, affiliateID, id string) error {
	if _, err := s.Get(ctx, affiliateID, id); err != nil {
		return err
	}
	if err := s.webhooks.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	s.logger.Info("webhook deleted", "webhook_id", id, "affiliate_id", affiliateID)
	return nil
}

// Deliveries returns the delivery history for a webhook.
func (s *WebhookService) Deliveries(ctx context.Context, affiliateID, id string, limit, offset int) ([]*models.WebhookDelivery, error) {
	if _, err := s.Get(ctx, affiliateID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.deliveries.GetByWebhookID(ctx, id, limit, offset)
}

func validateWebhookInput(input WebhookInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return &MalformedEventError{Field: "name", Reason: "is required"}
	}
	parsed, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return &MalformedEventError{Field: "url", Reason: "must be an http(s) URL"}
	}
	return nil
}

// generateSigningSecret produces a whsec_-prefixed standard-base64 secret,
// the format the svix signer expects.
func generateSigningSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return "whsec_" + base64.StdEncoding.EncodeToString(b), nil
}
