package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/betlinkr/betlinkr-api/internal/crypto"
	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

const (
	// deliveryTimeout bounds one outbound HTTP attempt.
	deliveryTimeout = 15 * time.Second

	// retryBaseDelay is the first retry interval; each further attempt
	// doubles it.
	retryBaseDelay = 30 * time.Second
)

// ConversionPayload is the body posted to affiliate webhooks.
type ConversionPayload struct {
	Event       models.EventType `json:"event"`
	LinkID      string           `json:"link_id"`
	LinkCode    string           `json:"link_code"`
	OfferID     string           `json:"offer_id"`
	CustomerID  string           `json:"customer_id"`
	Amount      float64          `json:"amount,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	Commission  float64          `json:"commission"`
	OccurredAt  time.Time        `json:"occurred_at"`
	DeliveredAt time.Time        `json:"delivered_at"`
}

// NotifyService fans confirmed conversions out to affiliate webhooks. The
// enqueue side runs inline with postback processing and only writes rows;
// the delivery side runs in the notifier worker, signs payloads with the
// webhook's secret, and schedules bounded exponential retries.
type NotifyService struct {
	webhooks    repository.WebhookRepository
	deliveries  repository.WebhookDeliveryRepository
	encryptor   *crypto.Encryptor
	client      *http.Client
	maxAttempts int
	logger      *slog.Logger
}

// NewNotifyService creates a new notify service.
func NewNotifyService(
	webhooks repository.WebhookRepository,
	deliveries repository.WebhookDeliveryRepository,
	encryptor *crypto.Encryptor,
	maxAttempts int,
	logger *slog.Logger,
) *NotifyService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &NotifyService{
		webhooks:    webhooks,
		deliveries:  deliveries,
		encryptor:   encryptor,
		client:      &http.Client{Timeout: deliveryTimeout},
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// NotifyConversion enqueues one delivery per active webhook of the link's
// owner. Enqueue failures are logged and swallowed: notifications are
// best-effort and must never fail the postback that triggered them.
func (s *NotifyService) NotifyConversion(ctx context.Context, link *models.AffiliateLink, result *ConversionResult) {
	hooks, err := s.webhooks.GetActiveByAffiliateID(ctx, link.AffiliateID)
	if err != nil {
		s.logger.Error("failed to load webhooks for notification",
			"affiliate_id", link.AffiliateID, "error", err)
		return
	}
	if len(hooks) == 0 {
		return
	}

	payload := buildConversionPayload(link, result)
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal notification payload", "error", err)
		return
	}

	for _, hook := range hooks {
		delivery := &models.WebhookDelivery{
			ID:          ulid.Make().String(),
			WebhookID:   hook.ID,
			EventType:   payload.Event,
			PayloadJSON: string(body),
			Status:      models.DeliveryPending,
			MaxAttempts: s.maxAttempts,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.deliveries.Create(ctx, delivery); err != nil {
			s.logger.Error("failed to enqueue webhook delivery",
				"webhook_id", hook.ID, "error", err)
			continue
		}
		s.logger.Debug("webhook delivery enqueued",
			"delivery_id", delivery.ID, "webhook_id", hook.ID, "event", payload.Event)
	}
}

// Deliver executes one claimed delivery attempt and persists the outcome.
// The claim already bumped attempt_number, so this method only sends, then
// marks success, schedules a retry, or gives up.
func (s *NotifyService) Deliver(ctx context.Context, delivery *models.WebhookDelivery) error {
	webhook, err := s.webhooks.GetByID(ctx, delivery.WebhookID)
	if err != nil {
		return fmt.Errorf("failed to load webhook: %w", err)
	}
	if webhook == nil || !webhook.IsActive {
		delivery.Status = models.DeliveryFailed
		delivery.ErrorMessage = "webhook removed or deactivated"
		return s.deliveries.Update(ctx, delivery)
	}

	statusCode, sendErr := s.send(ctx, webhook, delivery)

	now := time.Now().UTC()
	if statusCode != 0 {
		delivery.StatusCode = &statusCode
	}

	if sendErr == nil {
		delivery.Status = models.DeliverySuccess
		delivery.ErrorMessage = ""
		delivery.DeliveredAt = &now
		s.logger.Info("webhook delivered",
			"delivery_id", delivery.ID, "webhook_id", webhook.ID,
			"attempt", delivery.AttemptNumber, "status_code", statusCode)
		return s.deliveries.Update(ctx, delivery)
	}

	delivery.ErrorMessage = sendErr.Error()
	if delivery.AttemptNumber >= delivery.MaxAttempts {
		delivery.Status = models.DeliveryFailed
		s.logger.Warn("webhook delivery failed permanently",
			"delivery_id", delivery.ID, "webhook_id", webhook.ID,
			"attempts", delivery.AttemptNumber, "error", sendErr)
		return s.deliveries.Update(ctx, delivery)
	}

	retryAt := now.Add(retryBaseDelay << (delivery.AttemptNumber - 1))
	delivery.Status = models.DeliveryRetrying
	delivery.NextRetryAt = &retryAt
	s.logger.Warn("webhook delivery failed, will retry",
		"delivery_id", delivery.ID, "webhook_id", webhook.ID,
		"attempt", delivery.AttemptNumber, "next_retry_at", retryAt, "error", sendErr)
	return s.deliveries.Update(ctx, delivery)
}

func (s *NotifyService) send(ctx context.Context, webhook *models.AffiliateWebhook, delivery *models.WebhookDelivery) (int, error) {
	secret, err := s.encryptor.Decrypt(webhook.SecretEncrypted)
	if err != nil {
		return 0, fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}

	signer, err := svix.NewWebhook(secret)
	if err != nil {
		return 0, fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now().UTC()
	signature, err := signer.Sign(delivery.ID, now, []byte(delivery.PayloadJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to sign payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL,
		bytes.NewReader([]byte(delivery.PayloadJSON)))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", delivery.ID)
	req.Header.Set("webhook-timestamp", fmt.Sprintf("%d", now.Unix()))
	req.Header.Set("webhook-signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func buildConversionPayload(link *models.AffiliateLink, result *ConversionResult) ConversionPayload {
	payload := ConversionPayload{
		LinkID:      link.ID,
		LinkCode:    link.Code,
		OfferID:     link.OfferID,
		Commission:  result.Commission,
		DeliveredAt: time.Now().UTC(),
	}
	switch {
	case result.Registration != nil:
		payload.Event = models.EventRegistration
		payload.CustomerID = result.Registration.CustomerID
		payload.OccurredAt = result.Registration.CreatedAt
	case result.Deposit != nil:
		payload.Event = models.EventDeposit
		payload.CustomerID = result.Deposit.CustomerID
		payload.Amount = result.Deposit.Amount
		payload.Currency = result.Deposit.Currency
		payload.OccurredAt = result.Deposit.CreatedAt
	}
	return payload
}
