// Package service contains the business logic layer.
// Note: affiliate sign-up and the payout workflow live in the dashboard
// service. This API tracks clicks, ingests postbacks, attributes
// conversions and credits balances; it never debits them.
package service

import (
	"fmt"
	"log/slog"

	"github.com/betlinkr/betlinkr-api/internal/config"
	"github.com/betlinkr/betlinkr-api/internal/crypto"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Attribution *AttributionService
	Commission  *CommissionService
	Postback    *PostbackService
	Tracking    *TrackingService
	Offer       *OfferService
	Link        *LinkService
	Webhook     *WebhookService
	Notify      *NotifyService
	Stats       *StatsService
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	attributionSvc := NewAttributionService(repos.Link, logger)
	commissionSvc := NewCommissionService(repos.Conversion, logger)
	notifySvc := NewNotifyService(repos.Webhook, repos.WebhookDelivery, encryptor, cfg.NotifierMaxAttempts, logger)
	postbackSvc := NewPostbackService(repos.Offer, repos.PostbackEvent, attributionSvc, commissionSvc, notifySvc, logger)
	trackingSvc := NewTrackingService(repos.Link, repos.Click, repos.Offer, encryptor, logger)
	offerSvc := NewOfferService(repos.Offer, cfg.BaseURL, cfg.DefaultCookieDays, logger)
	linkSvc := NewLinkService(repos.Link, repos.Offer, commissionSvc, cfg.BaseURL, logger)
	webhookSvc := NewWebhookService(repos.Webhook, repos.WebhookDelivery, encryptor, logger)
	statsSvc := NewStatsService(repos.Affiliate, repos.Conversion, repos.PostbackEvent, logger)

	return &Services{
		Attribution: attributionSvc,
		Commission:  commissionSvc,
		Postback:    postbackSvc,
		Tracking:    trackingSvc,
		Offer:       offerSvc,
		Link:        linkSvc,
		Webhook:     webhookSvc,
		Notify:      notifySvc,
		Stats:       statsSvc,
	}, nil
}
