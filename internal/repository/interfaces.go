// Package repository defines repository interfaces for data access.
// All implementations are SQLite (libsql) with hand-written SQL. The
// conversion repository is the only place that writes commission rows and
// ledger aggregates, and it does both inside one transaction.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// AffiliateRepository defines methods for affiliate account data access.
// Accounts are created by the dashboard service; this API reads them and
// credits balances through ConversionRepository.
type AffiliateRepository interface {
	Create(ctx context.Context, affiliate *models.Affiliate) error
	GetByID(ctx context.Context, id string) (*models.Affiliate, error)
	GetSummary(ctx context.Context, id string) (*models.AffiliateSummary, error)
}

// OfferRepository defines methods for betting-house offer data access.
type OfferRepository interface {
	Create(ctx context.Context, offer *models.Offer) error
	GetByID(ctx context.Context, id string) (*models.Offer, error)
	// GetByToken resolves a postback token to its offer. The token is the
	// only authentication inbound postbacks carry.
	GetByToken(ctx context.Context, token string) (*models.Offer, error)
	List(ctx context.Context, limit, offset int) ([]*models.Offer, error)
	Update(ctx context.Context, offer *models.Offer) error
	// RotateToken replaces the postback token, invalidating previously
	// issued postback URLs.
	RotateToken(ctx context.Context, id, newToken string) error
	Delete(ctx context.Context, id string) error
}

// LinkRepository defines methods for affiliate link data access.
// Link codes are unique system-wide; lookup by code is the attribution path.
type LinkRepository interface {
	Create(ctx context.Context, link *models.AffiliateLink) error
	GetByID(ctx context.Context, id string) (*models.AffiliateLink, error)
	GetByCode(ctx context.Context, code string) (*models.AffiliateLink, error)
	GetByAffiliateID(ctx context.Context, affiliateID string) ([]*models.AffiliateLink, error)
	Update(ctx context.Context, link *models.AffiliateLink) error
	// SetActive toggles a link; links are never deleted so historical
	// conversions keep their attribution.
	SetActive(ctx context.Context, id string, active bool) error
	GetStats(ctx context.Context, id string) (*models.LinkStats, error)
}

// ClickRepository defines methods for click data access.
type ClickRepository interface {
	// Create inserts the click and increments the owning link's click
	// counter in the same transaction.
	Create(ctx context.Context, click *models.Click) error
	GetByID(ctx context.Context, id string) (*models.Click, error)
	// MarkConverted flips converted to true at most once; returns false if
	// the click was already converted or does not exist.
	MarkConverted(ctx context.Context, id string) (bool, error)
	CountByLinkID(ctx context.Context, linkID string) (int64, error)
}

// ConversionRepository defines methods for registration and deposit data
// access. Creation methods are transactional: the conversion row insert and
// the ledger updates (link aggregates, affiliate balance) succeed or fail
// together. A unique-constraint conflict surfaces as ErrDuplicate with no
// side effect, which callers treat as "already processed".
type ConversionRepository interface {
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistrationByCustomer(ctx context.Context, offerID, customerID string) (*models.Registration, error)
	GetRegistrationByKey(ctx context.Context, idempotencyKey string) (*models.Registration, error)
	ListRegistrationsByLink(ctx context.Context, linkID string, limit, offset int) ([]*models.Registration, error)

	CreateDeposit(ctx context.Context, dep *models.Deposit) error
	GetDepositByKey(ctx context.Context, idempotencyKey string) (*models.Deposit, error)
	ListDepositsByLink(ctx context.Context, linkID string, limit, offset int) ([]*models.Deposit, error)

	// SumCommissionByLink recomputes the ledger invariant from the
	// source-of-truth rows: sum(cpa_commission) + sum(deposit commission).
	SumCommissionByLink(ctx context.Context, linkID string) (float64, error)
}

// PostbackEventRepository defines methods for the inbound postback audit log.
type PostbackEventRepository interface {
	Create(ctx context.Context, event *models.PostbackEvent) error
	ListByOffer(ctx context.Context, offerID string, limit, offset int) ([]*models.PostbackEvent, error)
	CountByStatus(ctx context.Context, offerID string, status models.PostbackStatus) (int64, error)
}

// WebhookRepository defines methods for affiliate notification webhooks.
type WebhookRepository interface {
	Create(ctx context.Context, webhook *models.AffiliateWebhook) error
	GetByID(ctx context.Context, id string) (*models.AffiliateWebhook, error)
	GetByAffiliateID(ctx context.Context, affiliateID string) ([]*models.AffiliateWebhook, error)
	GetActiveByAffiliateID(ctx context.Context, affiliateID string) ([]*models.AffiliateWebhook, error)
	GetByAffiliateAndName(ctx context.Context, affiliateID, name string) (*models.AffiliateWebhook, error)
	Update(ctx context.Context, webhook *models.AffiliateWebhook) error
	Delete(ctx context.Context, id string) error
}

// WebhookDeliveryRepository defines methods for outbound delivery tracking.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *models.WebhookDelivery) error
	Update(ctx context.Context, delivery *models.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	GetByWebhookID(ctx context.Context, webhookID string, limit, offset int) ([]*models.WebhookDelivery, error)
	// ClaimPending atomically claims the next due pending/retrying delivery.
	ClaimPending(ctx context.Context, now time.Time) (*models.WebhookDelivery, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Affiliate       AffiliateRepository
	Offer           OfferRepository
	Link            LinkRepository
	Click           ClickRepository
	Conversion      ConversionRepository
	PostbackEvent   PostbackEventRepository
	Webhook         WebhookRepository
	WebhookDelivery WebhookDeliveryRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Affiliate:       NewSQLiteAffiliateRepository(db),
		Offer:           NewSQLiteOfferRepository(db),
		Link:            NewSQLiteLinkRepository(db),
		Click:           NewSQLiteClickRepository(db),
		Conversion:      NewSQLiteConversionRepository(db),
		PostbackEvent:   NewSQLitePostbackEventRepository(db),
		Webhook:         NewSQLiteWebhookRepository(db),
		WebhookDelivery: NewSQLiteWebhookDeliveryRepository(db),
	}
}
