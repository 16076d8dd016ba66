// Package models defines the domain models for the application.
// Note: Affiliate sign-up, sessions and the payout workflow live in the
// dashboard service; this API only references affiliate IDs and credits
// available_balance, it never debits it.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CommissionModel describes how an offer pays commission.
type CommissionModel string

const (
	CommissionCPA      CommissionModel = "cpa"
	CommissionRevShare CommissionModel = "revshare"
	CommissionHybrid   CommissionModel = "hybrid"
)

// Valid reports whether the commission model is one of the known values.
func (m CommissionModel) Valid() bool {
	switch m {
	case CommissionCPA, CommissionRevShare, CommissionHybrid:
		return true
	}
	return false
}

// PaysCPA reports whether the model pays a flat amount per registration.
func (m CommissionModel) PaysCPA() bool {
	return m == CommissionCPA || m == CommissionHybrid
}

// PaysRevShare reports whether the model pays a percentage per deposit.
func (m CommissionModel) PaysRevShare() bool {
	return m == CommissionRevShare || m == CommissionHybrid
}

// Affiliate represents an affiliate account, owned by the dashboard service.
// Only the balance side is mutated here: conversions credit AvailableBalance.
type Affiliate struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	AvailableBalance float64   `json:"available_balance"`
	TotalEarnings    float64   `json:"total_earnings"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultCookieDurationDays is the attribution window used when an offer
// does not configure one.
const DefaultCookieDurationDays = 90

// Offer represents a betting house being promoted.
// PostbackToken is the per-house secret path segment for inbound postbacks;
// rotating it invalidates previously issued postback URLs.
type Offer struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	WebsiteURL         string          `json:"website_url"`
	CommissionModel    CommissionModel `json:"commission_model"`
	CPAAmount          float64         `json:"cpa_amount"`
	RevSharePercent    float64         `json:"revshare_percent"`
	CookieDurationDays int             `json:"cookie_duration_days"`
	PostbackToken      string          `json:"-"`
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CookieDuration returns the attribution window as a duration.
func (o *Offer) CookieDuration() time.Duration {
	days := o.CookieDurationDays
	if days <= 0 {
		days = DefaultCookieDurationDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// AffiliateLink represents a tracking link (campaign) owned by an affiliate
// for a specific offer. Aggregates are running totals maintained in the same
// transaction as the rows they summarize; they only ever grow.
type AffiliateLink struct {
	ID              string    `json:"id"`
	AffiliateID     string    `json:"affiliate_id"`
	OfferID         string    `json:"offer_id"`
	Code            string    `json:"code"`
	DestinationURL  string    `json:"destination_url"`
	IsActive        bool      `json:"is_active"`
	Clicks          int64     `json:"clicks"`
	Conversions     int64     `json:"conversions"`
	TotalCommission float64   `json:"total_commission"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Click represents a single visit through a tracking link.
// Converted flips to true at most once, when a first-party conversion is
// attributed back to this click.
type Click struct {
	ID          string    `json:"id"`
	AffiliateID string    `json:"affiliate_id"`
	LinkID      string    `json:"link_id"`
	ClientIP    string    `json:"client_ip"`
	UserAgent   string    `json:"user_agent"`
	Referrer    string    `json:"referrer,omitempty"`
	Converted   bool      `json:"converted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registration represents a customer registering at the betting house,
// attributed to an affiliate link. At most one row exists per
// (offer, external customer).
type Registration struct {
	ID             string    `json:"id"`
	AffiliateID    string    `json:"affiliate_id"`
	OfferID        string    `json:"offer_id"`
	LinkID         string    `json:"link_id"`
	CustomerID     string    `json:"customer_id"`
	Email          string    `json:"email,omitempty"`
	Deposited      bool      `json:"deposited"`
	CPACommission  float64   `json:"cpa_commission"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// DepositStatus is the lifecycle state of a deposit record.
type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
)

// Deposit represents a customer deposit reported by the betting house.
// RegistrationID is nullable: deposit postbacks may arrive before the
// registration postback, in which case the deposit stands alone and is
// matched to its customer by (offer_id, customer_id).
type Deposit struct {
	ID             string        `json:"id"`
	RegistrationID *string       `json:"registration_id,omitempty"`
	AffiliateID    string        `json:"affiliate_id"`
	OfferID        string        `json:"offer_id"`
	LinkID         string        `json:"link_id"`
	CustomerID     string        `json:"customer_id"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
	Commission     float64       `json:"commission"`
	Status         DepositStatus `json:"status"`
	ExternalRef    string        `json:"external_ref,omitempty"`
	IdempotencyKey string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
}

// EventType identifies the kind of conversion event a postback reports.
type EventType string

const (
	EventClick        EventType = "click"
	EventRegistration EventType = "registration"
	EventDeposit      EventType = "deposit"
)

// ParseEventType maps the wire value of an event type parameter to an
// EventType. Unknown values return false.
func ParseEventType(s string) (EventType, bool) {
	switch EventType(strings.ToLower(strings.TrimSpace(s))) {
	case EventClick:
		return EventClick, true
	case EventRegistration:
		return EventRegistration, true
	case EventDeposit:
		return EventDeposit, true
	}
	return "", false
}

// Event is the canonical shape every inbound postback is normalized into
// before attribution and commission processing. It is the only type the
// resolver and commission engine operate on, regardless of which endpoint
// or house integration style produced it.
type Event struct {
	Type        EventType
	OfferID     string
	LinkCode    string
	CustomerID  string
	Email       string
	Amount      float64
	Currency    string
	ExternalRef string
	// OccurredAt is the house-reported event time. Zero when the house sent
	// no timestamp; it must never be defaulted to the receipt time, or
	// redeliveries of the same event would derive different dedup keys.
	OccurredAt time.Time
	ReceivedAt time.Time
}

// IdempotencyKey derives the deterministic deduplication key for the event,
// built only from house-supplied fields so a byte-identical redelivery always
// derives the same key. Registrations dedupe on the customer (one CPA credit
// per real customer); deposits dedupe on the house's transaction reference
// when provided, then on (customer, amount, house timestamp), then on
// (customer, amount) when the house sends neither.
func (e *Event) IdempotencyKey() string {
	ref := e.CustomerID
	if e.Type == EventDeposit {
		switch {
		case e.ExternalRef != "":
			ref = e.ExternalRef
		case !e.OccurredAt.IsZero():
			ref = fmt.Sprintf("%s|%.2f|%d", e.CustomerID, e.Amount, e.OccurredAt.Unix())
		default:
			ref = fmt.Sprintf("%s|%.2f", e.CustomerID, e.Amount)
		}
	}
	sum := sha256.Sum256([]byte(e.OfferID + "|" + string(e.Type) + "|" + ref))
	return hex.EncodeToString(sum[:])
}

// PostbackStatus is the recorded outcome of an inbound postback.
type PostbackStatus string

const (
	PostbackAccepted     PostbackStatus = "accepted"
	PostbackDuplicate    PostbackStatus = "duplicate"
	PostbackUnattributed PostbackStatus = "unattributed"
	PostbackRejected     PostbackStatus = "rejected"
)

// PostbackEvent is the audit record for an inbound postback. Every call that
// resolves to a known offer is recorded, including unattributable and
// malformed ones; no commission is ever derived from this table.
type PostbackEvent struct {
	ID             string         `json:"id"`
	OfferID        string         `json:"offer_id"`
	EventType      EventType      `json:"event_type"`
	LinkCode       string         `json:"link_code,omitempty"`
	CustomerID     string         `json:"customer_id,omitempty"`
	Amount         float64        `json:"amount"`
	Currency       string         `json:"currency,omitempty"`
	IdempotencyKey string         `json:"-"`
	Status         PostbackStatus `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	RawQuery       string         `json:"raw_query,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// WebhookDeliveryStatus is the lifecycle state of an outbound notification.
type WebhookDeliveryStatus string

const (
	DeliveryPending  WebhookDeliveryStatus = "pending"
	DeliveryRetrying WebhookDeliveryStatus = "retrying"
	DeliverySuccess  WebhookDeliveryStatus = "success"
	DeliveryFailed   WebhookDeliveryStatus = "failed"
)

// AffiliateWebhook is an affiliate-registered endpoint notified of confirmed
// conversions on their links.
type AffiliateWebhook struct {
	ID              string    `json:"id"`
	AffiliateID     string    `json:"affiliate_id"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	SecretEncrypted string    `json:"-"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// WebhookDelivery tracks one outbound notification attempt chain.
type WebhookDelivery struct {
	ID            string                `json:"id"`
	WebhookID     string                `json:"webhook_id"`
	EventType     EventType             `json:"event_type"`
	PayloadJSON   string                `json:"payload_json"`
	Status        WebhookDeliveryStatus `json:"status"`
	StatusCode    *int                  `json:"status_code,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	AttemptNumber int                   `json:"attempt_number"`
	MaxAttempts   int                   `json:"max_attempts"`
	NextRetryAt   *time.Time            `json:"next_retry_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	DeliveredAt   *time.Time            `json:"delivered_at,omitempty"`
}

// LinkStats is the aggregate view returned by the reporting endpoints.
type LinkStats struct {
	LinkID          string  `json:"link_id"`
	Clicks          int64   `json:"clicks"`
	Conversions     int64   `json:"conversions"`
	Registrations   int64   `json:"registrations"`
	Deposits        int64   `json:"deposits"`
	DepositVolume   float64 `json:"deposit_volume"`
	TotalCommission float64 `json:"total_commission"`
}

// AffiliateSummary aggregates an affiliate's performance across links.
type AffiliateSummary struct {
	AffiliateID      string  `json:"affiliate_id"`
	Links            int64   `json:"links"`
	Clicks           int64   `json:"clicks"`
	Conversions      int64   `json:"conversions"`
	TotalCommission  float64 `json:"total_commission"`
	AvailableBalance float64 `json:"available_balance"`
}
