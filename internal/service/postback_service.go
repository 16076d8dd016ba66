package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// maxTimestampSkew bounds how far in the future an event timestamp may sit
// before the event is rejected as implausible.
const maxTimestampSkew = 24 * time.Hour

// PostbackParams carries the raw wire parameters of an inbound postback
// before normalization. Handlers fill it from query or form values without
// interpreting anything.
type PostbackParams struct {
	SubID       string
	CustomerID  string
	Amount      string
	Currency    string
	ExternalRef string
	Timestamp   string
	Email       string
	RawQuery    string
}

// ConversionNotifier is notified of newly recorded conversions so affiliate
// webhooks can be fanned out. Duplicates are never notified.
type ConversionNotifier interface {
	NotifyConversion(ctx context.Context, link *models.AffiliateLink, result *ConversionResult)
}

// PostbackService is the ingestion gateway: it authenticates inbound
// postbacks by offer token, normalizes house-specific parameters into the
// canonical event shape, and drives attribution and commission processing.
// It holds no offer-level mutable state, so concurrent postbacks for the
// same or different offers do not interfere here.
type PostbackService struct {
	offers      repository.OfferRepository
	events      repository.PostbackEventRepository
	attribution *AttributionService
	commission  *CommissionService
	notifier    ConversionNotifier
	logger      *slog.Logger
}

// NewPostbackService creates a new postback service.
func NewPostbackService(
	offers repository.OfferRepository,
	events repository.PostbackEventRepository,
	attribution *AttributionService,
	commission *CommissionService,
	notifier ConversionNotifier,
	logger *slog.Logger,
) *PostbackService {
	return &PostbackService{
		offers:      offers,
		events:      events,
		attribution: attribution,
		commission:  commission,
		notifier:    notifier,
		logger:      logger,
	}
}

// Ingest processes one inbound postback identified by its offer token.
//
// Error contract: ErrUnknownOffer for unknown or inactive tokens (identical
// on purpose), MalformedEventError for missing/invalid required fields,
// ErrUnattributable for unknown link codes. A replayed event is not an
// error: the result carries Duplicate=true and callers answer 200. Anything
// else is a transient storage failure and should surface as a 5xx so the
// house's own redelivery retries it.
func (s *PostbackService) Ingest(ctx context.Context, token string, eventType models.EventType, params PostbackParams) (*ConversionResult, error) {
	offer, err := s.offers.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve offer token: %w", err)
	}
	if offer == nil || !offer.IsActive {
		// Nothing is audited for unknown tokens: there is no offer to
		// attach the record to, and probing must learn nothing.
		return nil, ErrUnknownOffer
	}

	return s.process(ctx, offer, eventType, params)
}

// IngestFirstParty processes a conversion reported from the affiliate's own
// page, where the offer and link travel in the sealed attribution cookie
// rather than a postback URL. Shares the postback pipeline, so the same
// idempotency keys apply: a house postback and a first-party report of the
// same conversion collapse into one row.
func (s *PostbackService) IngestFirstParty(ctx context.Context, offerID string, eventType models.EventType, params PostbackParams) (*ConversionResult, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer == nil || !offer.IsActive {
		return nil, ErrUnknownOffer
	}

	return s.process(ctx, offer, eventType, params)
}

func (s *PostbackService) process(ctx context.Context, offer *models.Offer, eventType models.EventType, params PostbackParams) (*ConversionResult, error) {
	event, err := s.normalize(offer, eventType, params)
	if err != nil {
		s.audit(ctx, offer.ID, eventType, params, "", models.PostbackRejected, err.Error())
		return nil, err
	}

	link, err := s.attribution.Resolve(ctx, event)
	if err != nil {
		status := models.PostbackRejected
		if err == ErrUnattributable {
			status = models.PostbackUnattributed
		}
		s.audit(ctx, offer.ID, eventType, params, event.IdempotencyKey(), status, err.Error())
		return nil, err
	}

	var result *ConversionResult
	switch event.Type {
	case models.EventRegistration:
		result, err = s.commission.ProcessRegistration(ctx, offer, link, event)
	case models.EventDeposit:
		result, err = s.commission.ProcessDeposit(ctx, offer, link, event)
	default:
		err = &MalformedEventError{Field: "event", Reason: "must be registration or deposit"}
	}
	if err != nil {
		s.audit(ctx, offer.ID, eventType, params, event.IdempotencyKey(), models.PostbackRejected, err.Error())
		return nil, err
	}

	status := models.PostbackAccepted
	if result.Duplicate {
		status = models.PostbackDuplicate
	}
	s.audit(ctx, offer.ID, eventType, params, event.IdempotencyKey(), status, "")

	if !result.Duplicate && s.notifier != nil {
		s.notifier.NotifyConversion(ctx, link, result)
	}

	return result, nil
}

// normalize converts wire parameters into the canonical event, validating
// the per-type required fields: registrations need subid + customer id,
// deposits additionally need amount + currency.
func (s *PostbackService) normalize(offer *models.Offer, eventType models.EventType, params PostbackParams) (*models.Event, error) {
	if eventType != models.EventRegistration && eventType != models.EventDeposit {
		return nil, &MalformedEventError{Field: "event", Reason: "must be registration or deposit"}
	}
	if strings.TrimSpace(params.SubID) == "" {
		return nil, &MalformedEventError{Field: "subid", Reason: "is required"}
	}
	if strings.TrimSpace(params.CustomerID) == "" {
		return nil, &MalformedEventError{Field: "customer_id", Reason: "is required"}
	}

	now := time.Now().UTC()
	event := &models.Event{
		Type:        eventType,
		OfferID:     offer.ID,
		LinkCode:    strings.TrimSpace(params.SubID),
		CustomerID:  strings.TrimSpace(params.CustomerID),
		Email:       strings.TrimSpace(params.Email),
		Currency:    strings.ToUpper(strings.TrimSpace(params.Currency)),
		ExternalRef: strings.TrimSpace(params.ExternalRef),
		ReceivedAt:  now,
	}

	if eventType == models.EventDeposit {
		if strings.TrimSpace(params.Amount) == "" {
			return nil, &MalformedEventError{Field: "amount", Reason: "is required"}
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(params.Amount), 64)
		if err != nil {
			return nil, &MalformedEventError{Field: "amount", Reason: "must be a number"}
		}
		event.Amount = amount
		if event.Currency == "" {
			return nil, &MalformedEventError{Field: "currency", Reason: "is required"}
		}
	}

	if ts := strings.TrimSpace(params.Timestamp); ts != "" {
		occurred, err := parseTimestamp(ts)
		if err != nil {
			return nil, &MalformedEventError{Field: "timestamp", Reason: "must be unix seconds or RFC3339"}
		}
		if occurred.After(now.Add(maxTimestampSkew)) {
			return nil, &MalformedEventError{Field: "timestamp", Reason: "is in the future"}
		}
		event.OccurredAt = occurred
	}

	return event, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// audit records the postback outcome. Audit failures are logged and
// swallowed: the audit trail must never turn an accepted conversion into a
// 5xx that triggers a redelivery.
func (s *PostbackService) audit(ctx context.Context, offerID string, eventType models.EventType, params PostbackParams, idempotencyKey string, status models.PostbackStatus, errMsg string) {
	amount, _ := strconv.ParseFloat(strings.TrimSpace(params.Amount), 64)
	record := &models.PostbackEvent{
		ID:             ulid.Make().String(),
		OfferID:        offerID,
		EventType:      eventType,
		LinkCode:       strings.TrimSpace(params.SubID),
		CustomerID:     strings.TrimSpace(params.CustomerID),
		Amount:         amount,
		Currency:       strings.ToUpper(strings.TrimSpace(params.Currency)),
		IdempotencyKey: idempotencyKey,
		Status:         status,
		ErrorMessage:   errMsg,
		RawQuery:       params.RawQuery,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.events.Create(ctx, record); err != nil {
		s.logger.Error("failed to write postback audit record",
			"offer_id", offerID, "status", status, "error", err)
	}
}
