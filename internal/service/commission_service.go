package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// CommissionService computes commission for attributed events and records
// it exactly once. The storage layer's unique constraints are the dedup
// mechanism; this service only decides amounts and interprets a constraint
// conflict as "already processed".
type CommissionService struct {
	conversions repository.ConversionRepository
	logger      *slog.Logger
}

// NewCommissionService creates a new commission service.
func NewCommissionService(conversions repository.ConversionRepository, logger *slog.Logger) *CommissionService {
	return &CommissionService{conversions: conversions, logger: logger}
}

// ConversionResult reports the outcome of processing a conversion event.
type ConversionResult struct {
	Registration *models.Registration
	Deposit      *models.Deposit
	Commission   float64
	// Duplicate is true when the event had already been processed; no new
	// row or credit was produced by this call.
	Duplicate bool
}

// ProcessRegistration records a registration event and credits CPA
// commission when the offer's model pays one. Replayed events return the
// previously recorded registration with Duplicate set.
func (s *CommissionService) ProcessRegistration(ctx context.Context, offer *models.Offer, link *models.AffiliateLink, event *models.Event) (*ConversionResult, error) {
	commission := 0.0
	if offer.CommissionModel.PaysCPA() {
		commission = offer.CPAAmount
	}

	reg := &models.Registration{
		ID:             ulid.Make().String(),
		AffiliateID:    link.AffiliateID,
		OfferID:        offer.ID,
		LinkID:         link.ID,
		CustomerID:     event.CustomerID,
		Email:          event.Email,
		CPACommission:  commission,
		IdempotencyKey: event.IdempotencyKey(),
		CreatedAt:      time.Now().UTC(),
	}

	err := s.conversions.CreateRegistration(ctx, reg)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, lookupErr := s.conversions.GetRegistrationByCustomer(ctx, offer.ID, event.CustomerID)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to load existing registration: %w", lookupErr)
		}
		s.logger.Info("duplicate registration postback",
			"offer_id", offer.ID, "customer_id", event.CustomerID)
		return &ConversionResult{Registration: existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record registration: %w", err)
	}

	s.logger.Info("registration recorded",
		"offer_id", offer.ID,
		"link_id", link.ID,
		"customer_id", event.CustomerID,
		"commission", commission,
	)
	return &ConversionResult{Registration: reg, Commission: commission}, nil
}

// ProcessDeposit records a deposit event and credits RevShare commission
// when the offer's model pays one. A deposit arriving before its
// registration is recorded standalone and matched by (offer, customer);
// the registration link is not backfilled later.
func (s *CommissionService) ProcessDeposit(ctx context.Context, offer *models.Offer, link *models.AffiliateLink, event *models.Event) (*ConversionResult, error) {
	if event.Amount <= 0 || math.IsNaN(event.Amount) || math.IsInf(event.Amount, 0) {
		return nil, &MalformedEventError{Field: "amount", Reason: "must be a positive number"}
	}

	commission := 0.0
	if offer.CommissionModel.PaysRevShare() {
		commission = roundMoney(event.Amount * offer.RevSharePercent / 100)
	}

	dep := &models.Deposit{
		ID:             ulid.Make().String(),
		AffiliateID:    link.AffiliateID,
		OfferID:        offer.ID,
		LinkID:         link.ID,
		CustomerID:     event.CustomerID,
		Amount:         event.Amount,
		Currency:       event.Currency,
		Commission:     commission,
		Status:         models.DepositConfirmed,
		ExternalRef:    event.ExternalRef,
		IdempotencyKey: event.IdempotencyKey(),
		CreatedAt:      time.Now().UTC(),
	}

	// Link to the registration when it already exists. When the deposit
	// postback outruns the registration postback the deposit stands alone.
	reg, err := s.conversions.GetRegistrationByCustomer(ctx, offer.ID, event.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up registration: %w", err)
	}
	if reg != nil {
		dep.RegistrationID = &reg.ID
	}

	err = s.conversions.CreateDeposit(ctx, dep)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, lookupErr := s.conversions.GetDepositByKey(ctx, dep.IdempotencyKey)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to load existing deposit: %w", lookupErr)
		}
		s.logger.Info("duplicate deposit postback",
			"offer_id", offer.ID, "customer_id", event.CustomerID, "amount", event.Amount)
		return &ConversionResult{Deposit: existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	s.logger.Info("deposit recorded",
		"offer_id", offer.ID,
		"link_id", link.ID,
		"customer_id", event.CustomerID,
		"amount", event.Amount,
		"commission", commission,
	)
	return &ConversionResult{Deposit: dep, Commission: commission}, nil
}

// VerifyLedger recomputes a link's commission total from the conversion
// rows and compares it with the running aggregate. Used by the reporting
// endpoints to surface drift, which should never happen.
func (s *CommissionService) VerifyLedger(ctx context.Context, link *models.AffiliateLink) (bool, float64, error) {
	sum, err := s.conversions.SumCommissionByLink(ctx, link.ID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to sum commissions: %w", err)
	}
	return math.Abs(sum-link.TotalCommission) < 0.005, sum, nil
}

// roundMoney rounds to two decimal places.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
