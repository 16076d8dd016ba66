package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// StatsService serves the reporting side: affiliate summaries, per-link
// conversion listings and the inbound postback audit log. Everything here
// is read-only.
type StatsService struct {
	affiliates  repository.AffiliateRepository
	conversions repository.ConversionRepository
	events      repository.PostbackEventRepository
	logger      *slog.Logger
}

// NewStatsService creates a new stats service.
func NewStatsService(
	affiliates repository.AffiliateRepository,
	conversions repository.ConversionRepository,
	events repository.PostbackEventRepository,
	logger *slog.Logger,
) *StatsService {
	return &StatsService{
		affiliates:  affiliates,
		conversions: conversions,
		events:      events,
		logger:      logger,
	}
}

// AffiliateSummary returns cross-link aggregates for one affiliate.
func (s *StatsService) AffiliateSummary(ctx context.Context, affiliateID string) (*models.AffiliateSummary, error) {
	summary, err := s.affiliates.GetSummary(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load affiliate summary: %w", err)
	}
	if summary == nil {
		return nil, ErrNotFound
	}
	return summary, nil
}

// Registrations lists registrations attributed to a link, newest first.
func (s *StatsService) Registrations(ctx context.Context, linkID string, limit, offset int) ([]*models.Registration, error) {
	return s.conversions.ListRegistrationsByLink(ctx, linkID, clampLimit(limit), offset)
}

// Deposits lists deposits attributed to a link, newest first.
func (s *StatsService) Deposits(ctx context.Context, linkID string, limit, offset int) ([]*models.Deposit, error) {
	return s.conversions.ListDepositsByLink(ctx, linkID, clampLimit(limit), offset)
}

// PostbackLog lists the audit trail for an offer, newest first.
func (s *StatsService) PostbackLog(ctx context.Context, offerID string, limit, offset int) ([]*models.PostbackEvent, error) {
	return s.events.ListByOffer(ctx, offerID, clampLimit(limit), offset)
}

// PostbackCounts returns per-status counts for an offer's audit trail,
// the health view operators watch for unattributed spikes.
func (s *StatsService) PostbackCounts(ctx context.Context, offerID string) (map[models.PostbackStatus]int64, error) {
	counts := make(map[models.PostbackStatus]int64, 4)
	for _, status := range []models.PostbackStatus{
		models.PostbackAccepted, models.PostbackDuplicate,
		models.PostbackUnattributed, models.PostbackRejected,
	} {
		n, err := s.events.CountByStatus(ctx, offerID, status)
		if err != nil {
			return nil, fmt.Errorf("failed to count postbacks: %w", err)
		}
		counts[status] = n
	}
	return counts, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
