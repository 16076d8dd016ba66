package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// AttributionService resolves canonical events to the affiliate link that
// owns them. Link codes are unique system-wide, so resolution is a direct
// unique-key lookup, never a heuristic match.
type AttributionService struct {
	links  repository.LinkRepository
	logger *slog.Logger
}

// NewAttributionService creates a new attribution service.
func NewAttributionService(links repository.LinkRepository, logger *slog.Logger) *AttributionService {
	return &AttributionService{links: links, logger: logger}
}

// Resolve finds the affiliate link for an event's link code.
//
// A deactivated link still resolves: houses post registrations and deposits
// for clicks that happened while the link was live, and those conversions
// belong to the affiliate. Deactivation only stops new clicks (enforced at
// the redirect endpoint, not here). There is no server-side attribution
// window cutoff on the postback path; the client-side cookie is the window.
func (s *AttributionService) Resolve(ctx context.Context, event *models.Event) (*models.AffiliateLink, error) {
	if event.LinkCode == "" {
		return nil, &MalformedEventError{Field: "subid", Reason: "is required"}
	}

	link, err := s.links.GetByCode(ctx, event.LinkCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up link code: %w", err)
	}
	if link == nil {
		s.logger.Warn("unattributable event",
			"offer_id", event.OfferID,
			"event_type", event.Type,
			"link_code", event.LinkCode,
		)
		return nil, ErrUnattributable
	}

	if link.OfferID != event.OfferID {
		// The subid belongs to a different house's link. Attribution would
		// credit the wrong program, so reject it like an unknown code.
		s.logger.Warn("link code belongs to another offer",
			"offer_id", event.OfferID,
			"link_offer_id", link.OfferID,
			"link_code", event.LinkCode,
		)
		return nil, ErrUnattributable
	}

	return link, nil
}
