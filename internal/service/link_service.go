package service

import (
	"context"
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

const (
	// linkCodeBytes sizes generated link codes: 6 random bytes encode to 8
	// URL-safe characters, short enough for hand-typed campaign URLs.
	linkCodeBytes = 6

	// linkCodeAttempts bounds collision retries on code generation.
	linkCodeAttempts = 5
)

// LinkInput holds the writable fields of an affiliate link.
type LinkInput struct {
	OfferID        string
	DestinationURL string
	// Code is optional; when empty a random code is generated.
	Code string
}

// LinkService manages affiliate tracking links.
type LinkService struct {
	links      repository.LinkRepository
	offers     repository.OfferRepository
	commission *CommissionService
	baseURL    string
	logger     *slog.Logger
}

// NewLinkService creates a new link service.
func NewLinkService(
	links repository.LinkRepository,
	offers repository.OfferRepository,
	commission *CommissionService,
	baseURL string,
	logger *slog.Logger,
) *LinkService {
	return &LinkService{
		links:      links,
		offers:     offers,
		commission: commission,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// Create stores a new tracking link for an affiliate. Custom codes conflict
// with ErrNameTaken; generated codes retry on the (unlikely) collision.
func (s *LinkService) Create(ctx context.Context, affiliateID string, input LinkInput) (*models.AffiliateLink, error) {
	offer, err := s.offers.GetByID(ctx, input.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer == nil || !offer.IsActive {
		return nil, ErrNotFound
	}

	dest := strings.TrimSpace(input.DestinationURL)
	if dest != "" {
		parsed, err := url.Parse(dest)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, &MalformedEventError{Field: "destination_url", Reason: "must be an http(s) URL"}
		}
	}

	customCode := strings.TrimSpace(input.Code)
	if customCode != "" && !validLinkCode(customCode) {
		return nil, &MalformedEventError{Field: "code", Reason: "must be 4-32 URL-safe characters"}
	}

	now := time.Now().UTC()
	link := &models.AffiliateLink{
		ID:             ulid.Make().String(),
		AffiliateID:    affiliateID,
		OfferID:        offer.ID,
		Code:           customCode,
		DestinationURL: dest,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 0; attempt < linkCodeAttempts; attempt++ {
		if customCode == "" {
			code, err := crypto.GenerateToken(linkCodeBytes)
			if err != nil {
				return nil, fmt.Errorf("failed to generate link code: %w", err)
			}
			link.Code = code
		}

		err = s.links.Create(ctx, link)
		if errors.Is(err, repository.ErrDuplicate) {
			if customCode != "" {
				return nil, ErrNameTaken
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create link: %w", err)
		}

		s.logger.Info("link created",
			"link_id", link.ID, "code", link.Code,
			"affiliate_id", affiliateID, "offer_id", offer.ID)
		return link, nil
	}
	return nil, fmt.Errorf("failed to create link: code collisions on %d attempts", linkCodeAttempts)
}

// Get returns a link owned by the given affiliate, or ErrNotFound. Ownership
// is enforced here so handlers cannot leak other affiliates' links.
func (s *LinkService) Get(ctx context.Context, affiliateID, id string) (*models.AffiliateLink, error) {
	link, err := s.links.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load link: %w", err)
	}
	if link == nil || link.AffiliateID != affiliateID {
		return nil, ErrNotFound
	}
	return link, nil
}

// ListByAffiliate returns all links owned by an affiliate.
func (s *LinkService) ListByAffiliate(ctx context.Context, affiliateID string) ([]*models.AffiliateLink, error) {
	return s.links.GetByAffiliateID(ctx, affiliateID)
}

// Update applies the writable fields to a link. The code is immutable after
// creation: postback subids in flight reference it.
func (s *LinkService) Update(ctx context.Context, affiliateID, id string, destinationURL string, isActive bool) (*models.AffiliateLink, error) {
	link, err := s.Get(ctx, affiliateID, id)
	if err != nil {
		return nil, err
	}

	dest := strings.TrimSpace(destinationURL)
	if dest != "" {
		parsed, err := url.Parse(dest)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, &MalformedEventError{Field: "destination_url", Reason: "must be an http(s) URL"}
		}
	}

	link.DestinationURL = dest
	link.IsActive = isActive
	if err := s.links.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}
	return link, nil
}

// SetActive toggles a link. Deactivation stops new clicks only; conversions
// for clicks already sent keep attributing.
func (s *LinkService) SetActive(ctx context.Context, affiliateID, id string, active bool) error {
	if _, err := s.Get(ctx, affiliateID, id); err != nil {
		return err
	}
	if err := s.links.SetActive(ctx, id, active); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to toggle link: %w", err)
	}
	s.logger.Info("link toggled", "link_id", id, "active", active)
	return nil
}

// Stats returns the aggregate view of a link together with a ledger
// consistency check against the source-of-truth conversion rows.
func (s *LinkService) Stats(ctx context.Context, affiliateID, id string) (*models.LinkStats, bool, error) {
	link, err := s.Get(ctx, affiliateID, id)
	if err != nil {
		return nil, false, err
	}

	stats, err := s.links.GetStats(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load stats: %w", err)
	}
	if stats == nil {
		return nil, false, ErrNotFound
	}

	consistent, sum, err := s.commission.VerifyLedger(ctx, link)
	if err != nil {
		return nil, false, err
	}
	if !consistent {
		s.logger.Error("ledger drift detected",
			"link_id", id, "aggregate", link.TotalCommission, "recomputed", sum)
	}
	return stats, consistent, nil
}

// TrackingURL builds the public redirect URL for a link.
func (s *LinkService) TrackingURL(link *models.AffiliateLink) string {
	return s.baseURL + "/ref/" + link.Code
}

func validLinkCode(code string) bool {
	if len(code) < 4 || len(code) > 32 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
