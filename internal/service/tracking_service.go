package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/betlinkr/betlinkr-api/internal/crypto"
	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/repository"
)

// AttributionCookie is the encrypted first-party payload set on redirect.
// The browser carries it back on the tracking endpoints; the expiry inside
// the payload is authoritative, the cookie's Max-Age is advisory.
type AttributionCookie struct {
	ClickID     string    `json:"cid"`
	LinkID      string    `json:"lid"`
	LinkCode    string    `json:"code"`
	AffiliateID string    `json:"aid"`
	OfferID     string    `json:"oid"`
	ExpiresAt   time.Time `json:"exp"`
}

// ClickResult carries everything the redirect handler needs: where to send
// the visitor and the sealed cookie to set.
type ClickResult struct {
	Click          *models.Click
	Link           *models.AffiliateLink
	Offer          *models.Offer
	DestinationURL string
	CookieValue    string
	CookieMaxAge   int
}

// TrackingService handles the first-party side of attribution: recording
// clicks on tracking links, issuing the attribution cookie, and marking
// clicks converted when a conversion is observed on the affiliate's own
// page rather than via a house postback.
type TrackingService struct {
	links     repository.LinkRepository
	clicks    repository.ClickRepository
	offers    repository.OfferRepository
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

// NewTrackingService creates a new tracking service.
func NewTrackingService(
	links repository.LinkRepository,
	clicks repository.ClickRepository,
	offers repository.OfferRepository,
	encryptor *crypto.Encryptor,
	logger *slog.Logger,
) *TrackingService {
	return &TrackingService{
		links:     links,
		clicks:    clicks,
		offers:    offers,
		encryptor: encryptor,
		logger:    logger,
	}
}

// TrackClick records a visit through a tracking link and prepares the
// redirect. Deactivated links return ErrLinkInactive; this is the one place
// deactivation is enforced, so in-flight postbacks for old clicks still
// attribute.
func (s *TrackingService) TrackClick(ctx context.Context, code, clientIP, userAgent, referrer string) (*ClickResult, error) {
	link, err := s.links.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up link: %w", err)
	}
	if link == nil {
		return nil, ErrNotFound
	}
	if !link.IsActive {
		return nil, ErrLinkInactive
	}

	offer, err := s.offers.GetByID(ctx, link.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer == nil || !offer.IsActive {
		// The link outlived its offer; treat like a dead link.
		return nil, ErrLinkInactive
	}

	click := &models.Click{
		ID:          ulid.Make().String(),
		AffiliateID: link.AffiliateID,
		LinkID:      link.ID,
		ClientIP:    clientIP,
		UserAgent:   userAgent,
		Referrer:    referrer,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.clicks.Create(ctx, click); err != nil {
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	window := offer.CookieDuration()
	cookieValue, err := s.sealCookie(&AttributionCookie{
		ClickID:     click.ID,
		LinkID:      link.ID,
		LinkCode:    link.Code,
		AffiliateID: link.AffiliateID,
		OfferID:     offer.ID,
		ExpiresAt:   time.Now().UTC().Add(window),
	})
	if err != nil {
		return nil, err
	}

	dest := link.DestinationURL
	if dest == "" {
		dest = offer.WebsiteURL
	}

	s.logger.Debug("click tracked",
		"link_id", link.ID, "link_code", link.Code, "click_id", click.ID)

	return &ClickResult{
		Click:          click,
		Link:           link,
		Offer:          offer,
		DestinationURL: dest,
		CookieValue:    cookieValue,
		CookieMaxAge:   int(window.Seconds()),
	}, nil
}

// Attribution decrypts and validates an attribution cookie value. Expired
// or undecryptable cookies return nil: the visit is simply outside the
// attribution window.
func (s *TrackingService) Attribution(cookieValue string) *AttributionCookie {
	if cookieValue == "" {
		return nil
	}
	plain, err := s.encryptor.Decrypt(cookieValue)
	if err != nil {
		return nil
	}
	var attr AttributionCookie
	if err := json.Unmarshal([]byte(plain), &attr); err != nil {
		return nil
	}
	if time.Now().UTC().After(attr.ExpiresAt) {
		return nil
	}
	return &attr
}

// MarkConverted flips the originating click to converted, at most once.
// Returns false when the cookie does not resolve to an unconverted click.
func (s *TrackingService) MarkConverted(ctx context.Context, attr *AttributionCookie) (bool, error) {
	if attr == nil {
		return false, nil
	}
	flipped, err := s.clicks.MarkConverted(ctx, attr.ClickID)
	if err != nil {
		return false, fmt.Errorf("failed to mark click converted: %w", err)
	}
	if flipped {
		s.logger.Info("click converted", "click_id", attr.ClickID, "link_id", attr.LinkID)
	}
	return flipped, nil
}

func (s *TrackingService) sealCookie(attr *AttributionCookie) (string, error) {
	payload, err := json.Marshal(attr)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attribution payload: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to seal attribution payload: %w", err)
	}
	return sealed, nil
}
