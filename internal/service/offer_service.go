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

// postbackTokenBytes sizes the random offer postback token.
const postbackTokenBytes = 24

// OfferInput holds the writable fields of an offer.
type OfferInput struct {
	Name               string
	WebsiteURL         string
	CommissionModel    models.CommissionModel
	CPAAmount          float64
	RevSharePercent    float64
	CookieDurationDays int
	IsActive           bool
}

// OfferService manages betting-house offers and their postback tokens.
type OfferService struct {
	offers            repository.OfferRepository
	baseURL           string
	defaultCookieDays int
	logger            *slog.Logger
}

// NewOfferService creates a new offer service. baseURL is the public origin
// postback URLs are built against; defaultCookieDays is the attribution
// window applied to offers that do not configure one.
func NewOfferService(offers repository.OfferRepository, baseURL string, defaultCookieDays int, logger *slog.Logger) *OfferService {
	if defaultCookieDays <= 0 {
		defaultCookieDays = models.DefaultCookieDurationDays
	}
	return &OfferService{
		offers:            offers,
		baseURL:           strings.TrimRight(baseURL, "/"),
		defaultCookieDays: defaultCookieDays,
		logger:            logger,
	}
}

// Create validates and stores a new offer with a freshly generated postback
// token.
func (s *OfferService) Create(ctx context.Context, input OfferInput) (*models.Offer, error) {
	if err := validateOfferInput(input); err != nil {
		return nil, err
	}

	token, err := crypto.GenerateToken(postbackTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate postback token: %w", err)
	}

	now := time.Now().UTC()
	offer := &models.Offer{
		ID:                 ulid.Make().String(),
		Name:               strings.TrimSpace(input.Name),
		WebsiteURL:         strings.TrimSpace(input.WebsiteURL),
		CommissionModel:    input.CommissionModel,
		CPAAmount:          input.CPAAmount,
		RevSharePercent:    input.RevSharePercent,
		CookieDurationDays: input.CookieDurationDays,
		PostbackToken:      token,
		IsActive:           input.IsActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if offer.CookieDurationDays <= 0 {
		offer.CookieDurationDays = s.defaultCookieDays
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	s.logger.Info("offer created", "offer_id", offer.ID, "name", offer.Name,
		"commission_model", offer.CommissionModel)
	return offer, nil
}

// Get returns an offer by ID, or ErrNotFound.
func (s *OfferService) Get(ctx context.Context, id string) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer == nil {
		return nil, ErrNotFound
	}
	return offer, nil
}

// List returns a page of offers.
func (s *OfferService) List(ctx context.Context, limit, offset int) ([]*models.Offer, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.offers.List(ctx, limit, offset)
}

// Update applies the writable fields to an existing offer.
func (s *OfferService) Update(ctx context.Context, id string, input OfferInput) (*models.Offer, error) {
	if err := validateOfferInput(input); err != nil {
		return nil, err
	}

	offer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	offer.Name = strings.TrimSpace(input.Name)
	offer.WebsiteURL = strings.TrimSpace(input.WebsiteURL)
	offer.CommissionModel = input.CommissionModel
	offer.CPAAmount = input.CPAAmount
	offer.RevSharePercent = input.RevSharePercent
	offer.CookieDurationDays = input.CookieDurationDays
	if offer.CookieDurationDays <= 0 {
		offer.CookieDurationDays = s.defaultCookieDays
	}
	offer.IsActive = input.IsActive

	if err := s.offers.Update(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to update offer: %w", err)
	}
	return offer, nil
}

// RotateToken replaces an offer's postback token. Postback URLs issued with
// the old token stop working immediately; the house must be reconfigured
// with the new URL.
func (s *OfferService) RotateToken(ctx context.Context, id string) (*models.Offer, error) {
	token, err := crypto.GenerateToken(postbackTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate postback token: %w", err)
	}

	err = s.offers.RotateToken(ctx, id, token)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to rotate postback token: %w", err)
	}

	s.logger.Info("postback token rotated", "offer_id", id)
	return s.Get(ctx, id)
}

// PostbackURL builds the per-offer postback URL template the house is
// configured with.
func (s *OfferService) PostbackURL(offer *models.Offer, eventType models.EventType) string {
	return fmt.Sprintf("%s/api/postback/%s/%s?subid={subid}&customer_id={customer_id}",
		s.baseURL, offer.PostbackToken, eventType)
}

// Delete removes an offer. Conversion history keeps its offer_id but the
// house can no longer post to it.
func (s *OfferService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.offers.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete offer: %w", err)
	}
	s.logger.Info("offer deleted", "offer_id", id)
	return nil
}

func validateOfferInput(input OfferInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return &MalformedEventError{Field: "name", Reason: "is required"}
	}
	if u := strings.TrimSpace(input.WebsiteURL); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return &MalformedEventError{Field: "website_url", Reason: "must be an http(s) URL"}
		}
	}
	if !input.CommissionModel.Valid() {
		return &MalformedEventError{Field: "commission_model", Reason: "must be cpa, revshare or hybrid"}
	}
	if input.CommissionModel.PaysCPA() && input.CPAAmount <= 0 {
		return &MalformedEventError{Field: "cpa_amount", Reason: "must be positive"}
	}
	if input.CommissionModel.PaysRevShare() && (input.RevSharePercent <= 0 || input.RevSharePercent > 100) {
		return &MalformedEventError{Field: "revshare_percent", Reason: "must be in (0, 100]"}
	}
	return nil
}
