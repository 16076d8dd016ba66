package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

// LinkHandler handles the affiliate-facing tracking link endpoints.
type LinkHandler struct {
	linkSvc  *service.LinkService
	statsSvc *service.StatsService
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(linkSvc *service.LinkService, statsSvc *service.StatsService) *LinkHandler {
	return &LinkHandler{linkSvc: linkSvc, statsSvc: statsSvc}
}

// LinkResponse represents a tracking link in API responses.
type LinkResponse struct {
	ID              string  `json:"id" doc:"Link ID"`
	OfferID         string  `json:"offer_id" doc:"Offer this link promotes"`
	Code            string  `json:"code" doc:"Unique tracking code (the postback subid)"`
	TrackingURL     string  `json:"tracking_url" doc:"Public redirect URL to share"`
	DestinationURL  string  `json:"destination_url,omitempty" doc:"Custom landing page"`
	IsActive        bool    `json:"is_active" doc:"Whether the link accepts new clicks"`
	Clicks          int64   `json:"clicks" doc:"Total clicks"`
	Conversions     int64   `json:"conversions" doc:"Total attributed conversions"`
	TotalCommission float64 `json:"total_commission" doc:"Total commission earned"`
	CreatedAt       string  `json:"created_at" doc:"Creation timestamp"`
}

func (h *LinkHandler) toResponse(link *models.AffiliateLink) LinkResponse {
	return LinkResponse{
		ID:              link.ID,
		OfferID:         link.OfferID,
		Code:            link.Code,
		TrackingURL:     h.linkSvc.TrackingURL(link),
		DestinationURL:  link.DestinationURL,
		IsActive:        link.IsActive,
		Clicks:          link.Clicks,
		Conversions:     link.Conversions,
		TotalCommission: link.TotalCommission,
		CreatedAt:       link.CreatedAt.Format(time.RFC3339),
	}
}

// ListLinksOutput represents the list links response.
type ListLinksOutput struct {
	Body struct {
		Links []LinkResponse `json:"links" doc:"The affiliate's tracking links"`
	}
}

// ListLinks returns all links owned by the authenticated affiliate.
func (h *LinkHandler) ListLinks(ctx context.Context, input *struct{}) (*ListLinksOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	links, err := h.linkSvc.ListByAffiliate(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "list links")
	}

	out := &ListLinksOutput{}
	out.Body.Links = make([]LinkResponse, 0, len(links))
	for _, link := range links {
		out.Body.Links = append(out.Body.Links, h.toResponse(link))
	}
	return out, nil
}

// GetLinkInput represents the get link request.
type GetLinkInput struct {
	ID string `path:"id" doc:"Link ID"`
}

// GetLinkOutput represents the get link response.
type GetLinkOutput struct {
	Body LinkResponse
}

// GetLink returns a specific link.
func (h *LinkHandler) GetLink(ctx context.Context, input *GetLinkInput) (*GetLinkOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	link, err := h.linkSvc.Get(ctx, id, input.ID)
	if err != nil {
		return nil, mapServiceError(err, "get link")
	}
	return &GetLinkOutput{Body: h.toResponse(link)}, nil
}

// CreateLinkInput represents the create link request.
type CreateLinkInput struct {
	Body struct {
		OfferID        string `json:"offer_id" minLength:"1" doc:"Offer to promote"`
		DestinationURL string `json:"destination_url,omitempty" format:"uri" doc:"Custom landing page (defaults to the offer website)"`
		Code           string `json:"code,omitempty" minLength:"4" maxLength:"32" doc:"Custom tracking code (generated when empty)"`
	}
}

// CreateLinkOutput represents the create link response.
type CreateLinkOutput struct {
	Body LinkResponse
}

// CreateLink creates a new tracking link.
func (h *LinkHandler) CreateLink(ctx context.Context, input *CreateLinkInput) (*CreateLinkOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	link, err := h.linkSvc.Create(ctx, id, service.LinkInput{
		OfferID:        input.Body.OfferID,
		DestinationURL: input.Body.DestinationURL,
		Code:           input.Body.Code,
	})
	if err != nil {
		return nil, mapServiceError(err, "create link")
	}
	return &CreateLinkOutput{Body: h.toResponse(link)}, nil
}

// UpdateLinkInput represents the update link request.
type UpdateLinkInput struct {
	ID   string `path:"id" doc:"Link ID"`
	Body struct {
		DestinationURL string `json:"destination_url,omitempty" format:"uri" doc:"Custom landing page"`
		IsActive       bool   `json:"is_active" doc:"Whether the link accepts new clicks"`
	}
}

// UpdateLinkOutput represents the update link response.
type UpdateLinkOutput struct {
	Body LinkResponse
}

// UpdateLink applies the writable fields to a link. The code is immutable.
func (h *LinkHandler) UpdateLink(ctx context.Context, input *UpdateLinkInput) (*UpdateLinkOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	link, err := h.linkSvc.Update(ctx, id, input.ID, input.Body.DestinationURL, input.Body.IsActive)
	if err != nil {
		return nil, mapServiceError(err, "update link")
	}
	return &UpdateLinkOutput{Body: h.toResponse(link)}, nil
}

// LinkStatsInput represents the link stats request.
type LinkStatsInput struct {
	ID string `path:"id" doc:"Link ID"`
}

// LinkStatsOutput represents the link stats response.
type LinkStatsOutput struct {
	Body struct {
		LinkID           string  `json:"link_id" doc:"Link ID"`
		Clicks           int64   `json:"clicks" doc:"Total clicks"`
		Conversions      int64   `json:"conversions" doc:"Total attributed conversions"`
		Registrations    int64   `json:"registrations" doc:"Attributed registrations"`
		Deposits         int64   `json:"deposits" doc:"Attributed deposits"`
		DepositVolume    float64 `json:"deposit_volume" doc:"Sum of attributed deposit amounts"`
		TotalCommission  float64 `json:"total_commission" doc:"Total commission earned"`
		LedgerConsistent bool    `json:"ledger_consistent" doc:"Whether the running total matches the conversion rows"`
	}
}

// GetLinkStats returns the aggregate view of a link.
func (h *LinkHandler) GetLinkStats(ctx context.Context, input *LinkStatsInput) (*LinkStatsOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	stats, consistent, err := h.linkSvc.Stats(ctx, id, input.ID)
	if err != nil {
		return nil, mapServiceError(err, "get link stats")
	}

	out := &LinkStatsOutput{}
	out.Body.LinkID = stats.LinkID
	out.Body.Clicks = stats.Clicks
	out.Body.Conversions = stats.Conversions
	out.Body.Registrations = stats.Registrations
	out.Body.Deposits = stats.Deposits
	out.Body.DepositVolume = stats.DepositVolume
	out.Body.TotalCommission = stats.TotalCommission
	out.Body.LedgerConsistent = consistent
	return out, nil
}

// ConversionResponse represents an attributed conversion in API responses.
type ConversionResponse struct {
	ID         string  `json:"id" doc:"Conversion ID"`
	Type       string  `json:"type" doc:"registration or deposit"`
	CustomerID string  `json:"customer_id" doc:"External customer ID"`
	Amount     float64 `json:"amount,omitempty" doc:"Deposit amount"`
	Currency   string  `json:"currency,omitempty" doc:"Deposit currency"`
	Commission float64 `json:"commission" doc:"Commission credited"`
	CreatedAt  string  `json:"created_at" doc:"Record timestamp"`
}

// ListConversionsInput represents the conversion listing request.
type ListConversionsInput struct {
	ID     string `path:"id" doc:"Link ID"`
	Limit  int    `query:"limit" minimum:"1" maximum:"100" default:"50" doc:"Page size"`
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
}

// ListConversionsOutput represents the conversion listing response.
type ListConversionsOutput struct {
	Body struct {
		Registrations []ConversionResponse `json:"registrations" doc:"Attributed registrations"`
		Deposits      []ConversionResponse `json:"deposits" doc:"Attributed deposits"`
	}
}

// ListConversions lists the conversions attributed to a link.
func (h *LinkHandler) ListConversions(ctx context.Context, input *ListConversionsInput) (*ListConversionsOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	if _, err := h.linkSvc.Get(ctx, id, input.ID); err != nil {
		return nil, mapServiceError(err, "get link")
	}

	regs, err := h.statsSvc.Registrations(ctx, input.ID, input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err, "list registrations")
	}
	deps, err := h.statsSvc.Deposits(ctx, input.ID, input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err, "list deposits")
	}

	out := &ListConversionsOutput{}
	out.Body.Registrations = make([]ConversionResponse, 0, len(regs))
	for _, reg := range regs {
		out.Body.Registrations = append(out.Body.Registrations, ConversionResponse{
			ID:         reg.ID,
			Type:       string(models.EventRegistration),
			CustomerID: reg.CustomerID,
			Commission: reg.CPACommission,
			CreatedAt:  reg.CreatedAt.Format(time.RFC3339),
		})
	}
	out.Body.Deposits = make([]ConversionResponse, 0, len(deps))
	for _, dep := range deps {
		out.Body.Deposits = append(out.Body.Deposits, ConversionResponse{
			ID:         dep.ID,
			Type:       string(models.EventDeposit),
			CustomerID: dep.CustomerID,
			Amount:     dep.Amount,
			Currency:   dep.Currency,
			Commission: dep.Commission,
			CreatedAt:  dep.CreatedAt.Format(time.RFC3339),
		})
	}
	return out, nil
}
