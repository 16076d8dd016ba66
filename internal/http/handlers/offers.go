package handlers

import (
	"context"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

// OfferHandler handles the admin-facing offer endpoints.
type OfferHandler struct {
	offerSvc *service.OfferService
	statsSvc *service.StatsService
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(offerSvc *service.OfferService, statsSvc *service.StatsService) *OfferHandler {
	return &OfferHandler{offerSvc: offerSvc, statsSvc: statsSvc}
}

// OfferBody represents offer data in API requests.
type OfferBody struct {
	Name               string  `json:"name" minLength:"1" maxLength:"128" doc:"Betting house name"`
	WebsiteURL         string  `json:"website_url,omitempty" format:"uri" doc:"House website, used as redirect fallback"`
	CommissionModel    string  `json:"commission_model" enum:"cpa,revshare,hybrid" doc:"How this offer pays commission"`
	CPAAmount          float64 `json:"cpa_amount,omitempty" minimum:"0" doc:"Flat payout per registration (cpa and hybrid)"`
	RevSharePercent    float64 `json:"revshare_percent,omitempty" minimum:"0" maximum:"100" doc:"Percentage of each deposit (revshare and hybrid)"`
	CookieDurationDays int     `json:"cookie_duration_days,omitempty" minimum:"0" doc:"Attribution window in days (0 for the default)"`
	IsActive           bool    `json:"is_active" doc:"Whether postbacks and clicks are accepted"`
}

// OfferResponse represents an offer in API responses.
type OfferResponse struct {
	ID                 string  `json:"id" doc:"Offer ID"`
	Name               string  `json:"name" doc:"Betting house name"`
	WebsiteURL         string  `json:"website_url,omitempty" doc:"House website"`
	CommissionModel    string  `json:"commission_model" doc:"Commission model"`
	CPAAmount          float64 `json:"cpa_amount" doc:"Flat payout per registration"`
	RevSharePercent    float64 `json:"revshare_percent" doc:"Percentage of each deposit"`
	CookieDurationDays int     `json:"cookie_duration_days" doc:"Attribution window in days"`
	IsActive           bool    `json:"is_active" doc:"Whether the offer is active"`
	PostbackURLs       struct {
		Registration string `json:"registration" doc:"Postback URL template for registrations"`
		Deposit      string `json:"deposit" doc:"Postback URL template for deposits"`
	} `json:"postback_urls" doc:"URLs to configure at the betting house"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp"`
}

func (h *OfferHandler) toResponse(offer *models.Offer) OfferResponse {
	resp := OfferResponse{
		ID:                 offer.ID,
		Name:               offer.Name,
		WebsiteURL:         offer.WebsiteURL,
		CommissionModel:    string(offer.CommissionModel),
		CPAAmount:          offer.CPAAmount,
		RevSharePercent:    offer.RevSharePercent,
		CookieDurationDays: offer.CookieDurationDays,
		IsActive:           offer.IsActive,
		CreatedAt:          offer.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          offer.UpdatedAt.Format(time.RFC3339),
	}
	resp.PostbackURLs.Registration = h.offerSvc.PostbackURL(offer, models.EventRegistration)
	resp.PostbackURLs.Deposit = h.offerSvc.PostbackURL(offer, models.EventDeposit)
	return resp
}

func offerInputFromBody(body OfferBody) service.OfferInput {
	return service.OfferInput{
		Name:               body.Name,
		WebsiteURL:         body.WebsiteURL,
		CommissionModel:    models.CommissionModel(body.CommissionModel),
		CPAAmount:          body.CPAAmount,
		RevSharePercent:    body.RevSharePercent,
		CookieDurationDays: body.CookieDurationDays,
		IsActive:           body.IsActive,
	}
}

// ListOffersInput represents the list offers request.
type ListOffersInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"50" doc:"Page size"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
}

// ListOffersOutput represents the list offers response.
type ListOffersOutput struct {
	Body struct {
		Offers []OfferResponse `json:"offers" doc:"List of offers"`
	}
}

// ListOffers returns a page of offers.
func (h *OfferHandler) ListOffers(ctx context.Context, input *ListOffersInput) (*ListOffersOutput, error) {
	offers, err := h.offerSvc.List(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err, "list offers")
	}

	out := &ListOffersOutput{}
	out.Body.Offers = make([]OfferResponse, 0, len(offers))
	for _, offer := range offers {
		out.Body.Offers = append(out.Body.Offers, h.toResponse(offer))
	}
	return out, nil
}

// GetOfferInput represents the get offer request.
type GetOfferInput struct {
	ID string `path:"id" doc:"Offer ID"`
}

// GetOfferOutput represents the get offer response.
type GetOfferOutput struct {
	Body OfferResponse
}

// GetOffer returns a specific offer.
func (h *OfferHandler) GetOffer(ctx context.Context, input *GetOfferInput) (*GetOfferOutput, error) {
	offer, err := h.offerSvc.Get(ctx, input.ID)
	if err != nil {
		return nil, mapServiceError(err, "get offer")
	}
	return &GetOfferOutput{Body: h.toResponse(offer)}, nil
}

// CreateOfferInput represents the create offer request.
type CreateOfferInput struct {
	Body OfferBody
}

// CreateOfferOutput represents the create offer response.
type CreateOfferOutput struct {
	Body OfferResponse
}

// CreateOffer creates a new offer with a fresh postback token.
func (h *OfferHandler) CreateOffer(ctx context.Context, input *CreateOfferInput) (*CreateOfferOutput, error) {
	offer, err := h.offerSvc.Create(ctx, offerInputFromBody(input.Body))
	if err != nil {
		return nil, mapServiceError(err, "create offer")
	}
	return &CreateOfferOutput{Body: h.toResponse(offer)}, nil
}

// UpdateOfferInput represents the update offer request.
type UpdateOfferInput struct {
	ID   string `path:"id" doc:"Offer ID"`
	Body OfferBody
}

// UpdateOfferOutput represents the update offer response.
type UpdateOfferOutput struct {
	Body OfferResponse
}

// UpdateOffer applies the writable fields to an offer.
func (h *OfferHandler) UpdateOffer(ctx context.Context, input *UpdateOfferInput) (*UpdateOfferOutput, error) {
	offer, err := h.offerSvc.Update(ctx, input.ID, offerInputFromBody(input.Body))
	if err != nil {
		return nil, mapServiceError(err, "update offer")
	}
	return &UpdateOfferOutput{Body: h.toResponse(offer)}, nil
}

// RotateTokenInput represents the rotate token request.
type RotateTokenInput struct {
	ID string `path:"id" doc:"Offer ID"`
}

// RotateTokenOutput represents the rotate token response.
type RotateTokenOutput struct {
	Body OfferResponse
}

// RotateToken replaces an offer's postback token. The house must be
// reconfigured with the new postback URLs.
func (h *OfferHandler) RotateToken(ctx context.Context, input *RotateTokenInput) (*RotateTokenOutput, error) {
	offer, err := h.offerSvc.RotateToken(ctx, input.ID)
	if err != nil {
		return nil, mapServiceError(err, "rotate postback token")
	}
	return &RotateTokenOutput{Body: h.toResponse(offer)}, nil
}

// DeleteOfferInput represents the delete offer request.
type DeleteOfferInput struct {
	ID string `path:"id" doc:"Offer ID"`
}

// DeleteOfferOutput represents the delete offer response.
type DeleteOfferOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

// DeleteOffer removes an offer.
func (h *OfferHandler) DeleteOffer(ctx context.Context, input *DeleteOfferInput) (*DeleteOfferOutput, error) {
	if err := h.offerSvc.Delete(ctx, input.ID); err != nil {
		return nil, mapServiceError(err, "delete offer")
	}
	out := &DeleteOfferOutput{}
	out.Body.Deleted = true
	return out, nil
}

// PostbackEventResponse represents an audit record in API responses.
type PostbackEventResponse struct {
	ID         string  `json:"id" doc:"Audit record ID"`
	EventType  string  `json:"event_type" doc:"Event type"`
	LinkCode   string  `json:"link_code,omitempty" doc:"Subid the house sent"`
	CustomerID string  `json:"customer_id,omitempty" doc:"External customer ID"`
	Amount     float64 `json:"amount,omitempty" doc:"Deposit amount, if any"`
	Currency   string  `json:"currency,omitempty" doc:"Deposit currency"`
	Status     string  `json:"status" doc:"Outcome (accepted, duplicate, unattributed, rejected)"`
	Error      string  `json:"error,omitempty" doc:"Rejection reason"`
	CreatedAt  string  `json:"created_at" doc:"Receipt timestamp"`
}

// ListPostbacksInput represents the postback log request.
type ListPostbacksInput struct {
	ID     string `path:"id" doc:"Offer ID"`
	Limit  int    `query:"limit" minimum:"1" maximum:"100" default:"50" doc:"Page size"`
	Offset int    `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
}

// ListPostbacksOutput represents the postback log response.
type ListPostbacksOutput struct {
	Body struct {
		Events []PostbackEventResponse `json:"events" doc:"Audit records, newest first"`
		Counts map[string]int64        `json:"counts" doc:"Per-status totals for the offer"`
	}
}

// ListPostbacks returns the inbound postback audit trail for an offer.
func (h *OfferHandler) ListPostbacks(ctx context.Context, input *ListPostbacksInput) (*ListPostbacksOutput, error) {
	if _, err := h.offerSvc.Get(ctx, input.ID); err != nil {
		return nil, mapServiceError(err, "get offer")
	}

	events, err := h.statsSvc.PostbackLog(ctx, input.ID, input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err, "list postbacks")
	}
	counts, err := h.statsSvc.PostbackCounts(ctx, input.ID)
	if err != nil {
		return nil, mapServiceError(err, "count postbacks")
	}

	out := &ListPostbacksOutput{}
	out.Body.Events = make([]PostbackEventResponse, 0, len(events))
	for _, e := range events {
		out.Body.Events = append(out.Body.Events, PostbackEventResponse{
			ID:         e.ID,
			EventType:  string(e.EventType),
			LinkCode:   e.LinkCode,
			CustomerID: e.CustomerID,
			Amount:     e.Amount,
			Currency:   e.Currency,
			Status:     string(e.Status),
			Error:      e.ErrorMessage,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		})
	}
	out.Body.Counts = make(map[string]int64, len(counts))
	for status, n := range counts {
		out.Body.Counts[string(status)] = n
	}
	return out, nil
}
