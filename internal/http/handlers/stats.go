package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/service"
)

// StatsHandler handles the affiliate summary endpoint.
type StatsHandler struct {
	statsSvc *service.StatsService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsSvc *service.StatsService) *StatsHandler {
	return &StatsHandler{statsSvc: statsSvc}
}

// SummaryOutput represents the affiliate summary response.
type SummaryOutput struct {
	Body struct {
		AffiliateID      string  `json:"affiliate_id" doc:"Affiliate ID"`
		Links            int64   `json:"links" doc:"Number of tracking links"`
		Clicks           int64   `json:"clicks" doc:"Total clicks across links"`
		Conversions      int64   `json:"conversions" doc:"Total attributed conversions"`
		TotalCommission  float64 `json:"total_commission" doc:"Lifetime commission"`
		AvailableBalance float64 `json:"available_balance" doc:"Balance not yet paid out"`
	}
}

// GetSummary returns cross-link aggregates for the authenticated affiliate.
func (h *StatsHandler) GetSummary(ctx context.Context, input *struct{}) (*SummaryOutput, error) {
	id := affiliateID(ctx)
	if id == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}

	summary, err := h.statsSvc.AffiliateSummary(ctx, id)
	if err != nil {
		return nil, mapServiceError(err, "get summary")
	}

	out := &SummaryOutput{}
	out.Body.AffiliateID = summary.AffiliateID
	out.Body.Links = summary.Links
	out.Body.Clicks = summary.Clicks
	out.Body.Conversions = summary.Conversions
	out.Body.TotalCommission = summary.TotalCommission
	out.Body.AvailableBalance = summary.AvailableBalance
	return out, nil
}
