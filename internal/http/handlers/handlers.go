// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/http/mw"
	"github.com/betlinkr/betlinkr-api/internal/version"
)

// Handlers aggregates the typed API handlers and the shared probe state.
type Handlers struct {
	Offer   *OfferHandler
	Link    *LinkHandler
	Webhook *WebhookHandler
	Stats   *StatsHandler

	db *sql.DB
}

// New creates the handler aggregate.
func New(offer *OfferHandler, link *LinkHandler, webhook *WebhookHandler, stats *StatsHandler, db *sql.DB) *Handlers {
	return &Handlers{
		Offer:   offer,
		Link:    link,
		Webhook: webhook,
		Stats:   stats,
		db:      db,
	}
}

// HealthCheckOutput represents the health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func (h *Handlers) HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Version
	return out, nil
}

// ProbeOutput is the response body for the Kubernetes probes.
type ProbeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness.
func (h *Handlers) Livez(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// Readyz reports readiness; it fails while the database is unreachable.
func (h *Handlers) Readyz(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(pingCtx); err != nil {
		return nil, huma.Error503ServiceUnavailable("database unavailable")
	}
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// affiliateID extracts the authenticated affiliate from context.
func affiliateID(ctx context.Context) string {
	claims := mw.GetAffiliateClaims(ctx)
	if claims == nil {
		return ""
	}
	return claims.AffiliateID()
}
