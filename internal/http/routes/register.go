// Package routes wires the typed API operations onto a Huma API instance.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/http/handlers"
	"github.com/betlinkr/betlinkr-api/internal/http/mw"
)

// Register registers all typed API routes. The raw public surface
// (postbacks, the redirect and the tracking endpoints) is mounted directly
// on the chi router in main.
func Register(api huma.API, h *handlers.Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	// --- Links ---
	mw.ProtectedGet(api, "/api/v1/links", h.Link.ListLinks,
		mw.WithTags("Links"),
		mw.WithSummary("List tracking links"),
		mw.WithOperationID("listLinks"))
	mw.ProtectedGet(api, "/api/v1/links/{id}", h.Link.GetLink,
		mw.WithTags("Links"),
		mw.WithSummary("Get tracking link"),
		mw.WithOperationID("getLink"))
	mw.ProtectedPost(api, "/api/v1/links", h.Link.CreateLink,
		mw.WithTags("Links"),
		mw.WithSummary("Create tracking link"),
		mw.WithOperationID("createLink"))
	mw.ProtectedPut(api, "/api/v1/links/{id}", h.Link.UpdateLink,
		mw.WithTags("Links"),
		mw.WithSummary("Update tracking link"),
		mw.WithOperationID("updateLink"))
	mw.ProtectedGet(api, "/api/v1/links/{id}/stats", h.Link.GetLinkStats,
		mw.WithTags("Links"),
		mw.WithSummary("Get link statistics"),
		mw.WithDescription("Aggregates for one link, with a consistency check of the running commission total against the recorded conversions."),
		mw.WithOperationID("getLinkStats"))
	mw.ProtectedGet(api, "/api/v1/links/{id}/conversions", h.Link.ListConversions,
		mw.WithTags("Links"),
		mw.WithSummary("List link conversions"),
		mw.WithOperationID("listLinkConversions"))

	// --- Stats ---
	mw.ProtectedGet(api, "/api/v1/stats/summary", h.Stats.GetSummary,
		mw.WithTags("Stats"),
		mw.WithSummary("Get affiliate summary"),
		mw.WithOperationID("getSummary"))

	// --- Webhooks ---
	mw.ProtectedGet(api, "/api/v1/webhooks", h.Webhook.ListWebhooks,
		mw.WithTags("Webhooks"),
		mw.WithSummary("List webhooks"),
		mw.WithOperationID("listWebhooks"))
	mw.ProtectedPost(api, "/api/v1/webhooks", h.Webhook.CreateWebhook,
		mw.WithTags("Webhooks"),
		mw.WithSummary("Create webhook"),
		mw.WithOperationID("createWebhook"))
	mw.ProtectedPut(api, "/api/v1/webhooks/{id}", h.Webhook.UpdateWebhook,
		mw.WithTags("Webhooks"),
		mw.WithSummary("Update webhook"),
		mw.WithOperationID("updateWebhook"))
	mw.ProtectedDelete(api, "/api/v1/webhooks/{id}", h.Webhook.DeleteWebhook,
		mw.WithTags("Webhooks"),
		mw.WithSummary("Delete webhook"),
		mw.WithOperationID("deleteWebhook"))
	mw.ProtectedGet(api, "/api/v1/webhooks/{id}/deliveries", h.Webhook.ListDeliveries,
		mw.WithTags("Webhooks"),
		mw.WithSummary("List webhook deliveries"),
		mw.WithOperationID("listWebhookDeliveries"))

	// --- Offers (admin only) ---
	mw.ProtectedGet(api, "/api/v1/offers", h.Offer.ListOffers,
		mw.WithTags("Offers"),
		mw.WithSummary("List offers"),
		mw.WithOperationID("listOffers"),
		mw.WithAdmin())
	mw.ProtectedGet(api, "/api/v1/offers/{id}", h.Offer.GetOffer,
		mw.WithTags("Offers"),
		mw.WithSummary("Get offer"),
		mw.WithOperationID("getOffer"),
		mw.WithAdmin())
	mw.ProtectedPost(api, "/api/v1/offers", h.Offer.CreateOffer,
		mw.WithTags("Offers"),
		mw.WithSummary("Create offer"),
		mw.WithOperationID("createOffer"),
		mw.WithAdmin())
	mw.ProtectedPut(api, "/api/v1/offers/{id}", h.Offer.UpdateOffer,
		mw.WithTags("Offers"),
		mw.WithSummary("Update offer"),
		mw.WithOperationID("updateOffer"),
		mw.WithAdmin())
	mw.ProtectedDelete(api, "/api/v1/offers/{id}", h.Offer.DeleteOffer,
		mw.WithTags("Offers"),
		mw.WithSummary("Delete offer"),
		mw.WithOperationID("deleteOffer"),
		mw.WithAdmin())
	mw.ProtectedPost(api, "/api/v1/offers/{id}/rotate-token", h.Offer.RotateToken,
		mw.WithTags("Offers"),
		mw.WithSummary("Rotate postback token"),
		mw.WithDescription("Replaces the offer's postback token. Postback URLs issued with the old token stop working immediately."),
		mw.WithOperationID("rotatePostbackToken"),
		mw.WithAdmin())
	mw.ProtectedGet(api, "/api/v1/offers/{id}/postbacks", h.Offer.ListPostbacks,
		mw.WithTags("Offers"),
		mw.WithSummary("List inbound postbacks"),
		mw.WithOperationID("listPostbacks"),
		mw.WithAdmin())
}
