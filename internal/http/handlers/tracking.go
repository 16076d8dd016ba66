package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/betlinkr/betlinkr-api/internal/config"
	"github.com/betlinkr/betlinkr-api/internal/http/mw"
	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

// TrackingHandler handles the public visitor-facing surface: the tracking
// link redirect and the first-party conversion endpoints.
type TrackingHandler struct {
	trackingSvc *service.TrackingService
	postbackSvc *service.PostbackService
	cfg         *config.Config
	logger      *slog.Logger
}

// NewTrackingHandler creates a new tracking handler.
func NewTrackingHandler(trackingSvc *service.TrackingService, postbackSvc *service.PostbackService, cfg *config.Config, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{trackingSvc: trackingSvc, postbackSvc: postbackSvc, cfg: cfg, logger: logger}
}

// HandleRedirect processes /ref/{code}: records the click, sets the
// attribution cookie and bounces the visitor to the destination.
func (h *TrackingHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	result, err := h.trackingSvc.TrackClick(r.Context(),
		code, mw.ClientIP(r), r.UserAgent(), r.Referer())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrLinkInactive):
			http.NotFound(w, r)
		default:
			h.logger.Error("failed to track click", "code", code, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    result.CookieValue,
		Path:     "/",
		MaxAge:   result.CookieMaxAge,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, result.DestinationURL, http.StatusFound)
}

// HandleAttribution processes GET /api/tracking/attribution: reports
// whether the caller carries a live attribution cookie. Used by affiliate
// landing pages to render referral state.
func (h *TrackingHandler) HandleAttribution(w http.ResponseWriter, r *http.Request) {
	attr := h.readCookie(r)
	w.Header().Set("Content-Type", "application/json")
	if attr == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"attributed": false})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"attributed": true,
		"link_code":  attr.LinkCode,
		"offer_id":   attr.OfferID,
		"expires_at": attr.ExpiresAt,
	})
}

// HandleConvert processes POST /api/tracking/convert: marks the cookie's
// originating click as converted. Commission still flows exclusively
// through house postbacks; this only closes the click funnel.
func (h *TrackingHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	attr := h.readCookie(r)
	if attr == nil {
		http.Error(w, `{"error":"no attribution"}`, http.StatusNotFound)
		return
	}

	converted, err := h.trackingSvc.MarkConverted(r.Context(), attr)
	if err != nil {
		h.logger.Error("failed to convert click", "click_id", attr.ClickID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"converted": converted})
}

// HandleFirstPartyRegistration processes POST /api/tracking/registration.
func (h *TrackingHandler) HandleFirstPartyRegistration(w http.ResponseWriter, r *http.Request) {
	h.handleFirstParty(w, r, models.EventRegistration)
}

// HandleFirstPartyDeposit processes POST /api/tracking/deposit.
func (h *TrackingHandler) HandleFirstPartyDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleFirstParty(w, r, models.EventDeposit)
}

// handleFirstParty records a conversion reported from the affiliate's own
// page, for houses that cannot fire server-to-server postbacks. The sealed
// attribution cookie identifies the offer and link; the form carries the
// customer fields. Runs the same pipeline as a house postback, so the same
// event reported both ways still credits once, and closes the click funnel
// on success.
func (h *TrackingHandler) handleFirstParty(w http.ResponseWriter, r *http.Request, eventType models.EventType) {
	attr := h.readCookie(r)
	if attr == nil {
		writePostbackJSON(w, http.StatusNotFound, postbackResponse{Success: false, Error: "no attribution"})
		return
	}

	if err := r.ParseForm(); err != nil {
		writePostbackJSON(w, http.StatusBadRequest, postbackResponse{Success: false, Error: "malformed form body"})
		return
	}
	params := paramsFromQuery(r.Form)
	// The cookie is authoritative for attribution; the caller cannot claim a
	// different link.
	params.SubID = attr.LinkCode
	params.RawQuery = r.Form.Encode()

	result, err := h.postbackSvc.IngestFirstParty(r.Context(), attr.OfferID, eventType, params)
	if err != nil {
		writePostbackError(w, r, h.logger, err)
		return
	}

	if _, err := h.trackingSvc.MarkConverted(r.Context(), attr); err != nil {
		h.logger.Error("failed to convert click", "click_id", attr.ClickID, "error", err)
	}

	writePostbackJSON(w, http.StatusOK, postbackResponse{
		Success:    true,
		Duplicate:  result.Duplicate,
		Commission: result.Commission,
	})
}

func (h *TrackingHandler) readCookie(r *http.Request) *service.AttributionCookie {
	cookie, err := r.Cookie(h.cfg.CookieName)
	if err != nil {
		return nil
	}
	return h.trackingSvc.Attribution(cookie.Value)
}
