package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/betlinkr/betlinkr-api/internal/models"
	"github.com/betlinkr/betlinkr-api/internal/service"
)

// PostbackHandler handles inbound server-to-server postbacks from betting
// houses. These are raw chi handlers rather than typed API operations:
// house integrations send loose query strings, often via GET, and the
// response contract is a tiny fixed JSON body.
type PostbackHandler struct {
	postbackSvc *service.PostbackService
	logger      *slog.Logger
}

// NewPostbackHandler creates a new postback handler.
func NewPostbackHandler(postbackSvc *service.PostbackService, logger *slog.Logger) *PostbackHandler {
	return &PostbackHandler{postbackSvc: postbackSvc, logger: logger}
}

// postbackResponse is the body returned to the house. Houses only check
// the status code; the body exists for their integration logs.
type postbackResponse struct {
	Success    bool    `json:"success"`
	Duplicate  bool    `json:"duplicate,omitempty"`
	Error      string  `json:"error,omitempty"`
	Commission float64 `json:"commission,omitempty"`
}

// HandleRegistration processes /api/postback/{token}/registration.
func (h *PostbackHandler) HandleRegistration(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, chi.URLParam(r, "token"), models.EventRegistration)
}

// HandleDeposit processes /api/postback/{token}/deposit.
func (h *PostbackHandler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, chi.URLParam(r, "token"), models.EventDeposit)
}

// HandleReceive processes the legacy /api/postback/receive endpoint where
// both the token and event type travel in the query string. Older house
// integrations send the token as house_id.
func (h *PostbackHandler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	eventType, ok := models.ParseEventType(q.Get("event"))
	if !ok {
		writePostbackJSON(w, http.StatusBadRequest, postbackResponse{
			Success: false, Error: "event must be registration or deposit"})
		return
	}
	h.handle(w, r, firstOf(q, "house_id", "token"), eventType)
}

func (h *PostbackHandler) handle(w http.ResponseWriter, r *http.Request, token string, eventType models.EventType) {
	params := paramsFromQuery(r.URL.Query())
	params.RawQuery = r.URL.RawQuery

	result, err := h.postbackSvc.Ingest(r.Context(), token, eventType, params)
	if err != nil {
		writePostbackError(w, r, h.logger, err)
		return
	}

	writePostbackJSON(w, http.StatusOK, postbackResponse{
		Success:    true,
		Duplicate:  result.Duplicate,
		Commission: result.Commission,
	})
}

// writePostbackError maps the ingestion error contract to status codes.
// Unknown tokens and unattributable events are both 404 so probing learns
// nothing; malformed events are a final 400; everything else is a retriable
// 500. Shared with the first-party tracking endpoints, which run the same
// pipeline.
func writePostbackError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownOffer):
		writePostbackJSON(w, http.StatusNotFound, postbackResponse{Success: false, Error: "unknown token"})
	case errors.Is(err, service.ErrUnattributable):
		writePostbackJSON(w, http.StatusNotFound, postbackResponse{Success: false, Error: "unknown subid"})
	case service.IsMalformed(err):
		writePostbackJSON(w, http.StatusBadRequest, postbackResponse{Success: false, Error: err.Error()})
	default:
		logger.Error("postback processing failed", "path", r.URL.Path, "error", err)
		writePostbackJSON(w, http.StatusInternalServerError, postbackResponse{Success: false, Error: "internal error"})
	}
}

// paramsFromQuery maps the wire parameter names, including the aliases the
// common house platforms use, onto the canonical set.
func paramsFromQuery(q url.Values) service.PostbackParams {
	return service.PostbackParams{
		SubID:       firstOf(q, "subid", "s1", "clickid"),
		CustomerID:  firstOf(q, "customer_id", "cid", "player_id"),
		Amount:      q.Get("amount"),
		Currency:    q.Get("currency"),
		ExternalRef: firstOf(q, "external_ref", "txid"),
		Timestamp:   firstOf(q, "timestamp", "ts"),
		Email:       q.Get("email"),
	}
}

func firstOf(q url.Values, keys ...string) string {
	for _, key := range keys {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func writePostbackJSON(w http.ResponseWriter, status int, body postbackResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
