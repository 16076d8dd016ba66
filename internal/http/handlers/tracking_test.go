package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/betlinkr/betlinkr-api/internal/repository"
)

func setupTrackingRouter(t *testing.T) (*chi.Mux, *repository.Repositories) {
	t.Helper()
	services, repos := setupTestServices(t)
	seedTrackingFixture(t, repos)

	h := NewTrackingHandler(services.Tracking, services.Postback, testConfig(), testLogger())
	router := chi.NewRouter()
	router.Get("/ref/{code}", h.HandleRedirect)
	router.Get("/api/tracking/attribution", h.HandleAttribution)
	router.Post("/api/tracking/convert", h.HandleConvert)
	router.Post("/api/tracking/registration", h.HandleFirstPartyRegistration)
	router.Post("/api/tracking/deposit", h.HandleFirstPartyDeposit)
	return router, repos
}

func TestRedirectSetsCookie(t *testing.T) {
	router, repos := setupTrackingRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ref/abc123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://betmax.example.com/promo" {
		t.Errorf("Location = %s, want link destination", loc)
	}

	cookies := rec.Result().Cookies()
	var attrCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == "bl_attr" {
			attrCookie = c
		}
	}
	if attrCookie == nil {
		t.Fatal("attribution cookie not set")
	}
	if !attrCookie.HttpOnly {
		t.Error("cookie HttpOnly = false, want true")
	}
	if attrCookie.MaxAge != 90*24*60*60 {
		t.Errorf("cookie MaxAge = %d, want 90 days", attrCookie.MaxAge)
	}

	// Click persisted
	count, err := repos.Click.CountByLinkID(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("CountByLinkID() error = %v", err)
	}
	if count != 1 {
		t.Errorf("click count = %d, want 1", count)
	}
}

func TestRedirectUnknownAndInactive(t *testing.T) {
	router, repos := setupTrackingRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ref/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for unknown code = %d, want 404", rec.Code)
	}

	if err := repos.Link.SetActive(context.Background(), "link-1", false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/ref/abc123", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for inactive link = %d, want 404", rec.Code)
	}
}

func TestAttributionEndpoint(t *testing.T) {
	router, _ := setupTrackingRouter(t)

	// Without a cookie: not attributed
	req := httptest.NewRequest(http.MethodGet, "/api/tracking/attribution", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["attributed"] != false {
		t.Errorf("attributed = %v without cookie, want false", body["attributed"])
	}

	// Click through the redirect, then carry the cookie back
	redirectReq := httptest.NewRequest(http.MethodGet, "/ref/abc123", nil)
	redirectRec := httptest.NewRecorder()
	router.ServeHTTP(redirectRec, redirectReq)
	cookies := redirectRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("redirect set no cookies")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tracking/attribution", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body = map[string]any{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["attributed"] != true {
		t.Fatalf("attributed = %v with cookie, want true", body["attributed"])
	}
	if body["link_code"] != "abc123" {
		t.Errorf("link_code = %v, want abc123", body["link_code"])
	}
}

func postFirstParty(t *testing.T, router http.Handler, path string, cookies []*http.Cookie, form url.Values) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return rec.Code, body
}

func TestFirstPartyRegistration(t *testing.T) {
	router, repos := setupTrackingRouter(t)

	// No cookie: nothing to attribute the conversion to
	status, _ := postFirstParty(t, router, "/api/tracking/registration", nil,
		url.Values{"customer_id": {"cust-1"}})
	if status != http.StatusNotFound {
		t.Fatalf("status without cookie = %d, want 404", status)
	}

	redirectRec := httptest.NewRecorder()
	router.ServeHTTP(redirectRec, httptest.NewRequest(http.MethodGet, "/ref/abc123", nil))
	cookies := redirectRec.Result().Cookies()

	status, body := postFirstParty(t, router, "/api/tracking/registration", cookies,
		url.Values{"customer_id": {"cust-1"}})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["success"] != true {
		t.Fatalf("success = %v, want true: %v", body["success"], body["error"])
	}
	if body["commission"] != float64(100) {
		t.Errorf("commission = %v, want 100", body["commission"])
	}

	// The registration row exists and carries the cookie's attribution
	reg, err := repos.Conversion.GetRegistrationByCustomer(context.Background(), "offer-1", "cust-1")
	if err != nil {
		t.Fatalf("GetRegistrationByCustomer() error = %v", err)
	}
	if reg == nil || reg.LinkID != "link-1" {
		t.Fatalf("registration = %+v, want attributed to link-1", reg)
	}

	// The originating click was already marked converted
	req := httptest.NewRequest(http.MethodPost, "/api/tracking/convert", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var convertBody map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&convertBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if convertBody["converted"] != false {
		t.Errorf("converted = %v after first-party registration, want false", convertBody["converted"])
	}

	// Replay collapses into the existing row
	status, body = postFirstParty(t, router, "/api/tracking/registration", cookies,
		url.Values{"customer_id": {"cust-1"}})
	if status != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", status)
	}
	if body["duplicate"] != true {
		t.Errorf("duplicate = %v on replay, want true", body["duplicate"])
	}
}

func TestFirstPartyDeposit(t *testing.T) {
	router, repos := setupTrackingRouter(t)

	redirectRec := httptest.NewRecorder()
	router.ServeHTTP(redirectRec, httptest.NewRequest(http.MethodGet, "/ref/abc123", nil))
	cookies := redirectRec.Result().Cookies()

	status, body := postFirstParty(t, router, "/api/tracking/deposit", cookies,
		url.Values{
			"customer_id": {"cust-1"},
			"amount":      {"200"},
			"currency":    {"USD"},
			"txid":        {"txn-1"},
		})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	// 25% revshare of 200
	if body["commission"] != float64(50) {
		t.Errorf("commission = %v, want 50", body["commission"])
	}

	// A house postback for the same transaction would dedupe on txid; the
	// first-party row is the one on the ledger
	link, err := repos.Link.GetByID(context.Background(), "link-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if link.TotalCommission != 50 {
		t.Errorf("TotalCommission = %f, want 50", link.TotalCommission)
	}

	// Missing amount is rejected like any malformed postback
	status, _ = postFirstParty(t, router, "/api/tracking/deposit", cookies,
		url.Values{"customer_id": {"cust-1"}})
	if status != http.StatusBadRequest {
		t.Errorf("status without amount = %d, want 400", status)
	}
}

func TestConvertEndpoint(t *testing.T) {
	router, _ := setupTrackingRouter(t)

	// Without a cookie: nothing to convert
	req := httptest.NewRequest(http.MethodPost, "/api/tracking/convert", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status without cookie = %d, want 404", rec.Code)
	}

	redirectReq := httptest.NewRequest(http.MethodGet, "/ref/abc123", nil)
	redirectRec := httptest.NewRecorder()
	router.ServeHTTP(redirectRec, redirectReq)
	cookies := redirectRec.Result().Cookies()

	convert := func() map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/api/tracking/convert", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("convert status = %d, want 200", rec.Code)
		}
		var body map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return body
	}

	if body := convert(); body["converted"] != true {
		t.Errorf("converted = %v on first call, want true", body["converted"])
	}
	// Replays do not flip again
	if body := convert(); body["converted"] != false {
		t.Errorf("converted = %v on second call, want false", body["converted"])
	}
}
