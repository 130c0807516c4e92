package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/you/go-flights-aggregator/internal/auth"
	"github.com/you/go-flights-aggregator/internal/config"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		CORSOrigins:          []string{"https://app.example.com"},
		SubscriptionInterval: time.Second,
		JWTSecret:            "router-secret",
	}
}

func newTestRouter(cfg *config.Config, svc Searcher) (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSearchMetrics(reg)
	m.ObserveOffers(3)
	return NewRouter(Deps{
		Config:   cfg,
		Logger:   logger.Nop(),
		Search:   svc,
		Booking:  &fakeBooker{},
		Gatherer: reg,
	}), reg
}

func TestRouter_OpenSearchWithoutAuth(t *testing.T) {
	h, _ := newTestRouter(testConfig(), &fakeSearcher{res: sampleResult()})
	w, body := postJSON(t, h, "/api/flights/search", validSearch)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRouter_KeepsCallerRequestID(t *testing.T) {
	h, _ := newTestRouter(testConfig(), &fakeSearcher{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestRouter_AuthEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEnabled = true
	h, _ := newTestRouter(cfg, &fakeSearcher{res: sampleResult()})

	w, body := postJSON(t, h, "/api/flights/search", validSearch)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, false, body["success"])

	tok, err := auth.IssueToken(cfg.JWTSecret, "tester", time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/flights/search", strings.NewReader(validSearch))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_LoginOnlyWithDevUser(t *testing.T) {
	h, _ := newTestRouter(testConfig(), &fakeSearcher{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusNotFound, w.Code)

	cfg := testConfig()
	cfg.AuthDevUser, cfg.AuthDevPassword = "dev", "pass"
	h, _ = newTestRouter(cfg, &fakeSearcher{})
	w, body := postJSON(t, h, "/auth/login", `{"username":"dev","password":"pass"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, body["token"])
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := newTestRouter(testConfig(), &fakeSearcher{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "flights_search_offers")
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _ := newTestRouter(testConfig(), &fakeSearcher{})
	req := httptest.NewRequest(http.MethodOptions, "/api/flights/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RecoversPanics(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}
