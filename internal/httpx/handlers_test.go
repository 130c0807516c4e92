package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/you/go-flights-aggregator/internal/errors"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/offer"
	"github.com/you/go-flights-aggregator/internal/providers"
	"github.com/you/go-flights-aggregator/internal/service"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls []providers.SearchRequest
	res   service.Result
	err   error
	// onCall runs after the call is recorded, with the 1-based call number.
	onCall func(n int)
}

func (f *fakeSearcher) Search(_ context.Context, req providers.SearchRequest) (service.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	return f.res, f.err
}

func (f *fakeSearcher) lastCall() providers.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeBooker struct {
	source offer.Source
	req    providers.OrderRequest
	out    json.RawMessage
	err    error
}

func (f *fakeBooker) Book(_ context.Context, source offer.Source, req providers.OrderRequest) (json.RawMessage, error) {
	f.source, f.req = source, req
	return f.out, f.err
}

func sampleResult() service.Result {
	return service.Result{
		Offers: []offer.NormalizedOffer{
			{
				ID:     "amadeus_1",
				Source: offer.SourceAmadeus,
				Price:  offer.Price{Total: decimal.RequireFromString("430.00"), Base: decimal.RequireFromString("380.00"), Tax: decimal.RequireFromString("50.00"), Currency: "USD"},
			},
			{
				ID:     "off_ba",
				Source: offer.SourceDuffel,
				Price:  offer.Price{Total: decimal.RequireFromString("450.10"), Currency: "USD"},
			},
		},
		Sources:         service.SourceCounts{Duffel: 1, Amadeus: 1},
		UniqueAirlines:  2,
		PriceRange:      &service.PriceRange{Min: decimal.RequireFromString("430.00"), Max: decimal.RequireFromString("450.10"), Currency: "USD"},
		FailedProviders: []string{},
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

const validSearch = `{"origin":"lhr","destination":"JFK","departureDate":"2025-12-01","passengers":[{"type":"adult"},{"type":"Child"}],"cabinClass":"Business"}`

func TestSearchHandler_Success(t *testing.T) {
	svc := &fakeSearcher{res: sampleResult()}
	w, body := postJSON(t, SearchHandler(svc, logger.Nop()), "/api/flights/search", validSearch)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, body["success"])
	require.EqualValues(t, 2, body["total_offers"])
	require.EqualValues(t, 2, body["unique_airlines"])
	require.Equal(t, map[string]any{"duffel": float64(1), "amadeus": float64(1)}, body["sources"])
	require.Equal(t, []any{}, body["failed_providers"])
	require.Contains(t, w.Body.String(), `"price_range":{"min":430,"max":450.1,"currency":"USD"}`)
	require.Contains(t, w.Body.String(), `"total":430`)

	data := body["data"].([]any)
	require.Len(t, data, 2)
	require.Equal(t, "amadeus_1", data[0].(map[string]any)["id"])

	got := svc.lastCall()
	require.Equal(t, "LHR", got.Origin)
	require.Equal(t, "business", got.CabinClass)
	require.Equal(t, 1, got.Count(providers.PassengerChild))
}

func TestSearchHandler_EmptyResultIsSuccess(t *testing.T) {
	svc := &fakeSearcher{res: service.Result{}}
	w, body := postJSON(t, SearchHandler(svc, logger.Nop()), "/api/flights/search",
		`{"origin":"LHR","destination":"JFK","departureDate":"2025-12-01","passengers":[{"type":"adult"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{}, body["data"])
	require.EqualValues(t, 0, body["total_offers"])
	require.NotContains(t, body, "price_range")
	require.Equal(t, "economy", svc.lastCall().CabinClass)
}

func TestSearchHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing origin", `{"destination":"JFK","departureDate":"2025-12-01","passengers":[{"type":"adult"}]}`, "origin"},
		{"short destination", `{"origin":"LHR","destination":"JF","departureDate":"2025-12-01","passengers":[{"type":"adult"}]}`, "destination"},
		{"same airports", `{"origin":"LHR","destination":"lhr","departureDate":"2025-12-01","passengers":[{"type":"adult"}]}`, "destination"},
		{"bad date", `{"origin":"LHR","destination":"JFK","departureDate":"01/12/2025","passengers":[{"type":"adult"}]}`, "departureDate"},
		{"return before departure", `{"origin":"LHR","destination":"JFK","departureDate":"2025-12-10","returnDate":"2025-12-01","passengers":[{"type":"adult"}]}`, "returnDate"},
		{"no passengers", `{"origin":"LHR","destination":"JFK","departureDate":"2025-12-01","passengers":[]}`, "passengers"},
		{"bad passenger type", `{"origin":"LHR","destination":"JFK","departureDate":"2025-12-01","passengers":[{"type":"pet"}]}`, "passengers[0].type"},
		{"bad cabin", `{"origin":"LHR","destination":"JFK","departureDate":"2025-12-01","passengers":[{"type":"adult"}],"cabinClass":"deluxe"}`, "cabinClass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeSearcher{}
			w, body := postJSON(t, SearchHandler(svc, logger.Nop()), "/api/flights/search", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Equal(t, false, body["success"])
			require.Equal(t, "invalid search request", body["error"])
			require.Contains(t, body["details"], tt.field)
			require.Empty(t, svc.calls)
		})
	}
}

func TestSearchHandler_MalformedBody(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":      `{"origin":`,
		"unknown field": `{"origin":"LHR","destination":"JFK","departureDate":"2025-12-01","passengers":[{"type":"adult"}],"foo":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			w, body := postJSON(t, SearchHandler(&fakeSearcher{}, logger.Nop()), "/api/flights/search", raw)
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Equal(t, "invalid request body", body["error"])
		})
	}
}

func TestSearchHandler_SystemicFailure(t *testing.T) {
	svc := &fakeSearcher{err: pkgerrors.Wrap(pkgerrors.CodeInternal, context.Canceled, "search aborted")}
	w, body := postJSON(t, SearchHandler(svc, logger.Nop()), "/api/flights/search", validSearch)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, false, body["success"])
	require.Equal(t, "internal server error", body["error"])
	require.NotEmpty(t, body["details"])
}

func TestBookHandler(t *testing.T) {
	b := &fakeBooker{out: json.RawMessage(`{"id":"ord_1","booking_reference":"RZPVXQ"}`)}
	w, body := postJSON(t, BookHandler(b, logger.Nop()), "/api/flights/book",
		`{"offer_id":"off_ba","source":"duffel","passengers":[{"id":"pas_1","given_name":"Ada"}]}`)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "duffel", body["source"])
	require.Equal(t, "RZPVXQ", body["data"].(map[string]any)["booking_reference"])
	require.Equal(t, offer.SourceDuffel, b.source)
	require.Equal(t, "off_ba", b.req.OfferID)
	require.JSONEq(t, `[{"id":"pas_1","given_name":"Ada"}]`, string(b.req.Passengers))
}

func TestBookHandler_Errors(t *testing.T) {
	w, body := postJSON(t, BookHandler(&fakeBooker{}, logger.Nop()), "/api/flights/book",
		`{"offer_id":"off_ba","source":"kiwi","passengers":[]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, body["details"], "source")

	failing := &fakeBooker{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("422"), "duffel rejected the order")}
	w, body = postJSON(t, BookHandler(failing, logger.Nop()), "/api/flights/book",
		`{"offer_id":"off_ba","source":"duffel","passengers":[]}`)
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, "duffel rejected the order", body["error"])
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	w := httptest.NewRecorder()
	HealthHandler(map[string]Pinger{"redis": ok})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","redis":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	HealthHandler(map[string]Pinger{"redis": down})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":"unavailable"}`, w.Body.String())
}
