package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/you/go-flights-aggregator/internal/errors"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/providers"
)

func TestSearchFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/flights/subscribe?origin=lhr&destination=jfk&departureDate=2025-12-01&adults=2&children=1&infants=1&cabinClass=FIRST", nil)
	body, err := searchFromQuery(req)
	require.NoError(t, err)

	sr := body.toProvider()
	require.Equal(t, "LHR", sr.Origin)
	require.Equal(t, "JFK", sr.Destination)
	require.Equal(t, "first", sr.CabinClass)
	require.Equal(t, 2, sr.Count(providers.PassengerAdult))
	require.Equal(t, 1, sr.Count(providers.PassengerChild))
	require.Equal(t, 1, sr.Count(providers.PassengerInfantWithoutSeat))
}

func TestSearchFromQuery_Invalid(t *testing.T) {
	for name, query := range map[string]string{
		"bad count":     "origin=LHR&destination=JFK&departureDate=2025-12-01&adults=many",
		"missing date":  "origin=LHR&destination=JFK",
		"no passengers": "origin=LHR&destination=JFK&departureDate=2025-12-01&adults=0",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := searchFromQuery(httptest.NewRequest(http.MethodGet, "/?"+query, nil))
			require.Error(t, err)
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestSubscribeSSE_PushesUntilClientLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &fakeSearcher{res: sampleResult()}
	svc.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/flights/subscribe?origin=LHR&destination=JFK&departureDate=2025-12-01", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		SubscribeSSEHandler(svc, 10*time.Millisecond, logger.Nop())(w, req)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop after the client left")
	}

	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	out := w.Body.String()
	require.Equal(t, 1, strings.Count(out, "event: offers\n"))
	require.Contains(t, out, `"total_offers":2`)
	require.Len(t, svc.calls, 2)
}

func TestSubscribeSSE_ReportsSearchErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &fakeSearcher{err: pkgerrors.New(pkgerrors.CodeInternal, "boom")}
	svc.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	req := httptest.NewRequest(http.MethodGet,
		"/api/flights/subscribe?origin=LHR&destination=JFK&departureDate=2025-12-01", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	SubscribeSSEHandler(svc, 5*time.Millisecond, logger.Nop())(w, req)

	require.Contains(t, w.Body.String(), "event: error\n")
	require.Contains(t, w.Body.String(), `"error":"internal server error"`)
}

func TestSubscribeSSE_RejectsInvalidQuery(t *testing.T) {
	w := httptest.NewRecorder()
	SubscribeSSEHandler(&fakeSearcher{}, time.Second, logger.Nop())(w,
		httptest.NewRequest(http.MethodGet, "/api/flights/subscribe?origin=LHR", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func dialWS(t *testing.T, h http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSubscribeWS_PushesResults(t *testing.T) {
	svc := &fakeSearcher{res: sampleResult()}
	conn := dialWS(t, SubscribeWSHandler(svc, 10*time.Millisecond, originMatcher([]string{"*"}), logger.Nop()))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(validSearch)))

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, true, msg["success"])
		require.EqualValues(t, 2, msg["total_offers"])
	}
	require.Equal(t, "LHR", svc.lastCall().Origin)
}

func TestSubscribeWS_InvalidFirstMessage(t *testing.T) {
	conn := dialWS(t, SubscribeWSHandler(&fakeSearcher{}, time.Second, originMatcher([]string{"*"}), logger.Nop()))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"origin":"LHR"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, false, msg["success"])
	require.Equal(t, "invalid search request", msg["error"])
	require.Contains(t, msg["details"], "destination")
}

func TestOriginMatcher(t *testing.T) {
	match := originMatcher([]string{"https://app.example.com"})
	require.True(t, match("https://app.example.com"))
	require.False(t, match("https://evil.example.com"))
	require.True(t, originMatcher([]string{"*"})("https://anything.example"))
}

func TestWriteEvent(t *testing.T) {
	w := httptest.NewRecorder()
	writeEvent(w, "offers", map[string]int{"total_offers": 0})

	lines := strings.Split(w.Body.String(), "\n")
	require.Equal(t, "event: offers", lines[0])
	var payload map[string]int
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &payload))
	require.Equal(t, 0, payload["total_offers"])
}
