package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	pkgerrors "github.com/you/go-flights-aggregator/internal/errors"
	"github.com/you/go-flights-aggregator/internal/httpx/responses"
	"github.com/you/go-flights-aggregator/internal/logger"
)

const (
	wsWriteWait         = 10 * time.Second
	maxQueryPax         = 9
	defaultPushInterval = 30 * time.Second
)

func pushInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultPushInterval
	}
	return d
}

// searchFromQuery builds a search body from SSE query parameters. Passengers
// are given as counts: adults (default 1), children and infants.
func searchFromQuery(r *http.Request) (searchRequestBody, error) {
	q := r.URL.Query()
	body := searchRequestBody{
		Origin:        q.Get("origin"),
		Destination:   q.Get("destination"),
		DepartureDate: q.Get("departureDate"),
		ReturnDate:    q.Get("returnDate"),
		CabinClass:    q.Get("cabinClass"),
	}
	counts := []struct {
		param, kind string
		def         int
	}{
		{"adults", "adult", 1},
		{"children", "child", 0},
		{"infants", "infant_without_seat", 0},
	}
	for _, c := range counts {
		n := c.def
		if raw := q.Get(c.param); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 || v > maxQueryPax {
				return body, pkgerrors.New(pkgerrors.CodeValidation, "invalid search request").
					WithDetails(map[string]string{c.param: fmt.Sprintf("must be a number between 0 and %d", maxQueryPax)})
			}
			n = v
		}
		for i := 0; i < n; i++ {
			body.Passengers = append(body.Passengers, passengerBody{Type: c.kind})
		}
	}
	return body, body.check()
}

// SubscribeSSEHandler streams a fresh search result immediately and then
// every interval until the client goes away. A failed round is reported as
// an error event and the stream keeps going.
func SubscribeSSEHandler(svc Searcher, interval time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := searchFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ctx := r.Context()
		req := body.toProvider()
		ticker := time.NewTicker(pushInterval(interval))
		defer ticker.Stop()

		for {
			res, err := svc.Search(ctx, req)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logg.Warn(ctx, "subscription search failed", err)
				writeEvent(w, "error", errorEnvelope(err))
			} else {
				writeEvent(w, "offers", newSearchResponse(res))
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				logg.Debug(ctx, "sse client closed")
				return
			case <-ticker.C:
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"success":false,"error":"encoding failed"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func errorEnvelope(err error) responses.ErrorEnvelope {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	env := responses.ErrorEnvelope{Error: meta.PublicMessage}
	if meta.DetailsAllowed {
		env.Error = typed.Message()
		env.Details = typed.Details()
	}
	return env
}

func newUpgrader(originAllowed func(string) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origin)
		},
	}
}

// SubscribeWSHandler upgrades the connection, reads one search request as
// the first client message and then pushes results every interval.
func SubscribeWSHandler(svc Searcher, interval time.Duration, originAllowed func(string) bool, logg *logger.Logger) http.HandlerFunc {
	upgrader := newUpgrader(originAllowed)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Warn(r.Context(), "websocket upgrade failed", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		var body searchRequestBody
		if err := conn.ReadJSON(&body); err != nil {
			writeWS(conn, errorEnvelope(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body")))
			return
		}
		if err := body.check(); err != nil {
			writeWS(conn, errorEnvelope(err))
			return
		}

		// Drain client frames so close messages are seen.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		req := body.toProvider()
		ticker := time.NewTicker(pushInterval(interval))
		defer ticker.Stop()

		for {
			res, err := svc.Search(ctx, req)
			if ctx.Err() != nil {
				return
			}
			var payload any = newSearchResponse(res)
			if err != nil {
				logg.Warn(ctx, "subscription search failed", err)
				payload = errorEnvelope(err)
			}
			if err := writeWS(conn, payload); err != nil {
				logg.Debug(ctx, "websocket client gone")
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

func writeWS(conn *websocket.Conn, payload any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(payload)
}
