package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/you/go-flights-aggregator/internal/config"
	"github.com/you/go-flights-aggregator/internal/offer"
)

const duffelVersion = "v2"

type Duffel struct {
	host   string
	token  string
	limit  int
	client *http.Client
}

func NewDuffel(cfg *config.Config) *Duffel {
	return &Duffel{
		host:   strings.TrimRight(cfg.DuffelHost, "/"),
		token:  cfg.DuffelToken,
		limit:  cfg.DuffelOfferLimit,
		client: &http.Client{},
	}
}

func (d *Duffel) Name() offer.Source { return offer.SourceDuffel }

type duffelSliceRequest struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type duffelOfferRequest struct {
	Slices     []duffelSliceRequest `json:"slices"`
	Passengers []Passenger          `json:"passengers"`
	CabinClass string               `json:"cabin_class,omitempty"`
}

type duffelEnvelope[T any] struct {
	Data T `json:"data"`
}

// Search creates an offer request without inline offers, then lists the
// offers attached to it.
func (d *Duffel) Search(ctx context.Context, req SearchRequest) (Batch, error) {
	if d.token == "" {
		return Batch{}, fmt.Errorf("duffel: %w", ErrNotConfigured)
	}

	body := duffelEnvelope[duffelOfferRequest]{Data: duffelRequestOf(req)}
	b, err := json.Marshal(body)
	if err != nil {
		return Batch{}, err
	}

	httpReq, err := d.newRequest(ctx, http.MethodPost, "/air/offer_requests?return_offers=false", b)
	if err != nil {
		return Batch{}, err
	}
	var created duffelEnvelope[struct {
		ID string `json:"id"`
	}]
	if err := do(d.client, d.Name(), httpReq, &created); err != nil {
		return Batch{}, err
	}
	if created.Data.ID == "" {
		return Batch{}, errors.New("duffel: offer request has no id")
	}

	q := url.Values{}
	q.Set("offer_request_id", created.Data.ID)
	if d.limit > 0 {
		q.Set("limit", strconv.Itoa(d.limit))
	}
	httpReq, err = d.newRequest(ctx, http.MethodGet, "/air/offers?"+q.Encode(), nil)
	if err != nil {
		return Batch{}, err
	}
	var listed duffelEnvelope[[]json.RawMessage]
	if err := do(d.client, d.Name(), httpReq, &listed); err != nil {
		return Batch{}, err
	}

	return Batch{Source: d.Name(), Offers: listed.Data}, nil
}

// CreateOrder books an instant order for one offer.
func (d *Duffel) CreateOrder(ctx context.Context, req OrderRequest) (json.RawMessage, error) {
	if d.token == "" {
		return nil, fmt.Errorf("duffel: %w", ErrNotConfigured)
	}

	order := map[string]any{
		"type":            "instant",
		"selected_offers": []string{req.OfferID},
		"passengers":      orEmptyList(req.Passengers),
	}
	if len(req.Payment) > 0 {
		order["payments"] = req.Payment
	}
	b, err := json.Marshal(duffelEnvelope[map[string]any]{Data: order})
	if err != nil {
		return nil, err
	}

	httpReq, err := d.newRequest(ctx, http.MethodPost, "/air/orders", b)
	if err != nil {
		return nil, err
	}
	var created duffelEnvelope[json.RawMessage]
	if err := do(d.client, d.Name(), httpReq, &created); err != nil {
		return nil, err
	}
	return created.Data, nil
}

func (d *Duffel) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.host+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+d.token)
	req.Header.Set("Duffel-Version", duffelVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func duffelRequestOf(req SearchRequest) duffelOfferRequest {
	slices := []duffelSliceRequest{{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: req.DepartureDate,
	}}
	if req.ReturnDate != "" {
		slices = append(slices, duffelSliceRequest{
			Origin:        req.Destination,
			Destination:   req.Origin,
			DepartureDate: req.ReturnDate,
		})
	}
	passengers := req.Passengers
	if len(passengers) == 0 {
		passengers = []Passenger{{Type: PassengerAdult}}
	}
	return duffelOfferRequest{
		Slices:     slices,
		Passengers: passengers,
		CabinClass: strings.ToLower(req.CabinClass),
	}
}

func orEmptyList(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("[]")
	}
	return raw
}
