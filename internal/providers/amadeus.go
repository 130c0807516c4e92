package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/you/go-flights-aggregator/internal/config"
	"github.com/you/go-flights-aggregator/internal/offer"
)

const (
	amadeusAuthPath   = "/v1/security/oauth2/token"
	amadeusSearchPath = "/v2/shopping/flight-offers"
	amadeusOrderPath  = "/v1/booking/flight-orders"
)

type Amadeus struct {
	host     string
	currency string
	max      int
	client   *http.Client
	creds    clientcredentials.Config
}

func NewAmadeus(cfg *config.Config) *Amadeus {
	host := strings.TrimRight(cfg.AmadeusURL, "/")
	return &Amadeus{
		host:     host,
		currency: cfg.SearchCurrency,
		max:      cfg.AmadeusMaxResults,
		client:   &http.Client{},
		creds: clientcredentials.Config{
			ClientID:     cfg.AmadeusClientID,
			ClientSecret: cfg.AmadeusClientSecret,
			TokenURL:     host + amadeusAuthPath,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}
}

func (a *Amadeus) Name() offer.Source { return offer.SourceAmadeus }

// token fetches a fresh access token. Tokens are not reused across searches.
func (a *Amadeus) token(ctx context.Context) (string, error) {
	if a.creds.ClientID == "" || a.creds.ClientSecret == "" {
		return "", fmt.Errorf("amadeus: %w", ErrNotConfigured)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := a.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("amadeus token: %w", err)
	}
	return tok.AccessToken, nil
}

type amadeusSearchResponse struct {
	Data         []json.RawMessage `json:"data"`
	Dictionaries json.RawMessage   `json:"dictionaries"`
}

func (a *Amadeus) Search(ctx context.Context, req SearchRequest) (Batch, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return Batch{}, err
	}

	u := a.host + amadeusSearchPath + "?" + a.searchQuery(req).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Batch{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok)

	var payload amadeusSearchResponse
	if err := do(a.client, a.Name(), httpReq, &payload); err != nil {
		return Batch{}, err
	}
	return Batch{Source: a.Name(), Offers: payload.Data, Dictionaries: payload.Dictionaries}, nil
}

func (a *Amadeus) searchQuery(req SearchRequest) url.Values {
	q := url.Values{}
	q.Set("originLocationCode", req.Origin)
	q.Set("destinationLocationCode", req.Destination)
	q.Set("departureDate", req.DepartureDate)
	if req.ReturnDate != "" {
		q.Set("returnDate", req.ReturnDate)
	}

	adults := req.Count(PassengerAdult)
	if adults == 0 {
		adults = 1
	}
	q.Set("adults", strconv.Itoa(adults))
	if n := req.Count(PassengerChild); n > 0 {
		q.Set("children", strconv.Itoa(n))
	}
	if n := req.Count(PassengerInfantWithoutSeat); n > 0 {
		q.Set("infants", strconv.Itoa(n))
	}
	if req.CabinClass != "" {
		q.Set("travelClass", strings.ToUpper(req.CabinClass))
	}
	if a.currency != "" {
		q.Set("currencyCode", a.currency)
	}
	if a.max > 0 {
		q.Set("max", strconv.Itoa(a.max))
	}
	return q
}

// CreateOrder books the priced Amadeus offer carried in req.RawData. The
// offer id alone is not enough for Amadeus.
func (a *Amadeus) CreateOrder(ctx context.Context, req OrderRequest) (json.RawMessage, error) {
	if len(bytes.TrimSpace(req.RawData)) == 0 {
		return nil, fmt.Errorf("amadeus: %w", ErrOfferDataRequired)
	}
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"data": map[string]any{
			"type":         "flight-order",
			"flightOffers": []json.RawMessage{req.RawData},
			"travelers":    orEmptyList(req.Passengers),
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+amadeusOrderPath, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok)
	httpReq.Header.Set("Content-Type", "application/json")

	var created struct {
		Data json.RawMessage `json:"data"`
	}
	if err := do(a.client, a.Name(), httpReq, &created); err != nil {
		return nil, err
	}
	return created.Data, nil
}
