package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	pkgerrors "github.com/you/go-flights-aggregator/internal/errors"
	"github.com/you/go-flights-aggregator/internal/httpx/responses"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/offer"
	"github.com/you/go-flights-aggregator/internal/providers"
	"github.com/you/go-flights-aggregator/internal/service"
)

const defaultCabinClass = "economy"

type Searcher interface {
	Search(ctx context.Context, req providers.SearchRequest) (service.Result, error)
}

type Booker interface {
	Book(ctx context.Context, source offer.Source, req providers.OrderRequest) (json.RawMessage, error)
}

type passengerBody struct {
	Type string `json:"type" validate:"required,oneof=adult child infant_without_seat"`
}

type searchRequestBody struct {
	Origin        string          `json:"origin" validate:"required,len=3,alpha"`
	Destination   string          `json:"destination" validate:"required,len=3,alpha,nefield=Origin"`
	DepartureDate string          `json:"departureDate" validate:"required,datetime=2006-01-02"`
	ReturnDate    string          `json:"returnDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Passengers    []passengerBody `json:"passengers" validate:"required,min=1,max=9,dive"`
	CabinClass    string          `json:"cabinClass" validate:"omitempty,oneof=economy premium_economy business first"`
}

// normalize upper-cases airport codes and lower-cases the cabin before
// validation so that "lhr" and "Business" are accepted.
func (b *searchRequestBody) normalize() {
	b.Origin = strings.ToUpper(strings.TrimSpace(b.Origin))
	b.Destination = strings.ToUpper(strings.TrimSpace(b.Destination))
	b.DepartureDate = strings.TrimSpace(b.DepartureDate)
	b.ReturnDate = strings.TrimSpace(b.ReturnDate)
	b.CabinClass = strings.ToLower(strings.TrimSpace(b.CabinClass))
	for i := range b.Passengers {
		b.Passengers[i].Type = strings.ToLower(strings.TrimSpace(b.Passengers[i].Type))
	}
}

// check runs the struct rules plus the ones validator cannot express.
func (b *searchRequestBody) check() error {
	b.normalize()
	if err := validateStruct(b); err != nil {
		return err
	}
	// ISO dates compare correctly as strings.
	if b.ReturnDate != "" && b.ReturnDate < b.DepartureDate {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid search request").
			WithDetails(map[string]string{"returnDate": "must not be before departureDate"})
	}
	return nil
}

func (b searchRequestBody) toProvider() providers.SearchRequest {
	passengers := make([]providers.Passenger, 0, len(b.Passengers))
	for _, p := range b.Passengers {
		passengers = append(passengers, providers.Passenger{Type: p.Type})
	}
	cabin := b.CabinClass
	if cabin == "" {
		cabin = defaultCabinClass
	}
	return providers.SearchRequest{
		Origin:        b.Origin,
		Destination:   b.Destination,
		DepartureDate: b.DepartureDate,
		ReturnDate:    b.ReturnDate,
		Passengers:    passengers,
		CabinClass:    cabin,
	}
}

type priceRangeBody struct {
	Min      json.Number `json:"min"`
	Max      json.Number `json:"max"`
	Currency string      `json:"currency"`
}

type searchResponse struct {
	Success         bool                    `json:"success"`
	Sources         service.SourceCounts    `json:"sources"`
	TotalOffers     int                     `json:"total_offers"`
	UniqueAirlines  int                     `json:"unique_airlines"`
	PriceRange      *priceRangeBody         `json:"price_range,omitempty"`
	FailedProviders []string                `json:"failed_providers"`
	Data            []offer.NormalizedOffer `json:"data"`
}

func newSearchResponse(res service.Result) searchResponse {
	out := searchResponse{
		Success:         true,
		Sources:         res.Sources,
		TotalOffers:     len(res.Offers),
		UniqueAirlines:  res.UniqueAirlines,
		FailedProviders: res.FailedProviders,
		Data:            res.Offers,
	}
	if out.Data == nil {
		out.Data = []offer.NormalizedOffer{}
	}
	if out.FailedProviders == nil {
		out.FailedProviders = []string{}
	}
	if res.PriceRange != nil {
		out.PriceRange = &priceRangeBody{
			Min:      json.Number(res.PriceRange.Min.String()),
			Max:      json.Number(res.PriceRange.Max.String()),
			Currency: res.PriceRange.Currency,
		}
	}
	return out
}

func SearchHandler(svc Searcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body searchRequestBody
		if err := decodeJSON(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := body.check(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		res, err := svc.Search(r.Context(), body.toProvider())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, newSearchResponse(res))
	}
}

type bookRequestBody struct {
	OfferID    string          `json:"offer_id" validate:"required"`
	Source     string          `json:"source" validate:"required,oneof=duffel amadeus"`
	RawData    json.RawMessage `json:"raw_data,omitempty"`
	Passengers json.RawMessage `json:"passengers" validate:"required"`
	Payment    json.RawMessage `json:"payment,omitempty"`
}

type bookResponse struct {
	Success bool            `json:"success"`
	Source  offer.Source    `json:"source"`
	Data    json.RawMessage `json:"data"`
}

// BookHandler passes an order straight to the provider named by source.
func BookHandler(svc Booker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body bookRequestBody
		if err := decodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		source := offer.Source(body.Source)
		order, err := svc.Book(r.Context(), source, providers.OrderRequest{
			OfferID:    body.OfferID,
			RawData:    body.RawData,
			Passengers: body.Passengers,
			Payment:    body.Payment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusCreated, bookResponse{Success: true, Source: source, Data: order})
	}
}

func HealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, p := range checks {
			if err := p.Ping(r.Context()); err != nil {
				status[name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		responses.WriteJSON(w, code, status)
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}
