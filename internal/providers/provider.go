package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/you/go-flights-aggregator/internal/offer"
)

// Passenger types accepted in a search request.
const (
	PassengerAdult             = "adult"
	PassengerChild             = "child"
	PassengerInfantWithoutSeat = "infant_without_seat"
)

const maxBodyBytes = 16 << 20

// ErrNotConfigured is returned by a provider whose credentials are empty.
var ErrNotConfigured = errors.New("provider credentials missing")

// ErrOfferDataRequired is returned by a Booker that needs the raw offer.
var ErrOfferDataRequired = errors.New("raw offer data is required to book")

type Passenger struct {
	Type string `json:"type"`
}

// SearchRequest is the provider-neutral search. Each client maps it to its
// own wire format.
type SearchRequest struct {
	Origin        string      `json:"origin"`
	Destination   string      `json:"destination"`
	DepartureDate string      `json:"departureDate"`
	ReturnDate    string      `json:"returnDate,omitempty"`
	Passengers    []Passenger `json:"passengers"`
	CabinClass    string      `json:"cabinClass"`
}

// Count returns how many passengers have type t.
func (r SearchRequest) Count(t string) int {
	n := 0
	for _, p := range r.Passengers {
		if p.Type == t {
			n++
		}
	}
	return n
}

// Batch is one provider response: raw offers in provider order plus the
// lookup dictionaries some providers ship next to them.
type Batch struct {
	Source       offer.Source
	Offers       []json.RawMessage
	Dictionaries json.RawMessage
}

type FlightProvider interface {
	Name() offer.Source
	Search(ctx context.Context, req SearchRequest) (Batch, error)
}

// OrderRequest carries what the UI got back from a search. Payment is passed
// through untouched.
type OrderRequest struct {
	OfferID    string
	RawData    json.RawMessage
	Passengers json.RawMessage
	Payment    json.RawMessage
}

// Booker creates an order for an offer previously returned by the same
// provider and returns the provider's order document.
type Booker interface {
	Name() offer.Source
	CreateOrder(ctx context.Context, req OrderRequest) (json.RawMessage, error)
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider   offer.Source
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(body))
}

// do sends req and decodes a 2xx JSON body into out. Other statuses become
// a *StatusError.
func do(client *http.Client, provider offer.Source, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: reading body: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", provider, err)
	}
	return nil
}
