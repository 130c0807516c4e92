// Package offer holds the provider-agnostic flight offer returned by a search.
//
// A NormalizedOffer is built once per search response and never mutated
// afterwards. Booking needs ID, Source, Passengers and RawData, so the
// provider-native pieces are kept verbatim next to the normalized fields.
package offer

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceDuffel  Source = "duffel"
	SourceAmadeus Source = "amadeus"
)

// Sources lists every provider in registration order.
var Sources = []Source{SourceDuffel, SourceAmadeus}

func (s Source) Valid() bool {
	return s == SourceDuffel || s == SourceAmadeus
}

func (s Source) String() string { return string(s) }

type NormalizedOffer struct {
	ID                 string          `json:"id"`
	Source             Source          `json:"source"`
	Price              Price           `json:"price"`
	Slices             []Slice         `json:"slices"`
	CabinClass         string          `json:"cabin_class"`
	Passengers         json.RawMessage `json:"passengers"`
	AllowedCheckedBags int             `json:"allowed_checked_bags"`
	ExpiresAt          string          `json:"expires_at,omitempty"`
	RawData            json.RawMessage `json:"raw_data"`
}

// Price amounts are rendered as JSON numbers. TaxEstimated marks a tax that
// was derived from total and base instead of being reported by the provider.
type Price struct {
	Total        decimal.Decimal `json:"total"`
	Base         decimal.Decimal `json:"base"`
	Tax          decimal.Decimal `json:"tax"`
	Currency     string          `json:"currency"`
	Fees         []Fee           `json:"fees"`
	TaxEstimated bool            `json:"tax_estimated"`
}

type Fee struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type Slice struct {
	Origin        Place     `json:"origin"`
	Destination   Place     `json:"destination"`
	DepartureTime string    `json:"departure_time"`
	ArrivalTime   string    `json:"arrival_time"`
	Duration      string    `json:"duration"`
	DurationISO   string    `json:"duration_iso"`
	Stops         int       `json:"stops"`
	Segments      []Segment `json:"segments"`
}

type Place struct {
	IATACode    string `json:"iata_code"`
	City        string `json:"city"`
	AirportName string `json:"airport_name"`
	Terminal    string `json:"terminal,omitempty"`
}

type Point struct {
	Place
	Time string `json:"time"`
}

type Airline struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Logo *string `json:"logo"`
}

// Segment is one takeoff and one landing. Stops is always zero at this
// granularity, a slice derives its stops from the segment count.
type Segment struct {
	Departure        Point    `json:"departure"`
	Arrival          Point    `json:"arrival"`
	MarketingAirline Airline  `json:"airline"`
	OperatingAirline *Airline `json:"operating_airline,omitempty"`
	FlightNumber     string   `json:"flight_number"`
	Aircraft         string   `json:"aircraft"`
	Duration         string   `json:"duration"`
	DurationISO      string   `json:"duration_iso"`
	Stops            int      `json:"stops"`
}

type wireFee struct {
	Type   string      `json:"type"`
	Amount json.Number `json:"amount"`
}

func (f Fee) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireFee{Type: f.Type, Amount: json.Number(f.Amount.String())})
}

func (p Price) MarshalJSON() ([]byte, error) {
	fees := p.Fees
	if fees == nil {
		fees = []Fee{}
	}
	return json.Marshal(struct {
		Total        json.Number `json:"total"`
		Base         json.Number `json:"base"`
		Tax          json.Number `json:"tax"`
		Currency     string      `json:"currency"`
		Fees         []Fee       `json:"fees"`
		TaxEstimated bool        `json:"tax_estimated"`
	}{
		Total:        json.Number(p.Total.String()),
		Base:         json.Number(p.Base.String()),
		Tax:          json.Number(p.Tax.String()),
		Currency:     p.Currency,
		Fees:         fees,
		TaxEstimated: p.TaxEstimated,
	})
}
