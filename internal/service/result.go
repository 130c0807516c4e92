package service

import (
	"github.com/shopspring/decimal"

	"github.com/you/go-flights-aggregator/internal/normalize"
	"github.com/you/go-flights-aggregator/internal/offer"
)

// SourceCounts is the number of offers each provider contributed after
// normalization.
type SourceCounts struct {
	Duffel  int `json:"duffel"`
	Amadeus int `json:"amadeus"`
}

type PriceRange struct {
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Currency string          `json:"currency"`
}

type Result struct {
	Offers          []offer.NormalizedOffer `json:"offers"`
	Sources         SourceCounts            `json:"sources"`
	UniqueAirlines  int                     `json:"unique_airlines"`
	PriceRange      *PriceRange             `json:"price_range,omitempty"`
	FailedProviders []string                `json:"failed_providers"`

	// Skipped is only populated on a fresh search.
	Skipped []*normalize.SkipError `json:"-"`
	Cached  bool                   `json:"-"`
}

// summarize fills the counters from Offers, which must already be sorted by
// price.
func (r *Result) summarize() {
	r.Sources = SourceCounts{}
	for _, o := range r.Offers {
		switch o.Source {
		case offer.SourceDuffel:
			r.Sources.Duffel++
		case offer.SourceAmadeus:
			r.Sources.Amadeus++
		}
	}
	r.UniqueAirlines = offer.UniqueAirlines(r.Offers)

	r.PriceRange = nil
	if n := len(r.Offers); n > 0 {
		r.PriceRange = &PriceRange{
			Min:      r.Offers[0].Price.Total,
			Max:      r.Offers[n-1].Price.Total,
			Currency: r.Offers[0].Price.Currency,
		}
	}
}
