package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/you/go-flights-aggregator/internal/offer"
)

const (
	amadeusIDPrefix     = "amadeus_"
	amadeusDefaultCabin = "ECONOMY"
)

// AmadeusDictionaries is the sibling "dictionaries" object Amadeus returns
// next to its offers. Every map is sparse.
type AmadeusDictionaries struct {
	Carriers   map[string]string          `json:"carriers"`
	Aircraft   map[string]string          `json:"aircraft"`
	Currencies map[string]string          `json:"currencies"`
	Locations  map[string]AmadeusLocation `json:"locations"`
}

type AmadeusLocation struct {
	CityCode    string `json:"cityCode"`
	CountryCode string `json:"countryCode"`
}

// City resolves an airport code to its city code, or the airport code itself.
func (d AmadeusDictionaries) City(code string) string {
	if loc, ok := d.Locations[code]; ok && loc.CityCode != "" {
		return loc.CityCode
	}
	return code
}

type amadeusOffer struct {
	ID                string             `json:"id"`
	LastTicketingDate string             `json:"lastTicketingDate"`
	Itineraries       []amadeusItinerary `json:"itineraries"`
	Price             amadeusPrice       `json:"price"`
	TravelerPricings  json.RawMessage    `json:"travelerPricings"`
}

type amadeusPrice struct {
	Currency   string `json:"currency"`
	Total      string `json:"total"`
	Base       string `json:"base"`
	GrandTotal string `json:"grandTotal"`
	Fees       []struct {
		Amount string `json:"amount"`
		Type   string `json:"type"`
	} `json:"fees"`
}

type amadeusItinerary struct {
	Duration string           `json:"duration"`
	Segments []amadeusSegment `json:"segments"`
}

type amadeusEndpoint struct {
	IATACode string `json:"iataCode"`
	Terminal string `json:"terminal"`
	At       string `json:"at"`
}

type amadeusSegment struct {
	Departure   amadeusEndpoint `json:"departure"`
	Arrival     amadeusEndpoint `json:"arrival"`
	CarrierCode string          `json:"carrierCode"`
	Number      string          `json:"number"`
	Aircraft    struct {
		Code string `json:"code"`
	} `json:"aircraft"`
	Operating *struct {
		CarrierCode string `json:"carrierCode"`
	} `json:"operating"`
	Duration string `json:"duration"`
}

type amadeusTravelerPricing struct {
	FareDetailsBySegment []struct {
		Cabin               string `json:"cabin"`
		IncludedCheckedBags *struct {
			Quantity int `json:"quantity"`
		} `json:"includedCheckedBags"`
	} `json:"fareDetailsBySegment"`
}

// Amadeus converts one raw Amadeus flight offer. Names that Amadeus only
// reports as codes are resolved through dict, falling back to the code.
func Amadeus(raw json.RawMessage, dict AmadeusDictionaries) (out offer.NormalizedOffer, err error) {
	defer recoverSkip(offer.SourceAmadeus, raw, &err)

	var o amadeusOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return offer.NormalizedOffer{}, decodeFailed(offer.SourceAmadeus, raw, err)
	}
	if o.ID == "" {
		return offer.NormalizedOffer{}, missing(offer.SourceAmadeus, "", "id")
	}

	price, skip := amadeusPriceOf(o)
	if skip != nil {
		return offer.NormalizedOffer{}, skip
	}

	if len(o.Itineraries) == 0 {
		return offer.NormalizedOffer{}, missing(offer.SourceAmadeus, o.ID, "itineraries")
	}
	slices := make([]offer.Slice, 0, len(o.Itineraries))
	for i, it := range o.Itineraries {
		slice, skip := amadeusSliceOf(o.ID, i, it, dict)
		if skip != nil {
			return offer.NormalizedOffer{}, skip
		}
		slices = append(slices, slice)
	}

	cabin, bags := amadeusCabinAndBags(o.TravelerPricings)

	return offer.NormalizedOffer{
		ID:                 amadeusIDPrefix + o.ID,
		Source:             offer.SourceAmadeus,
		Price:              price,
		Slices:             slices,
		CabinClass:         cabin,
		Passengers:         rawOrEmptyList(o.TravelerPricings),
		AllowedCheckedBags: bags,
		ExpiresAt:          o.LastTicketingDate,
		RawData:            append(json.RawMessage(nil), raw...),
	}, nil
}

// amadeusPriceOf prefers grandTotal over total. Amadeus has no tax field, so
// tax is total minus base, clamped at zero when rounding makes it negative.
func amadeusPriceOf(o amadeusOffer) (offer.Price, *SkipError) {
	totalField := "price.grandTotal"
	if o.Price.GrandTotal == "" {
		totalField = "price.total"
	}
	rawTotal := offer.FirstNonEmpty(o.Price.GrandTotal, o.Price.Total)
	if rawTotal == "" {
		return offer.Price{}, missing(offer.SourceAmadeus, o.ID, "price.total")
	}
	if o.Price.Currency == "" {
		return offer.Price{}, missing(offer.SourceAmadeus, o.ID, "price.currency")
	}
	total, err := decimal.NewFromString(rawTotal)
	if err != nil {
		return offer.Price{}, invalidPrice(offer.SourceAmadeus, o.ID, totalField, err)
	}
	base := total
	if o.Price.Base != "" {
		if base, err = decimal.NewFromString(o.Price.Base); err != nil {
			return offer.Price{}, invalidPrice(offer.SourceAmadeus, o.ID, "price.base", err)
		}
	}
	tax := total.Sub(base)
	if tax.IsNegative() {
		tax = decimal.Zero
	}

	fees := make([]offer.Fee, 0, len(o.Price.Fees))
	for i, f := range o.Price.Fees {
		amount, err := decimal.NewFromString(f.Amount)
		if err != nil {
			return offer.Price{}, invalidPrice(offer.SourceAmadeus, o.ID, fmt.Sprintf("price.fees[%d].amount", i), err)
		}
		fees = append(fees, offer.Fee{Type: f.Type, Amount: amount})
	}

	return offer.Price{
		Total:        total,
		Base:         base,
		Tax:          tax,
		Currency:     strings.ToUpper(o.Price.Currency),
		Fees:         fees,
		TaxEstimated: true,
	}, nil
}

func amadeusSliceOf(offerID string, idx int, it amadeusItinerary, dict AmadeusDictionaries) (offer.Slice, *SkipError) {
	if len(it.Segments) == 0 {
		return offer.Slice{}, missing(offer.SourceAmadeus, offerID, fmt.Sprintf("itineraries[%d].segments", idx))
	}
	segments := make([]offer.Segment, 0, len(it.Segments))
	for j, seg := range it.Segments {
		field := fmt.Sprintf("itineraries[%d].segments[%d]", idx, j)
		if seg.Departure.IATACode == "" {
			return offer.Slice{}, missing(offer.SourceAmadeus, offerID, field+".departure.iataCode")
		}
		if seg.Arrival.IATACode == "" {
			return offer.Slice{}, missing(offer.SourceAmadeus, offerID, field+".arrival.iataCode")
		}
		segments = append(segments, amadeusSegmentOf(seg, dict))
	}

	first, last := it.Segments[0], it.Segments[len(it.Segments)-1]
	return offer.Slice{
		Origin:        amadeusPlaceOf(first.Departure, dict),
		Destination:   amadeusPlaceOf(last.Arrival, dict),
		DepartureTime: first.Departure.At,
		ArrivalTime:   last.Arrival.At,
		Duration:      HumanizeDuration(it.Duration),
		DurationISO:   it.Duration,
		Stops:         len(segments) - 1,
		Segments:      segments,
	}, nil
}

func amadeusSegmentOf(seg amadeusSegment, dict AmadeusDictionaries) offer.Segment {
	var operating *offer.Airline
	if seg.Operating != nil && seg.Operating.CarrierCode != "" {
		operating = &offer.Airline{
			Code: seg.Operating.CarrierCode,
			Name: offer.Lookup(dict.Carriers, seg.Operating.CarrierCode),
		}
	}
	return offer.Segment{
		Departure: offer.Point{Place: amadeusPlaceOf(seg.Departure, dict), Time: seg.Departure.At},
		Arrival:   offer.Point{Place: amadeusPlaceOf(seg.Arrival, dict), Time: seg.Arrival.At},
		MarketingAirline: offer.Airline{
			Code: seg.CarrierCode,
			Name: offer.Lookup(dict.Carriers, seg.CarrierCode),
		},
		OperatingAirline: operating,
		FlightNumber:     seg.CarrierCode + seg.Number,
		Aircraft:         offer.Lookup(dict.Aircraft, seg.Aircraft.Code),
		Duration:         HumanizeDuration(seg.Duration),
		DurationISO:      seg.Duration,
	}
}

// Amadeus segments carry no airport names, the code stands in for it.
func amadeusPlaceOf(e amadeusEndpoint, dict AmadeusDictionaries) offer.Place {
	return offer.Place{
		IATACode:    e.IATACode,
		City:        dict.City(e.IATACode),
		AirportName: e.IATACode,
		Terminal:    e.Terminal,
	}
}

func amadeusCabinAndBags(raw json.RawMessage) (string, int) {
	var pricings []amadeusTravelerPricing
	if len(raw) == 0 || json.Unmarshal(raw, &pricings) != nil {
		return amadeusDefaultCabin, 0
	}
	if len(pricings) == 0 || len(pricings[0].FareDetailsBySegment) == 0 {
		return amadeusDefaultCabin, 0
	}
	fare := pricings[0].FareDetailsBySegment[0]
	bags := 0
	if fare.IncludedCheckedBags != nil {
		bags = fare.IncludedCheckedBags.Quantity
	}
	return offer.FirstNonEmpty(fare.Cabin, amadeusDefaultCabin), bags
}
