package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/you/go-flights-aggregator/internal/offer"
)

const duffelDefaultCabin = "Economy"

type duffelOffer struct {
	ID            string          `json:"id"`
	TotalAmount   string          `json:"total_amount"`
	TotalCurrency string          `json:"total_currency"`
	BaseAmount    string          `json:"base_amount"`
	TaxAmount     string          `json:"tax_amount"`
	ExpiresAt     string          `json:"expires_at"`
	Passengers    json.RawMessage `json:"passengers"`
	Slices        []duffelSlice   `json:"slices"`
}

type duffelPlace struct {
	IATACode string `json:"iata_code"`
	Name     string `json:"name"`
	CityName string `json:"city_name"`
	City     *struct {
		Name string `json:"name"`
	} `json:"city"`
}

type duffelSlice struct {
	Origin      duffelPlace     `json:"origin"`
	Destination duffelPlace     `json:"destination"`
	Duration    string          `json:"duration"`
	Segments    []duffelSegment `json:"segments"`
}

type duffelCarrier struct {
	IATACode      string  `json:"iata_code"`
	Name          string  `json:"name"`
	LogoSymbolURL *string `json:"logo_symbol_url"`
}

type duffelSegment struct {
	Origin                       duffelPlace    `json:"origin"`
	Destination                  duffelPlace    `json:"destination"`
	OriginTerminal               string         `json:"origin_terminal"`
	DestinationTerminal          string         `json:"destination_terminal"`
	DepartingAt                  string         `json:"departing_at"`
	ArrivingAt                   string         `json:"arriving_at"`
	MarketingCarrier             *duffelCarrier `json:"marketing_carrier"`
	OperatingCarrier             *duffelCarrier `json:"operating_carrier"`
	MarketingCarrierFlightNumber string         `json:"marketing_carrier_flight_number"`
	Aircraft                     *struct {
		Name string `json:"name"`
	} `json:"aircraft"`
	Duration   string                   `json:"duration"`
	Passengers []duffelSegmentPassenger `json:"passengers"`
}

type duffelSegmentPassenger struct {
	CabinClass              string `json:"cabin_class"`
	CabinClassMarketingName string `json:"cabin_class_marketing_name"`
	Baggages                []struct {
		Type     string `json:"type"`
		Quantity int    `json:"quantity"`
	} `json:"baggages"`
}

// Duffel converts one raw Duffel offer. Duffel ids are already unique and
// pass through unchanged.
func Duffel(raw json.RawMessage) (out offer.NormalizedOffer, err error) {
	defer recoverSkip(offer.SourceDuffel, raw, &err)

	var o duffelOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return offer.NormalizedOffer{}, decodeFailed(offer.SourceDuffel, raw, err)
	}
	if o.ID == "" {
		return offer.NormalizedOffer{}, missing(offer.SourceDuffel, "", "id")
	}

	price, skip := duffelPrice(o)
	if skip != nil {
		return offer.NormalizedOffer{}, skip
	}

	if len(o.Slices) == 0 {
		return offer.NormalizedOffer{}, missing(offer.SourceDuffel, o.ID, "slices")
	}
	slices := make([]offer.Slice, 0, len(o.Slices))
	for i, s := range o.Slices {
		slice, skip := duffelSliceOf(o.ID, i, s)
		if skip != nil {
			return offer.NormalizedOffer{}, skip
		}
		slices = append(slices, slice)
	}

	cabin, bags := duffelCabinAndBags(o)

	return offer.NormalizedOffer{
		ID:                 o.ID,
		Source:             offer.SourceDuffel,
		Price:              price,
		Slices:             slices,
		CabinClass:         cabin,
		Passengers:         rawOrEmptyList(o.Passengers),
		AllowedCheckedBags: bags,
		ExpiresAt:          o.ExpiresAt,
		RawData:            append(json.RawMessage(nil), raw...),
	}, nil
}

func duffelPrice(o duffelOffer) (offer.Price, *SkipError) {
	if o.TotalAmount == "" {
		return offer.Price{}, missing(offer.SourceDuffel, o.ID, "total_amount")
	}
	if o.TotalCurrency == "" {
		return offer.Price{}, missing(offer.SourceDuffel, o.ID, "total_currency")
	}
	total, err := decimal.NewFromString(o.TotalAmount)
	if err != nil {
		return offer.Price{}, invalidPrice(offer.SourceDuffel, o.ID, "total_amount", err)
	}
	base := total
	if o.BaseAmount != "" {
		if base, err = decimal.NewFromString(o.BaseAmount); err != nil {
			return offer.Price{}, invalidPrice(offer.SourceDuffel, o.ID, "base_amount", err)
		}
	}
	tax := decimal.Zero
	if o.TaxAmount != "" {
		if tax, err = decimal.NewFromString(o.TaxAmount); err != nil {
			return offer.Price{}, invalidPrice(offer.SourceDuffel, o.ID, "tax_amount", err)
		}
	}
	return offer.Price{
		Total:    total,
		Base:     base,
		Tax:      tax,
		Currency: strings.ToUpper(o.TotalCurrency),
		Fees:     []offer.Fee{},
	}, nil
}

func duffelSliceOf(offerID string, idx int, s duffelSlice) (offer.Slice, *SkipError) {
	if len(s.Segments) == 0 {
		return offer.Slice{}, missing(offer.SourceDuffel, offerID, fmt.Sprintf("slices[%d].segments", idx))
	}
	segments := make([]offer.Segment, 0, len(s.Segments))
	for j, seg := range s.Segments {
		field := fmt.Sprintf("slices[%d].segments[%d]", idx, j)
		if seg.Origin.IATACode == "" {
			return offer.Slice{}, missing(offer.SourceDuffel, offerID, field+".origin.iata_code")
		}
		if seg.Destination.IATACode == "" {
			return offer.Slice{}, missing(offer.SourceDuffel, offerID, field+".destination.iata_code")
		}
		segments = append(segments, duffelSegmentOf(seg))
	}

	first, last := s.Segments[0], s.Segments[len(s.Segments)-1]
	origin := s.Origin
	if origin.IATACode == "" {
		origin = first.Origin
	}
	destination := s.Destination
	if destination.IATACode == "" {
		destination = last.Destination
	}

	return offer.Slice{
		Origin:        duffelPlaceOf(origin, first.OriginTerminal),
		Destination:   duffelPlaceOf(destination, last.DestinationTerminal),
		DepartureTime: first.DepartingAt,
		ArrivalTime:   last.ArrivingAt,
		Duration:      HumanizeDuration(s.Duration),
		DurationISO:   s.Duration,
		Stops:         len(segments) - 1,
		Segments:      segments,
	}, nil
}

func duffelSegmentOf(seg duffelSegment) offer.Segment {
	var marketing, operating duffelCarrier
	if seg.MarketingCarrier != nil {
		marketing = *seg.MarketingCarrier
	}
	if seg.OperatingCarrier != nil {
		operating = *seg.OperatingCarrier
	}

	airline := offer.Airline{
		Code: offer.FirstNonEmpty(marketing.IATACode, operating.IATACode),
		Name: offer.ResolveAirlineName(marketing.Name, operating.Name),
		Logo: marketing.LogoSymbolURL,
	}
	if airline.Logo == nil {
		airline.Logo = operating.LogoSymbolURL
	}

	var operatingAirline *offer.Airline
	if seg.OperatingCarrier != nil {
		operatingAirline = &offer.Airline{
			Code: operating.IATACode,
			Name: offer.FirstNonEmpty(operating.Name, operating.IATACode),
			Logo: operating.LogoSymbolURL,
		}
	}

	aircraft := ""
	if seg.Aircraft != nil {
		aircraft = seg.Aircraft.Name
	}

	return offer.Segment{
		Departure: offer.Point{
			Place: duffelPlaceOf(seg.Origin, seg.OriginTerminal),
			Time:  seg.DepartingAt,
		},
		Arrival: offer.Point{
			Place: duffelPlaceOf(seg.Destination, seg.DestinationTerminal),
			Time:  seg.ArrivingAt,
		},
		MarketingAirline: airline,
		OperatingAirline: operatingAirline,
		FlightNumber:     airline.Code + seg.MarketingCarrierFlightNumber,
		Aircraft:         aircraft,
		Duration:         HumanizeDuration(seg.Duration),
		DurationISO:      seg.Duration,
	}
}

func duffelPlaceOf(p duffelPlace, terminal string) offer.Place {
	city := p.CityName
	if city == "" && p.City != nil {
		city = p.City.Name
	}
	return offer.Place{
		IATACode:    p.IATACode,
		City:        offer.FirstNonEmpty(city, p.IATACode),
		AirportName: offer.FirstNonEmpty(p.Name, p.IATACode),
		Terminal:    terminal,
	}
}

// duffelCabinAndBags reads the first passenger of the first segment, which
// is where Duffel reports cabin and baggage allowance.
func duffelCabinAndBags(o duffelOffer) (string, int) {
	if len(o.Slices) == 0 || len(o.Slices[0].Segments) == 0 || len(o.Slices[0].Segments[0].Passengers) == 0 {
		return duffelDefaultCabin, 0
	}
	p := o.Slices[0].Segments[0].Passengers[0]
	cabin := offer.FirstNonEmpty(p.CabinClassMarketingName, p.CabinClass, duffelDefaultCabin)
	bags := 0
	for _, b := range p.Baggages {
		if b.Type == "checked" {
			bags = b.Quantity
			break
		}
	}
	return cabin, bags
}

func rawOrEmptyList(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("[]")
	}
	return append(json.RawMessage(nil), raw...)
}
