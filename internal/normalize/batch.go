package normalize

import (
	"encoding/json"
	"errors"

	"github.com/you/go-flights-aggregator/internal/offer"
)

// Batch normalizes every raw offer of one provider response, keeping input
// order. Offers that fail are returned as skips and never abort the batch.
// dictionaries is only read for Amadeus; a missing or unreadable object
// leaves every lookup on its code fallback.
func Batch(source offer.Source, raws []json.RawMessage, dictionaries json.RawMessage) ([]offer.NormalizedOffer, []*SkipError) {
	out := make([]offer.NormalizedOffer, 0, len(raws))
	var skipped []*SkipError

	var dict AmadeusDictionaries
	if source == offer.SourceAmadeus && len(dictionaries) > 0 {
		_ = json.Unmarshal(dictionaries, &dict)
	}

	for _, raw := range raws {
		var (
			o   offer.NormalizedOffer
			err error
		)
		switch source {
		case offer.SourceDuffel:
			o, err = Duffel(raw)
		case offer.SourceAmadeus:
			o, err = Amadeus(raw, dict)
		default:
			err = &SkipError{Source: source, OfferID: peekID(raw), Reason: ReasonUnsupportedSource}
		}
		if err != nil {
			var skip *SkipError
			if !errors.As(err, &skip) {
				skip = &SkipError{Source: source, OfferID: peekID(raw), Reason: ReasonDecode, Err: err}
			}
			skipped = append(skipped, skip)
			continue
		}
		out = append(out, o)
	}
	return out, skipped
}
