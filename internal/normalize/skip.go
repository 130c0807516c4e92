package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/you/go-flights-aggregator/internal/offer"
)

// Reason says why a raw offer was left out of a result set.
type Reason string

const (
	ReasonDecode            Reason = "decode"
	ReasonMissingField      Reason = "missing_field"
	ReasonInvalidPrice      Reason = "invalid_price"
	ReasonCurrencyMismatch  Reason = "currency_mismatch"
	ReasonUnsupportedSource Reason = "unsupported_source"
	ReasonPanic             Reason = "panic"
)

// SkipError is returned instead of an offer when normalization fails. It is
// the only error type the normalizers return.
type SkipError struct {
	Source  offer.Source
	OfferID string
	Reason  Reason
	Field   string
	Err     error
}

func (e *SkipError) Error() string {
	msg := fmt.Sprintf("%s offer %q skipped: %s", e.Source, e.OfferID, e.Reason)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SkipError) Unwrap() error { return e.Err }

func missing(src offer.Source, id, field string) *SkipError {
	return &SkipError{Source: src, OfferID: id, Reason: ReasonMissingField, Field: field}
}

func invalidPrice(src offer.Source, id, field string, err error) *SkipError {
	return &SkipError{Source: src, OfferID: id, Reason: ReasonInvalidPrice, Field: field, Err: err}
}

func decodeFailed(src offer.Source, raw json.RawMessage, err error) *SkipError {
	return &SkipError{Source: src, OfferID: peekID(raw), Reason: ReasonDecode, Err: err}
}

// recoverSkip turns a panic inside a normalizer into a SkipError.
func recoverSkip(src offer.Source, raw json.RawMessage, err *error) {
	if r := recover(); r != nil {
		*err = &SkipError{Source: src, OfferID: peekID(raw), Reason: ReasonPanic, Err: fmt.Errorf("%v", r)}
	}
}

func peekID(raw json.RawMessage) string {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.ID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(probe.ID, &id); err != nil {
		return string(probe.ID)
	}
	return id
}

// CheckCurrency rejects an offer priced in a currency other than want. An
// empty want disables the check.
func CheckCurrency(o offer.NormalizedOffer, want string) error {
	if want == "" || o.Price.Currency == want {
		return nil
	}
	return &SkipError{
		Source:  o.Source,
		OfferID: o.ID,
		Reason:  ReasonCurrencyMismatch,
		Field:   "price.currency",
		Err:     fmt.Errorf("got %s, want %s", o.Price.Currency, want),
	}
}
