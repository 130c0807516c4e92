package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/you/go-flights-aggregator/internal/errors"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/offer"
	"github.com/you/go-flights-aggregator/internal/providers"
)

// BookingService forwards an order to the provider an offer came from.
// Nothing is stored; the provider's order document is returned as is.
type BookingService struct {
	bookers map[offer.Source]providers.Booker
	log     *logger.Logger
}

func NewBookingService(log *logger.Logger, bookers ...providers.Booker) *BookingService {
	if log == nil {
		log = logger.Nop()
	}
	m := make(map[offer.Source]providers.Booker, len(bookers))
	for _, b := range bookers {
		m[b.Name()] = b
	}
	return &BookingService{bookers: m, log: log}
}

func (b *BookingService) Book(ctx context.Context, source offer.Source, req providers.OrderRequest) (json.RawMessage, error) {
	booker, ok := b.bookers[source]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported source %q", source)).
			WithDetails(map[string]string{"source": "must be one of duffel, amadeus"})
	}
	if req.OfferID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer_id is required").
			WithDetails(map[string]string{"offer_id": "required"})
	}

	ctx = b.log.WithFields(ctx, map[string]any{"provider": source.String(), "offer_id": req.OfferID})
	order, err := booker.CreateOrder(ctx, req)
	if err != nil {
		b.log.Error(ctx, "order creation failed", err)
		return nil, bookingError(err)
	}
	b.log.Info(ctx, "order created")
	return order, nil
}

func bookingError(err error) error {
	var status *providers.StatusError
	if errors.As(err, &status) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provider rejected the order").
			WithDetails(map[string]any{"provider": status.Provider, "status": status.StatusCode})
	}
	if errors.Is(err, providers.ErrOfferDataRequired) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "raw_data is required for this source").
			WithDetails(map[string]string{"raw_data": "required"})
	}
	if errors.Is(err, providers.ErrNotConfigured) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provider is not configured")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "order creation failed")
}
