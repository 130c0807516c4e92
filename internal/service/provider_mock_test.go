package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/you/go-flights-aggregator/internal/offer"
	"github.com/you/go-flights-aggregator/internal/providers"
)

type ProviderMock struct {
	name            offer.Source
	offers          []json.RawMessage
	dictionaries    json.RawMessage
	delay           time.Duration
	errorOutMessage *string
	panicWith       any
	callCount       *int32
	order           json.RawMessage
	orderErr        error
}

func (p ProviderMock) Name() offer.Source {
	return p.name
}

func (p ProviderMock) Search(ctx context.Context, _ providers.SearchRequest) (providers.Batch, error) {
	if p.callCount != nil {
		atomic.AddInt32(p.callCount, 1)
	}
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.errorOutMessage != nil {
		return providers.Batch{}, errors.New(p.Name().String() + ": " + *p.errorOutMessage)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return providers.Batch{}, ctx.Err()
		}
	}
	return providers.Batch{Source: p.name, Offers: p.offers, Dictionaries: p.dictionaries}, nil
}

func (p ProviderMock) CreateOrder(_ context.Context, _ providers.OrderRequest) (json.RawMessage, error) {
	if p.callCount != nil {
		atomic.AddInt32(p.callCount, 1)
	}
	return p.order, p.orderErr
}

func valToPtr[T any](param T) *T {
	return &param
}
