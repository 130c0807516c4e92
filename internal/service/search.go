package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/you/go-flights-aggregator/internal/cache"
	pkgerrors "github.com/you/go-flights-aggregator/internal/errors"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/metrics"
	"github.com/you/go-flights-aggregator/internal/normalize"
	"github.com/you/go-flights-aggregator/internal/offer"
	"github.com/you/go-flights-aggregator/internal/providers"
)

// Params wires a SearchService. Only Providers and Timeout are required.
type Params struct {
	Providers []providers.FlightProvider
	// Timeout bounds each provider call on its own.
	Timeout time.Duration
	// Currency, when set, drops offers priced in any other currency.
	Currency string
	Cache    cache.Store
	CacheTTL time.Duration
	Metrics  *metrics.SearchMetrics
	Logger   *logger.Logger
}

type SearchService struct {
	providers []providers.FlightProvider
	timeout   time.Duration
	currency  string
	cache     cache.Store
	cacheTTL  time.Duration
	metrics   *metrics.SearchMetrics
	log       *logger.Logger
}

func NewSearchService(p Params) *SearchService {
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &SearchService{
		providers: p.Providers,
		timeout:   p.Timeout,
		currency:  p.Currency,
		cache:     p.Cache,
		cacheTTL:  p.CacheTTL,
		metrics:   p.Metrics,
		log:       log,
	}
}

// providerOutcome is owned by exactly one provider goroutine.
type providerOutcome struct {
	source  offer.Source
	offers  []offer.NormalizedOffer
	skipped []*normalize.SkipError
	err     error
}

// Search queries every provider concurrently and merges the normalized
// offers, cheapest first. A failing provider contributes no offers and is
// listed in FailedProviders. An error is returned only when ctx ends before
// the fan-out completes or the merge itself panics.
func (s *SearchService) Search(ctx context.Context, req providers.SearchRequest) (res Result, err error) {
	key := cacheKey(req)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	outcomes := make([]providerOutcome, len(s.providers))
	var g errgroup.Group
	for i, p := range s.providers {
		g.Go(func() error {
			outcomes[i] = s.searchProvider(ctx, p, req)
			return nil
		})
	}
	_ = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, ctxErr, "search aborted before providers answered")
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("merging provider results: %v", r))
		}
	}()

	res = merge(outcomes)
	s.metrics.ObserveOffers(len(res.Offers))
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"origin":           req.Origin,
		"destination":      req.Destination,
		"total_offers":     len(res.Offers),
		"skipped":          len(res.Skipped),
		"failed_providers": res.FailedProviders,
	}), "search completed")

	if len(res.FailedProviders) == 0 {
		s.toCache(ctx, key, res)
	}
	return res, nil
}

func (s *SearchService) searchProvider(ctx context.Context, p providers.FlightProvider, req providers.SearchRequest) (out providerOutcome) {
	source := p.Name()
	out.source = source
	pctx := s.log.WithField(ctx, "provider", source.String())

	start := time.Now()
	batch, err := s.callProvider(ctx, p, req)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveProvider(source.String(), metrics.OutcomeFailure, elapsed)
		s.log.Warn(pctx, "provider search failed", err)
		out.err = err
		return out
	}
	s.metrics.ObserveProvider(source.String(), metrics.OutcomeSuccess, elapsed)

	offers, skipped := normalize.Batch(source, batch.Offers, batch.Dictionaries)
	kept := offers[:0]
	for _, o := range offers {
		if err := normalize.CheckCurrency(o, s.currency); err != nil {
			skip := err.(*normalize.SkipError)
			skipped = append(skipped, skip)
			continue
		}
		kept = append(kept, o)
	}
	for _, skip := range skipped {
		s.metrics.IncSkipped(source.String(), string(skip.Reason))
		s.log.Warn(s.log.WithFields(pctx, map[string]any{
			"offer_id": skip.OfferID,
			"reason":   string(skip.Reason),
			"field":    skip.Field,
		}), "offer skipped", skip.Err)
	}

	out.offers = kept
	out.skipped = skipped
	return out
}

// callProvider isolates one provider call behind its own deadline and
// converts a panic into an error for that provider only.
func (s *SearchService) callProvider(ctx context.Context, p providers.FlightProvider, req providers.SearchRequest) (batch providers.Batch, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", p.Name(), r)
		}
	}()
	return p.Search(ctx, req)
}

func merge(outcomes []providerOutcome) Result {
	res := Result{
		Offers:          []offer.NormalizedOffer{},
		FailedProviders: []string{},
	}
	for _, o := range outcomes {
		if o.err != nil {
			res.FailedProviders = append(res.FailedProviders, o.source.String())
			continue
		}
		res.Offers = append(res.Offers, o.offers...)
		res.Skipped = append(res.Skipped, o.skipped...)
	}
	sort.SliceStable(res.Offers, func(i, j int) bool {
		return res.Offers[i].Price.Total.LessThan(res.Offers[j].Price.Total)
	})
	res.summarize()
	return res
}

func (s *SearchService) fromCache(ctx context.Context, key string) (Result, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return Result{}, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn(ctx, "search cache read failed", err)
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		s.log.Warn(ctx, "search cache entry unreadable", err)
		return Result{}, false
	}
	res.Cached = true
	return res, true
}

func (s *SearchService) toCache(ctx context.Context, key string, res Result) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		s.log.Warn(ctx, "search cache encode failed", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.log.Warn(ctx, "search cache write failed", err)
	}
}

func cacheKey(req providers.SearchRequest) string {
	parts := []string{
		"search",
		strings.ToUpper(req.Origin),
		strings.ToUpper(req.Destination),
		req.DepartureDate,
		req.ReturnDate,
		strings.ToLower(req.CabinClass),
		"a" + strconv.Itoa(req.Count(providers.PassengerAdult)),
		"c" + strconv.Itoa(req.Count(providers.PassengerChild)),
		"i" + strconv.Itoa(req.Count(providers.PassengerInfantWithoutSeat)),
	}
	return strings.Join(parts, "|")
}
