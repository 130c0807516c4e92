package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Provider call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SearchMetrics records provider calls and normalization results. A nil
// *SearchMetrics is valid and records nothing.
type SearchMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skipped  *prometheus.CounterVec
	offers   prometheus.Histogram
}

// NewSearchMetrics registers the search metrics on the provided registerer.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	if reg == nil {
		return &SearchMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flights_provider_requests_total",
		Help: "Provider search calls by outcome.",
	}, []string{"provider", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flights_provider_request_duration_seconds",
		Help:    "Duration of provider search calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flights_offers_skipped_total",
		Help: "Raw offers dropped during normalization.",
	}, []string{"provider", "reason"})
	offers := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flights_search_offers",
		Help:    "Offers returned per aggregated search.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(requests, duration, skipped, offers)
	return &SearchMetrics{
		requests: requests,
		duration: duration,
		skipped:  skipped,
		offers:   offers,
	}
}

func (m *SearchMetrics) ObserveProvider(provider, outcome string, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	provider = normalizeLabel(provider)
	m.requests.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *SearchMetrics) IncSkipped(provider, reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

func (m *SearchMetrics) ObserveOffers(n int) {
	if m == nil || m.offers == nil {
		return
	}
	m.offers.Observe(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
