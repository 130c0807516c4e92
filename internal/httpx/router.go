package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/you/go-flights-aggregator/internal/auth"
	"github.com/you/go-flights-aggregator/internal/config"
	"github.com/you/go-flights-aggregator/internal/logger"
)

type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Search   Searcher
	Booking  Booker
	Gatherer prometheus.Gatherer
	// Pingers are reported by /health, keyed by component name.
	Pingers map[string]Pinger
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		Recoverer(logg),
		RequestID(logg),
		Logging(logg),
		CORS(cfg.CORSOrigins),
	)

	r.Get("/health", HealthHandler(d.Pingers))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.AuthDevUser != "" && cfg.JWTSecret != "" {
		r.Post("/auth/login", auth.LoginHandler(cfg.JWTSecret, cfg.AuthDevUser, cfg.AuthDevPassword, logg))
	}

	r.Route("/api/flights", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(auth.Middleware(cfg.JWTSecret, logg))
		}
		r.Post("/search", SearchHandler(d.Search, logg))
		r.Post("/book", BookHandler(d.Booking, logg))
		r.Get("/subscribe", SubscribeSSEHandler(d.Search, cfg.SubscriptionInterval, logg))
		r.Get("/ws", SubscribeWSHandler(d.Search, cfg.SubscriptionInterval, originMatcher(cfg.CORSOrigins), logg))
	})

	return r
}
