package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/you/go-flights-aggregator/internal/cache"
	"github.com/you/go-flights-aggregator/internal/config"
	"github.com/you/go-flights-aggregator/internal/httpx"
	"github.com/you/go-flights-aggregator/internal/logger"
	"github.com/you/go-flights-aggregator/internal/metrics"
	"github.com/you/go-flights-aggregator/internal/providers"
	"github.com/you/go-flights-aggregator/internal/service"
)

const sweepInterval = time.Minute

func main() {
	// .env is optional, real env wins
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "flights-aggregator"}).Error(context.Background(), "config.load", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "flights-aggregator",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ConfigFile != "" {
		logg.Info(logg.WithField(ctx, "file", cfg.ConfigFile), "config.file_loaded")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Registration order is the merge order for equally priced offers.
	duffel := providers.NewDuffel(cfg)
	amadeus := providers.NewAmadeus(cfg)

	pingers := map[string]httpx.Pinger{}
	store, closeStore, err := openCache(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "cache.open", err)
		os.Exit(1)
	}
	defer closeStore()
	if p, ok := store.(httpx.Pinger); ok {
		pingers["cache"] = p
	}

	searchSvc := service.NewSearchService(service.Params{
		Providers: []providers.FlightProvider{duffel, amadeus},
		Timeout:   cfg.SearchTimeout,
		Currency:  cfg.SearchCurrency,
		Cache:     store,
		CacheTTL:  cfg.CacheTTL,
		Metrics:   metrics.NewSearchMetrics(reg),
		Logger:    logg,
	})
	bookingSvc := service.NewBookingService(logg, duffel, amadeus)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpx.NewRouter(httpx.Deps{
			Config:   cfg,
			Logger:   logg,
			Search:   searchSvc,
			Booking:  bookingSvc,
			Gatherer: reg,
			Pingers:  pingers,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// streaming responses stay open, so no write timeout
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lctx := logg.WithFields(ctx, map[string]any{"addr": srv.Addr, "tls": cfg.TLSCertFile != ""})
		logg.Info(lctx, "server.listening")
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "server.failed", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "server.shutdown", err)
	}
	logg.Info(shutdownCtx, "server.stopped")
}

// openCache returns a nil store when caching is off.
func openCache(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cache.Store, func(), error) {
	noop := func() {}
	switch cfg.CacheBackend {
	case config.CacheMemory:
		mem := cache.NewMemory()
		go func() {
			t := time.NewTicker(sweepInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n := mem.Sweep(); n > 0 {
						logg.Debug(logg.WithField(ctx, "evicted", n), "cache.sweep")
					}
				}
			}
		}()
		return mem, noop, nil
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return r, func() { _ = r.Close() }, nil
	}
	return nil, noop, nil
}
