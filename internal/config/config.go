package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Addr                 string
	LogLevel             string
	LogFormat            string
	SearchTimeout        time.Duration
	SearchCurrency       string
	AmadeusMaxResults    int
	DuffelOfferLimit     int
	CacheBackend         string
	CacheTTL             time.Duration
	RedisURL             string
	SubscriptionInterval time.Duration
	JWTSecret            string
	AuthEnabled          bool
	AuthDevUser          string
	AuthDevPassword      string
	CORSOrigins          []string
	TLSCertFile          string
	TLSKeyFile           string
	AmadeusURL           string
	AmadeusClientID      string
	AmadeusClientSecret  string
	DuffelHost           string
	DuffelToken          string

	// ConfigFile is the file viper read, empty when running on defaults + env.
	ConfigFile string
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("search_timeout", "10s")
	v.SetDefault("search_currency", "USD")
	v.SetDefault("amadeus_max_results", 20)
	v.SetDefault("duffel_offer_limit", 50)
	v.SetDefault("cache_backend", CacheNone)
	v.SetDefault("cache_ttl", "0s")
	v.SetDefault("subscription_interval", "30s")
	v.SetDefault("auth_enabled", false)
	v.SetDefault("cors_origins", "*")

	v.SetDefault("amadeus_url", "https://test.api.amadeus.com")
	v.SetDefault("duffel_host", "https://api.duffel.com")

	if path := os.Getenv("FLIGHTS_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		// Fallback to conventional locations for local dev
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flights")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && os.Getenv("FLIGHTS_CONFIG") != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()

	timeout, err := parseDuration(v, "search_timeout")
	if err != nil {
		return nil, err
	}
	ttl, err := parseDuration(v, "cache_ttl")
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration(v, "subscription_interval")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:                 v.GetString("addr"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
		SearchTimeout:        timeout,
		SearchCurrency:       strings.ToUpper(strings.TrimSpace(v.GetString("search_currency"))),
		AmadeusMaxResults:    v.GetInt("amadeus_max_results"),
		DuffelOfferLimit:     v.GetInt("duffel_offer_limit"),
		CacheBackend:         strings.ToLower(strings.TrimSpace(v.GetString("cache_backend"))),
		CacheTTL:             ttl,
		RedisURL:             v.GetString("redis_url"),
		SubscriptionInterval: interval,
		JWTSecret:            v.GetString("jwt_secret"),
		AuthEnabled:          v.GetBool("auth_enabled"),
		AuthDevUser:          v.GetString("auth_dev_user"),
		AuthDevPassword:      v.GetString("auth_dev_pass"),
		CORSOrigins:          splitCSV(v.GetString("cors_origins")),
		TLSCertFile:          v.GetString("tls_cert_file"),
		TLSKeyFile:           v.GetString("tls_key_file"),
		AmadeusURL:           v.GetString("amadeus_url"),
		AmadeusClientID:      v.GetString("amadeus_clientid"),
		AmadeusClientSecret:  v.GetString("amadeus_clientsecret"),
		DuffelHost:           v.GetString("duffel_host"),
		DuffelToken:          v.GetString("duffel_token"),
		ConfigFile:           v.ConfigFileUsed(),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SearchCurrency) != 3 {
		return fmt.Errorf("search_currency must be an ISO-4217 code, got %q", c.SearchCurrency)
	}
	switch c.CacheBackend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required when cache_backend is redis")
		}
	default:
		return fmt.Errorf("unknown cache_backend %q", c.CacheBackend)
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return errors.New("jwt_secret is required when auth_enabled is true")
	}
	if c.SearchTimeout <= 0 {
		return errors.New("search_timeout must be positive")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", key, err)
	}
	return d, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
