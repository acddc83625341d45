package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	RateCapacity  float64
	RateRefill    float64 // tokens per second
	RateIdleTTL   time.Duration
	SweepInterval time.Duration

	DatabaseDSN string
	RedisAddr   string

	PaymentCacheTTL     time.Duration
	PaymentMaxRetries   int
	PaymentRetryBackoff time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file (files) and then the process environment.
// It reports whether a .env file was loaded.
func Load(files ...string) (*Config, bool, error) {
	loaded := godotenv.Load(files...) == nil

	cfg := &Config{
		HTTPAddr:  getenv("HTTP_ADDR", "localhost:8080"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.RateCapacity, errs = parseFloat("RATE_CAPACITY", 5, errs)
	cfg.RateRefill, errs = parseFloat("RATE_REFILL_PER_SEC", 5, errs)
	cfg.RateIdleTTL, errs = parseDuration("RATE_IDLE_TTL", 0, errs)
	cfg.SweepInterval, errs = parseDuration("RATE_SWEEP_INTERVAL", time.Minute, errs)
	cfg.ShutdownTimeout, errs = parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second, errs)
	cfg.PaymentCacheTTL, errs = parseDuration("PAYMENT_CACHE_TTL", 24*time.Hour, errs)
	cfg.PaymentRetryBackoff, errs = parseDuration("PAYMENT_RETRY_BACKOFF", 500*time.Millisecond, errs)

	cfg.PaymentMaxRetries = 3
	if raw := os.Getenv("PAYMENT_MAX_RETRIES"); raw != "" {
		retries, err := strconv.Atoi(raw)
		if err != nil {
			collect(fmt.Errorf("PAYMENT_MAX_RETRIES: %w", err))
		} else {
			cfg.PaymentMaxRetries = retries
		}
	}

	if cfg.RateCapacity <= 0 {
		collect(errors.New("RATE_CAPACITY must be positive"))
	}
	if cfg.RateRefill <= 0 {
		collect(errors.New("RATE_REFILL_PER_SEC must be positive"))
	}
	if cfg.RateIdleTTL > 0 && cfg.SweepInterval <= 0 {
		collect(errors.New("RATE_SWEEP_INTERVAL must be positive when RATE_IDLE_TTL is set"))
	}
	if cfg.PaymentMaxRetries < 1 {
		collect(errors.New("PAYMENT_MAX_RETRIES must be at least 1"))
	}

	if len(errs) > 0 {
		return nil, loaded, fmt.Errorf("load config: %w", errors.Join(errs...))
	}
	return cfg, loaded, nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseFloat(key string, def float64, errs []error) (float64, []error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, errs
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return v, errs
}

func parseDuration(key string, def time.Duration, errs []error) (time.Duration, []error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, errs
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s: %w", key, err))
	}
	return v, errs
}
