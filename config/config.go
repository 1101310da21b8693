package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port      string // default: 8080
	APIPrefix string // default: "/api/v1"

	// Database; empty keeps invoices in memory
	PostgresDSN string

	// Cache and rate limiting; empty disables both
	RedisAddr string

	// Upstreams
	GatewayURL      string        // default: "http://api-core:8001"
	PaymentsURL     string        // default: "http://payments-api:8001"
	UpstreamTimeout time.Duration // default: 10s

	// Pricing, USD per 1K tokens
	InputTokenPrice  float64
	OutputTokenPrice float64
	CachedTokenPrice float64

	// Invoicing
	InvoiceRateLimitPerMinute int64         // default: 60
	InvoiceDueDays            int           // default: 30
	OverdueSweepInterval      time.Duration // default: 1h, 0 disables

	// Logging
	LogLevel  string // default: "info"
	LogFormat string // "json" or "console"

	// Observability
	OTELExporterType     string // "stdout", "otlp" or "none"
	OTELExporterEndpoint string // default: "localhost:4317"
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		APIPrefix:            getEnv("API_PREFIX", "/api/v1"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		GatewayURL:           getEnv("GATEWAY_URL", "http://api-core:8001"),
		PaymentsURL:          getEnv("PAYMENTS_URL", "http://payments-api:8001"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.InputTokenPrice, err = getFloat("INPUT_TOKEN_PRICE", 0.003); err != nil {
		return nil, err
	}
	if cfg.OutputTokenPrice, err = getFloat("OUTPUT_TOKEN_PRICE", 0.015); err != nil {
		return nil, err
	}
	if cfg.CachedTokenPrice, err = getFloat("CACHED_TOKEN_PRICE", 0.00015); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.OverdueSweepInterval, err = getDuration("OVERDUE_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	limitStr := getEnv("INVOICE_RATE_LIMIT_PER_MINUTE", "60")
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid INVOICE_RATE_LIMIT_PER_MINUTE: %w", err)
	}
	cfg.InvoiceRateLimitPerMinute = limit

	dueStr := getEnv("INVOICE_DUE_DAYS", "30")
	due, err := strconv.Atoi(dueStr)
	if err != nil {
		return nil, fmt.Errorf("invalid INVOICE_DUE_DAYS: %w", err)
	}
	cfg.InvoiceDueDays = due

	// Validation
	if cfg.InputTokenPrice < 0 || cfg.OutputTokenPrice < 0 || cfg.CachedTokenPrice < 0 {
		return nil, fmt.Errorf("token prices must not be negative")
	}
	if cfg.InvoiceDueDays <= 0 {
		return nil, fmt.Errorf("INVOICE_DUE_DAYS must be positive")
	}
	if cfg.InvoiceRateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("INVOICE_RATE_LIMIT_PER_MINUTE must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
