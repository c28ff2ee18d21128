// Package config reads service configuration from AEROBAZA_* environment
// variables with production-safe defaults.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything cmd/api needs to wire the pipeline.
type Config struct {
	Addr  string
	PGDSN string

	// Independent signing secrets: rotating one credential kind never
	// invalidates the other.
	SessionSecret string
	BillingSecret string

	SessionTTL time.Duration
	StepUpTTL  time.Duration

	// Global per-IP fixed window applied by the middleware chain.
	RateWindow time.Duration
	RateMax    int

	MaxBodyBytes  int64
	SecureCookies bool
}

// FromEnv builds the configuration, failing when a signing secret is absent.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          envString("AEROBAZA_ADDR", ":8080"),
		PGDSN:         os.Getenv("AEROBAZA_PG_DSN"),
		SessionSecret: strings.TrimSpace(os.Getenv("AEROBAZA_AUTH_SECRET")),
		BillingSecret: strings.TrimSpace(os.Getenv("AEROBAZA_BILLING_SECRET")),
		SessionTTL:    envDuration("AEROBAZA_SESSION_TTL", 7*24*time.Hour),
		StepUpTTL:     envDuration("AEROBAZA_STEPUP_TTL", 30*time.Minute),
		RateWindow:    envDuration("AEROBAZA_RATE_WINDOW", time.Minute),
		RateMax:       envInt("AEROBAZA_RATE_MAX", 120),
		MaxBodyBytes:  int64(envInt("AEROBAZA_MAX_BODY_BYTES", 1<<20)),
		SecureCookies: envBool("AEROBAZA_SECURE_COOKIES", true),
	}
	if cfg.SessionSecret == "" {
		return Config{}, errors.New("config: AEROBAZA_AUTH_SECRET is required")
	}
	if cfg.BillingSecret == "" {
		return Config{}, errors.New("config: AEROBAZA_BILLING_SECRET is required")
	}
	if cfg.SessionSecret == cfg.BillingSecret {
		return Config{}, errors.New("config: session and billing secrets must differ")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
