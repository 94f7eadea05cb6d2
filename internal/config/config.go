package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the server settings, read from WELLPOINTS_* environment
// variables.
type Config struct {
	Port            string
	DBPath          string
	LogLevel        string
	LogFormat       string
	JWTSecret       string
	MetricsUser     string
	MetricsPassHash string
	Location        *time.Location
	LedgerBuffer    int
	RateLimit       float64
	RateBurst       int
}

// Load reads .env files (if present) and then the environment. Variables
// already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:            envOr("WELLPOINTS_PORT", "8080"),
		DBPath:          envOr("WELLPOINTS_DB_PATH", "wellpoints.db"),
		LogLevel:        envOr("WELLPOINTS_LOG_LEVEL", "info"),
		LogFormat:       envOr("WELLPOINTS_LOG_FORMAT", "text"),
		JWTSecret:       os.Getenv("WELLPOINTS_JWT_SECRET"),
		MetricsUser:     os.Getenv("WELLPOINTS_METRICS_USER"),
		MetricsPassHash: os.Getenv("WELLPOINTS_METRICS_PASS_HASH"),
	}

	tz := envOr("WELLPOINTS_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("WELLPOINTS_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.LedgerBuffer, err = envInt("WELLPOINTS_LEDGER_BUFFER", 256); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = envInt("WELLPOINTS_RATE_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = envFloat("WELLPOINTS_RATE_LIMIT", 1); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("WELLPOINTS_JWT_SECRET is required")
	}
	return cfg, nil
}

// MetricsEnabled reports whether basic auth credentials for /metrics are set.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsUser != "" && c.MetricsPassHash != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
