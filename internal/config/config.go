package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port   string
	APIKey string

	BirdeyeAPIKey string
	Chain         string

	RedisURL     string
	CacheTTLSecs int

	OracleRefreshSecs int
	OracleTTLSecs     int

	RetryMaxAttempts int

	StreamEnabled bool
	StreamWSURL   string
	TrackedMint   string
	DustThreshold float64
}

func Load() *Config {
	cfg := &Config{
		APIKey:        os.Getenv("API_KEY"),
		BirdeyeAPIKey: os.Getenv("BIRDEYE_API_KEY"),
		RedisURL:      os.Getenv("REDIS_URL"),
		StreamWSURL:   strings.TrimSpace(os.Getenv("STREAM_WS_URL")),
		TrackedMint:   strings.TrimSpace(os.Getenv("TRACKED_MINT")),
	}

	cfg.Port = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if cfg.BirdeyeAPIKey == "" {
		log.Println("Warning: BIRDEYE_API_KEY not set, Birdeye endpoints will be skipped in the fallback chain")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, using the in-process cache")
	}

	cfg.Chain = strings.ToLower(strings.TrimSpace(os.Getenv("CHAIN")))
	if cfg.Chain == "" {
		cfg.Chain = "solana"
	}

	cfg.CacheTTLSecs = 45
	if v := strings.TrimSpace(os.Getenv("CACHE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSecs = n
		}
	}

	cfg.OracleRefreshSecs = 60
	if v := strings.TrimSpace(os.Getenv("ORACLE_REFRESH_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OracleRefreshSecs = n
		}
	}

	cfg.OracleTTLSecs = 300
	if v := strings.TrimSpace(os.Getenv("ORACLE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OracleTTLSecs = n
		}
	}

	cfg.RetryMaxAttempts = 3
	if v := strings.TrimSpace(os.Getenv("RETRY_MAX_ATTEMPTS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10 {
			cfg.RetryMaxAttempts = n
		}
	}

	cfg.StreamEnabled = strings.EqualFold(strings.TrimSpace(os.Getenv("STREAM_ENABLED")), "true")
	if cfg.StreamEnabled && (cfg.StreamWSURL == "" || cfg.TrackedMint == "") {
		log.Println("Warning: STREAM_ENABLED requires STREAM_WS_URL and TRACKED_MINT, stream disabled")
		cfg.StreamEnabled = false
	}

	cfg.DustThreshold = 0
	if v := strings.TrimSpace(os.Getenv("DUST_THRESHOLD")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			cfg.DustThreshold = n
		}
	}

	return cfg
}
