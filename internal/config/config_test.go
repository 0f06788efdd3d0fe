package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("BIRDEYE_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("CHAIN", "")
	t.Setenv("CACHE_TTL_SECS", "")
	t.Setenv("STREAM_ENABLED", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Chain != "solana" {
		t.Fatalf("expected default chain solana, got %s", cfg.Chain)
	}
	if cfg.CacheTTLSecs != 45 || cfg.OracleRefreshSecs != 60 || cfg.OracleTTLSecs != 300 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.StreamEnabled {
		t.Fatal("stream should be disabled by default")
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BIRDEYE_API_KEY", "be-key")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("CHAIN", "Solana")
	t.Setenv("CACHE_TTL_SECS", "120")
	t.Setenv("STREAM_ENABLED", "true")
	t.Setenv("STREAM_WS_URL", "wss://rpc.example/ws")
	t.Setenv("TRACKED_MINT", "Mint111")
	t.Setenv("DUST_THRESHOLD", "0.01")

	cfg := Load()
	if cfg.Port != "9090" || cfg.BirdeyeAPIKey != "be-key" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Chain != "solana" {
		t.Fatalf("chain should be lowercased, got %s", cfg.Chain)
	}
	if cfg.CacheTTLSecs != 120 {
		t.Fatalf("expected cache ttl 120, got %d", cfg.CacheTTLSecs)
	}
	if !cfg.StreamEnabled || cfg.StreamWSURL != "wss://rpc.example/ws" || cfg.TrackedMint != "Mint111" {
		t.Fatalf("stream config not picked up: %+v", cfg)
	}
	if cfg.DustThreshold != 0.01 {
		t.Fatalf("expected dust threshold 0.01, got %v", cfg.DustThreshold)
	}

	t.Setenv("CACHE_TTL_SECS", "bad")
	cfg = Load()
	if cfg.CacheTTLSecs != 45 {
		t.Fatalf("invalid ttl should fall back to default, got %d", cfg.CacheTTLSecs)
	}
}

func TestLoadStreamRequiresURLAndMint(t *testing.T) {
	t.Setenv("STREAM_ENABLED", "true")
	t.Setenv("STREAM_WS_URL", "")
	t.Setenv("TRACKED_MINT", "Mint111")

	cfg := Load()
	if cfg.StreamEnabled {
		t.Fatal("stream should be disabled without a websocket url")
	}
}
