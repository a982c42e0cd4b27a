package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any env vars that would override defaults
	envVars := []string{
		"SERVICE_NAME", "ENV", "LOG_LEVEL", "ENRICHER_PORT",
		"DATABASE_URL", "NATS_URL", "REDIS_ADDR", "REDIS_DB",
		"FLUSH_BATCH_SIZE", "PRODUCT_FILE", "RUN_TTL",
		"HTTP_READ_TIMEOUT", "HTTP_BODY_LIMIT", "PG_MAX_CONNS",
	}
	for _, key := range envVars {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ServiceName != "trade-enricher" {
		t.Errorf("expected ServiceName=trade-enricher, got %s", cfg.ServiceName)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %s", cfg.Env)
	}
	if cfg.Port != 9040 {
		t.Errorf("expected Port=9040, got %d", cfg.Port)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("expected NATSURL=nats://localhost:4222, got %s", cfg.NATSURL)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected RedisAddr=localhost:6379, got %s", cfg.RedisAddr)
	}
	if cfg.FlushBatchSize != 1000 {
		t.Errorf("expected FlushBatchSize=1000, got %d", cfg.FlushBatchSize)
	}
	if cfg.BootstrapProductFile != "" {
		t.Errorf("expected empty BootstrapProductFile, got %s", cfg.BootstrapProductFile)
	}
	if cfg.RunTTL != 24*time.Hour {
		t.Errorf("expected RunTTL=24h, got %v", cfg.RunTTL)
	}
	if cfg.HTTPReadTimeout != 10*time.Second {
		t.Errorf("expected HTTPReadTimeout=10s, got %v", cfg.HTTPReadTimeout)
	}
	if cfg.PGMaxConns != 10 {
		t.Errorf("expected PGMaxConns=10, got %d", cfg.PGMaxConns)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENRICHER_PORT", "8080")
	t.Setenv("FLUSH_BATCH_SIZE", "250")
	t.Setenv("PRODUCT_FILE", "/data/product.csv")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RUN_TTL", "1h")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("expected Port=8080, got %d", cfg.Port)
	}
	if cfg.FlushBatchSize != 250 {
		t.Errorf("expected FlushBatchSize=250, got %d", cfg.FlushBatchSize)
	}
	if cfg.BootstrapProductFile != "/data/product.csv" {
		t.Errorf("expected BootstrapProductFile=/data/product.csv, got %s", cfg.BootstrapProductFile)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %s", cfg.LogLevel)
	}
	if cfg.RunTTL != time.Hour {
		t.Errorf("expected RunTTL=1h, got %v", cfg.RunTTL)
	}
}
