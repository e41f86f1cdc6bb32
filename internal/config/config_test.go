package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
	if cfg.Cache.LocalCapacity != 1000 {
		t.Errorf("unexpected local capacity: %d", cfg.Cache.LocalCapacity)
	}
	if cfg.Cache.DefaultTTL != 300*time.Second {
		t.Errorf("unexpected default ttl: %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Query.MaxLimit != 100 {
		t.Errorf("unexpected max limit: %d", cfg.Query.MaxLimit)
	}
	if cfg.Query.SlowThreshold != time.Second {
		t.Errorf("unexpected slow threshold: %v", cfg.Query.SlowThreshold)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"redis": {"addr": "redis.internal:6380", "db": 3}, "query": {"max_limit": 50}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6380" || cfg.Redis.DB != 3 {
		t.Errorf("redis config not applied: %+v", cfg.Redis)
	}
	if cfg.Query.MaxLimit != 50 {
		t.Errorf("query config not applied: %+v", cfg.Query)
	}
	// Untouched fields keep their defaults.
	if cfg.Cache.LocalCapacity != 1000 {
		t.Errorf("defaults lost on partial config: %+v", cfg.Cache)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "redis:\n  addr: redis.internal:6380\ndaemon:\n  log_format: json\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("yaml redis config not applied: %+v", cfg.Redis)
	}
	if cfg.Daemon.LogFormat != "json" {
		t.Errorf("yaml daemon config not applied: %+v", cfg.Daemon)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CACHEFRONT_REDIS_ADDR", "env-redis:6379")
	t.Setenv("CACHEFRONT_REDIS_DB", "7")
	t.Setenv("CACHEFRONT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Redis.Addr != "env-redis:6379" {
		t.Errorf("env addr not applied: %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 7 {
		t.Errorf("env db not applied: %d", cfg.Redis.DB)
	}
	if cfg.Daemon.LogLevel != "debug" {
		t.Errorf("env log level not applied: %s", cfg.Daemon.LogLevel)
	}
}
