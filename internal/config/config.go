package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string        `json:"addr" yaml:"addr"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	OpTimeout time.Duration `json:"op_timeout" yaml:"op_timeout"`
}

// CacheConfig holds the two-tier cache settings
type CacheConfig struct {
	DefaultTTL    time.Duration `json:"default_ttl" yaml:"default_ttl"`
	LocalCapacity int           `json:"local_capacity" yaml:"local_capacity"`
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// QueryConfig holds query-optimizer settings
type QueryConfig struct {
	MaxLimit      int           `json:"max_limit" yaml:"max_limit"`
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold"`
	CacheTTL      time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// PostgresConfig holds the backing store settings
type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr  string `json:"http_addr" yaml:"http_addr"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Query     QueryConfig     `json:"query" yaml:"query"`
	Postgres  PostgresConfig  `json:"postgres" yaml:"postgres"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Daemon    DaemonConfig    `json:"daemon" yaml:"daemon"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Password:  "",
			DB:        0,
			KeyPrefix: "cachefront:",
			OpTimeout: 250 * time.Millisecond,
		},
		Cache: CacheConfig{
			DefaultTTL:    300 * time.Second,
			LocalCapacity: 1000,
			SweepInterval: 60 * time.Second,
		},
		Query: QueryConfig{
			MaxLimit:      100,
			SlowThreshold: time.Second,
			CacheTTL:      300 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4318",
			SampleRate: 1.0,
		},
		Daemon: DaemonConfig{
			HTTPAddr:  ":8080",
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by the
// file extension (.yaml/.yml parse as YAML, anything else as JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CACHEFRONT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CACHEFRONT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CACHEFRONT_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("CACHEFRONT_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CACHEFRONT_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("CACHEFRONT_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("CACHEFRONT_LOG_FORMAT"); v != "" {
		cfg.Daemon.LogFormat = v
	}
	if v := os.Getenv("CACHEFRONT_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}
