package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL        string
	RedisURL           string // empty: in-process cache only
	NATSURL            string // empty: in-process analytics queue only
	Port               string
	BaseURL            string // Base URL for generating short URLs (e.g., http://localhost:8080)
	CORSAllowedOrigins []string

	CodeOffset uint64

	CacheTTL      time.Duration
	CacheTimeout  time.Duration
	LocalCacheTTL time.Duration

	AnalyticsWorkers       int
	AnalyticsQueueSize     int
	AnalyticsBatchSize     int
	AnalyticsFlushInterval time.Duration

	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// fileConfig is the optional YAML file layout. Every field is also settable
// from the environment, which wins.
type fileConfig struct {
	Server struct {
		Port                   string   `yaml:"port"`
		BaseURL                string   `yaml:"base_url"`
		CORSAllowedOrigins     []string `yaml:"cors_allowed_origins"`
		ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Shortener struct {
		CodeOffset uint64 `yaml:"code_offset"`
	} `yaml:"shortener"`

	Cache struct {
		TTLSeconds      int `yaml:"ttl_seconds"`
		TimeoutMS       int `yaml:"timeout_ms"`
		LocalTTLSeconds int `yaml:"local_ttl_seconds"`
	} `yaml:"cache"`

	Analytics struct {
		Workers         int `yaml:"workers"`
		QueueSize       int `yaml:"queue_size"`
		BatchSize       int `yaml:"batch_size"`
		FlushIntervalMS int `yaml:"flush_interval_ms"`
	} `yaml:"analytics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaults() *fileConfig {
	fc := &fileConfig{}
	fc.Server.Port = "8080"
	fc.Server.CORSAllowedOrigins = []string{"*"}
	fc.Server.ShutdownTimeoutSeconds = 10
	fc.Database.URL = "file:shortener.db"
	fc.Shortener.CodeOffset = 10000
	fc.Cache.TTLSeconds = 3600
	fc.Cache.TimeoutMS = 250
	fc.Cache.LocalTTLSeconds = 300
	fc.Analytics.Workers = 10
	fc.Analytics.QueueSize = 10000
	fc.Analytics.BatchSize = 100
	fc.Analytics.FlushIntervalMS = 1000
	fc.Log.Level = "info"
	fc.Log.Format = "json"
	return fc
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	fc := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(fc); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:            fc.Database.URL,
		RedisURL:               fc.Redis.URL,
		NATSURL:                fc.NATS.URL,
		Port:                   fc.Server.Port,
		BaseURL:                fc.Server.BaseURL,
		CORSAllowedOrigins:     fc.Server.CORSAllowedOrigins,
		CodeOffset:             fc.Shortener.CodeOffset,
		CacheTTL:               time.Duration(fc.Cache.TTLSeconds) * time.Second,
		CacheTimeout:           time.Duration(fc.Cache.TimeoutMS) * time.Millisecond,
		LocalCacheTTL:          time.Duration(fc.Cache.LocalTTLSeconds) * time.Second,
		AnalyticsWorkers:       fc.Analytics.Workers,
		AnalyticsQueueSize:     fc.Analytics.QueueSize,
		AnalyticsBatchSize:     fc.Analytics.BatchSize,
		AnalyticsFlushInterval: time.Duration(fc.Analytics.FlushIntervalMS) * time.Millisecond,
		ShutdownTimeout:        time.Duration(fc.Server.ShutdownTimeoutSeconds) * time.Second,
		LogLevel:               fc.Log.Level,
		LogFormat:              fc.Log.Format,
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(fc *fileConfig) error {
	fc.Database.URL = getEnv("DATABASE_URL", fc.Database.URL)
	fc.Redis.URL = getEnv("REDIS_URL", fc.Redis.URL)
	fc.NATS.URL = getEnv("NATS_URL", fc.NATS.URL)
	fc.Server.Port = getEnv("PORT", fc.Server.Port)
	fc.Server.BaseURL = getEnv("BASE_URL", fc.Server.BaseURL)
	fc.Log.Level = getEnv("LOG_LEVEL", fc.Log.Level)
	fc.Log.Format = getEnv("LOG_FORMAT", fc.Log.Format)

	if origins, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		fc.Server.CORSAllowedOrigins = splitList(origins)
	}

	offset, err := getEnvUint("CODE_OFFSET", fc.Shortener.CodeOffset)
	if err != nil {
		return err
	}
	fc.Shortener.CodeOffset = offset

	ints := []struct {
		key string
		dst *int
	}{
		{"CACHE_TTL_SECONDS", &fc.Cache.TTLSeconds},
		{"CACHE_TIMEOUT_MS", &fc.Cache.TimeoutMS},
		{"LOCAL_CACHE_TTL_SECONDS", &fc.Cache.LocalTTLSeconds},
		{"ANALYTICS_WORKERS", &fc.Analytics.Workers},
		{"ANALYTICS_QUEUE_SIZE", &fc.Analytics.QueueSize},
		{"ANALYTICS_BATCH_SIZE", &fc.Analytics.BatchSize},
		{"ANALYTICS_FLUSH_INTERVAL_MS", &fc.Analytics.FlushIntervalMS},
		{"SHUTDOWN_TIMEOUT_SECONDS", &fc.Server.ShutdownTimeoutSeconds},
	}
	for _, e := range ints {
		v, err := getEnvInt(e.key, *e.dst)
		if err != nil {
			return err
		}
		*e.dst = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	positive := []struct {
		name  string
		value int64
	}{
		{"CACHE_TTL_SECONDS", int64(c.CacheTTL)},
		{"CACHE_TIMEOUT_MS", int64(c.CacheTimeout)},
		{"LOCAL_CACHE_TTL_SECONDS", int64(c.LocalCacheTTL)},
		{"ANALYTICS_WORKERS", int64(c.AnalyticsWorkers)},
		{"ANALYTICS_QUEUE_SIZE", int64(c.AnalyticsQueueSize)},
		{"ANALYTICS_BATCH_SIZE", int64(c.AnalyticsBatchSize)},
		{"ANALYTICS_FLUSH_INTERVAL_MS", int64(c.AnalyticsFlushInterval)},
		{"SHUTDOWN_TIMEOUT_SECONDS", int64(c.ShutdownTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvUint(key string, fallback uint64) (uint64, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
