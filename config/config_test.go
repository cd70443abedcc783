package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "DATABASE_URL", "REDIS_URL", "NATS_URL", "PORT", "BASE_URL",
	"CORS_ALLOWED_ORIGINS", "CODE_OFFSET", "CACHE_TTL_SECONDS", "CACHE_TIMEOUT_MS",
	"LOCAL_CACHE_TTL_SECONDS", "ANALYTICS_WORKERS", "ANALYTICS_QUEUE_SIZE",
	"ANALYTICS_BATCH_SIZE", "ANALYTICS_FLUSH_INTERVAL_MS", "SHUTDOWN_TIMEOUT_SECONDS",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv unsets every key Load reads; t.Setenv restores them afterwards
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file:shortener.db", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, uint64(10000), cfg.CodeOffset)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.CacheTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LocalCacheTTL)
	assert.Equal(t, 10, cfg.AnalyticsWorkers)
	assert.Equal(t, 10000, cfg.AnalyticsQueueSize)
	assert.Equal(t, 100, cfg.AnalyticsBatchSize)
	assert.Equal(t, time.Second, cfg.AnalyticsFlushInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/links")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "9090")
	t.Setenv("BASE_URL", "https://sho.rt/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CODE_OFFSET", "0")
	t.Setenv("ANALYTICS_WORKERS", "3")
	t.Setenv("CACHE_TIMEOUT_MS", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost/links", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "https://sho.rt", cfg.BaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, uint64(0), cfg.CodeOffset)
	assert.Equal(t, 3, cfg.AnalyticsWorkers)
	assert.Equal(t, 50*time.Millisecond, cfg.CacheTimeout)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7000"
  cors_allowed_origins: ["https://dash.example"]
redis:
  url: "localhost:6380"
shortener:
  code_offset: 500
analytics:
  batch_size: 25
log:
  level: debug
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "http://localhost:7000", cfg.BaseURL)
	assert.Equal(t, []string{"https://dash.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "localhost:6380", cfg.RedisURL)
	assert.Equal(t, uint64(500), cfg.CodeOffset)
	assert.Equal(t, 25, cfg.AnalyticsBatchSize)
	assert.Equal(t, 10, cfg.AnalyticsWorkers)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric worker count", map[string]string{"ANALYTICS_WORKERS": "many"}},
		{"negative offset", map[string]string{"CODE_OFFSET": "-1"}},
		{"zero batch size", map[string]string{"ANALYTICS_BATCH_SIZE": "0"}},
		{"negative ttl", map[string]string{"CACHE_TTL_SECONDS": "-5"}},
		{"empty database url", map[string]string{"DATABASE_URL": ""}},
		{"missing config file", map[string]string{"CONFIG_FILE": "/nonexistent/config.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
