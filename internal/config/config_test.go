package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "SERVER_PORT", "JWT_SECRET", "ALLOWED_ORIGINS", "REDIS_URL", "LOG_LEVEL",
		"DB_LOCK_TIMEOUT", "CODE_LENGTH", "CODE_MAX_ATTEMPTS", "IDEMPOTENCY_TTL", "CONFIG_FILE",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/pharmacy")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.DBLockTimeout)
	assert.Equal(t, 10, cfg.CodeLength)
	assert.Equal(t, 20, cfg.CodeMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.Origins())
	assert.Empty(t, cfg.OTelEndpoint, "export is off unless a collector is named")
	assert.Equal(t, "pharmacy-retail", cfg.OTelServiceName)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/pharmacy")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_LOCK_TIMEOUT", "750ms")
	t.Setenv("CODE_LENGTH", "12")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com,")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel-collector:4318")
	t.Setenv("OTEL_SERVICE_NAME", "pharmacy-retail-eu")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 750*time.Millisecond, cfg.DBLockTimeout)
	assert.Equal(t, 12, cfg.CodeLength)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.Origins())
	assert.Equal(t, "http://otel-collector:4318", cfg.OTelEndpoint)
	assert.Equal(t, "pharmacy-retail-eu", cfg.OTelServiceName)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pharmacy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database_url: postgres://file/pharmacy\njwt_secret: from-file\nserver_port: \"7000\"\ncode_max_attempts: 5\n",
	), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/pharmacy", cfg.DatabaseURL)
	assert.Equal(t, 5, cfg.CodeMaxAttempts)
	assert.Equal(t, "7001", cfg.ServerPort, "environment wins over the file")

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{DatabaseURL: "postgres://x", JWTSecret: "s", CodeLength: 10, CodeMaxAttempts: 20}
	require.NoError(t, valid.Validate())

	tests := map[string]func(*Config){
		"missing database url": func(c *Config) { c.DatabaseURL = "" },
		"missing jwt secret":   func(c *Config) { c.JWTSecret = "" },
		"negative lock":        func(c *Config) { c.DBLockTimeout = -time.Second },
		"code too short":       func(c *Config) { c.CodeLength = 3 },
		"code too long":        func(c *Config) { c.CodeLength = 33 },
		"no attempts":          func(c *Config) { c.CodeMaxAttempts = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
