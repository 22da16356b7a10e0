package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the server. Values come from, in
// increasing precedence: defaults, the optional file named by CONFIG_FILE,
// and environment variables (a .env file in the working directory is loaded
// into the environment first).
type Config struct {
	DatabaseURL     string        `mapstructure:"database_url"`
	ServerPort      string        `mapstructure:"server_port"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AllowedOrigins  string        `mapstructure:"allowed_origins"`
	RedisURL        string        `mapstructure:"redis_url"`
	LogLevel        string        `mapstructure:"log_level"`
	DBLockTimeout   time.Duration `mapstructure:"db_lock_timeout"`
	CodeLength      int           `mapstructure:"code_length"`
	CodeMaxAttempts int           `mapstructure:"code_max_attempts"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	// OTelEndpoint is the OTLP/HTTP collector; empty disables trace and metric export.
	OTelEndpoint    string        `mapstructure:"otel_exporter_otlp_endpoint"`
	OTelServiceName string        `mapstructure:"otel_service_name"`
}

var defaults = map[string]any{
	"database_url":      "",
	"server_port":       "8080",
	"jwt_secret":        "",
	"allowed_origins":   "",
	"redis_url":         "",
	"log_level":         "info",
	"db_lock_timeout":   "5s",
	"code_length":       10,
	"code_max_attempts": 20,
	"idempotency_ttl":   "24h",

	"otel_exporter_otlp_endpoint": "",
	"otel_service_name":           "pharmacy-retail",
}

// Load reads the configuration and validates required settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBLockTimeout < 0 {
		return errors.New("DB_LOCK_TIMEOUT must not be negative")
	}
	if c.CodeLength < 4 || c.CodeLength > 32 {
		return fmt.Errorf("CODE_LENGTH must be between 4 and 32, got %d", c.CodeLength)
	}
	if c.CodeMaxAttempts < 1 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS must be positive, got %d", c.CodeMaxAttempts)
	}
	return nil
}

// Origins splits AllowedOrigins on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
