package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	JWTSecret     string   `mapstructure:"JWT_SECRET"`
	JWTTTLMinutes int      `mapstructure:"JWT_TTL_MINUTES"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	// Lookup throttling for the returning-patient flow.
	LookupMaxAttempts   int `mapstructure:"LOOKUP_MAX_ATTEMPTS"`
	LookupWindowMinutes int `mapstructure:"LOOKUP_WINDOW_MINUTES"`

	// Pre-fill session lifetime.
	SessionTTLMinutes int `mapstructure:"SESSION_TTL_MINUTES"`

	// Document uploads.
	DocumentDir      string `mapstructure:"DOCUMENT_DIR"`
	DocumentMaxBytes int64  `mapstructure:"DOCUMENT_MAX_BYTES"`

	// Transport-level protection for the public surface.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_TTL_MINUTES", 480)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOOKUP_MAX_ATTEMPTS", 5)
	v.SetDefault("LOOKUP_WINDOW_MINUTES", 15)
	v.SetDefault("SESSION_TTL_MINUTES", 30)
	v.SetDefault("DOCUMENT_DIR", "uploads")
	v.SetDefault("DOCUMENT_MAX_BYTES", 10*1024*1024)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_TTL_MINUTES")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("LOOKUP_MAX_ATTEMPTS")
	v.BindEnv("LOOKUP_WINDOW_MINUTES")
	v.BindEnv("SESSION_TTL_MINUTES")
	v.BindEnv("DOCUMENT_DIR")
	v.BindEnv("DOCUMENT_MAX_BYTES")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a
// JWT secret is mandatory so that staff sessions cannot be forged, and the
// throttling knobs must be positive.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}
	if c.LookupMaxAttempts <= 0 {
		return fmt.Errorf("LOOKUP_MAX_ATTEMPTS must be positive, got %d", c.LookupMaxAttempts)
	}
	if c.LookupWindowMinutes <= 0 {
		return fmt.Errorf("LOOKUP_WINDOW_MINUTES must be positive, got %d", c.LookupWindowMinutes)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive, got %d", c.SessionTTLMinutes)
	}
	if c.DocumentMaxBytes <= 0 {
		return fmt.Errorf("DOCUMENT_MAX_BYTES must be positive, got %d", c.DocumentMaxBytes)
	}
	return nil
}
