package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port                   string `envconfig:"PORT" default:"8080"`
	AllowedOrigin          string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL            string `envconfig:"DATABASE_URL"`
	RedisAddr              string `envconfig:"REDIS_ADDR"`
	RedisPassword          string `envconfig:"REDIS_PASSWORD"`
	RedisDB                int    `envconfig:"REDIS_DB" default:"0"`
	AuthSecret             string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes  int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	ReportCacheTTLSeconds  int    `envconfig:"REPORT_CACHE_TTL_SECONDS" default:"30"`
	SuggestionCacheSeconds int    `envconfig:"SUGGESTION_CACHE_TTL_SECONDS" default:"20"`
	CheckoutTimeoutSeconds int    `envconfig:"CHECKOUT_TIMEOUT_SECONDS" default:"15"`
	DraftTTLHours          int    `envconfig:"DRAFT_TTL_HOURS" default:"72"`
	PhoneRegion            string `envconfig:"PHONE_REGION" default:"IN"`
	Timezone               string `envconfig:"TIMEZONE" default:"Asia/Kolkata"`
	LogLevel               string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the environment. Non-positive durations fall back to defaults so
// a typo cannot disable a timeout.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 30
	}
	if cfg.SuggestionCacheSeconds < 1 {
		cfg.SuggestionCacheSeconds = 20
	}
	if cfg.CheckoutTimeoutSeconds < 1 {
		cfg.CheckoutTimeoutSeconds = 15
	}
	if cfg.DraftTTLHours < 1 {
		cfg.DraftTTLHours = 72
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the business timezone used for day boundaries and date search.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) CheckoutTimeout() time.Duration {
	return time.Duration(c.CheckoutTimeoutSeconds) * time.Second
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) SuggestionCacheTTL() time.Duration {
	return time.Duration(c.SuggestionCacheSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) DraftTTL() time.Duration {
	return time.Duration(c.DraftTTLHours) * time.Hour
}
