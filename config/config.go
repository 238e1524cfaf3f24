// Package config reads the startup configuration from the environment.
// Nothing here is mutable at runtime.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full configuration surface, populated from HERMNET_*
// environment variables.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":9000"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Backends. With neither set everything runs in memory; with both,
	// Redis carries the security state and Postgres the durable records.
	RedisURL    string `envconfig:"REDIS_URL" default:""`
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	// AnonymizerSecret is the base value mixed into the daily client
	// fingerprint salt.
	AnonymizerSecret string `envconfig:"ANONYMIZER_SECRET" default:"hermnet-secret-salt"`

	ChallengeTTL  time.Duration `envconfig:"CHALLENGE_TTL" default:"30s"`
	TokenLifetime time.Duration `envconfig:"TOKEN_LIFETIME" default:"15m"`

	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"60"`

	MailboxRetention time.Duration `envconfig:"MAILBOX_RETENTION" default:"24h"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("hermnet", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
