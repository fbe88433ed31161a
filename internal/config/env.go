package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors Config for the environment overlay. Every variable is
// optional; unset variables keep the value from the previous layers.
type envConfig struct {
	DatabaseDriver   string        `env:"CHUNKVAULT_DB_DRIVER"`
	DatabaseDSN      string        `env:"CHUNKVAULT_DB_DSN"`
	DefaultProvider  string        `env:"CHUNKVAULT_PROVIDER"`
	DefaultChunkSize int64         `env:"CHUNKVAULT_CHUNK_SIZE"`
	RetryMaxAttempts int           `env:"CHUNKVAULT_RETRY_MAX_ATTEMPTS"`
	RetryBaseBackoff time.Duration `env:"CHUNKVAULT_RETRY_BASE_BACKOFF"`
	RetryMaxBackoff  time.Duration `env:"CHUNKVAULT_RETRY_MAX_BACKOFF"`
	CallTimeout      time.Duration `env:"CHUNKVAULT_CALL_TIMEOUT"`
	KeystoreSecret   string        `env:"CHUNKVAULT_SECRET"`
}

// parseEnv overlays configuration values from environment variables.
func parseEnv(config *Config) {
	c := envConfig{}
	if err := env.Parse(&c); err != nil {
		panic(err)
	}

	if c.DatabaseDriver != "" {
		config.DatabaseDriver = c.DatabaseDriver
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.DefaultProvider != "" {
		config.DefaultProvider = c.DefaultProvider
	}
	if c.DefaultChunkSize > 0 {
		config.DefaultChunkSize = c.DefaultChunkSize
	}
	if c.RetryMaxAttempts > 0 {
		config.RetryMaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryBaseBackoff > 0 {
		config.RetryBaseBackoff = c.RetryBaseBackoff
	}
	if c.RetryMaxBackoff > 0 {
		config.RetryMaxBackoff = c.RetryMaxBackoff
	}
	if c.CallTimeout > 0 {
		config.CallTimeout = c.CallTimeout
	}
	if c.KeystoreSecret != "" {
		config.KeystoreSecret = c.KeystoreSecret
	}
}
