// Package config handles runtime configuration: defaults, optional JSON file
// overlay, environment variables, and command-line flags, in that order of
// precedence (later layers win).
package config

import "time"

// Config holds runtime settings for the vault CLI.
//
// Fields:
//   - DatabaseDriver: "sqlite" or "pgx".
//   - DatabaseDSN: SQLite path or PostgreSQL DSN.
//   - DefaultProvider: name of the provider configuration used when the
//     command line does not pick one.
//   - DefaultChunkSize: plaintext chunk size in bytes when not requested
//     explicitly; clamped to the provider's MaxChunkSize at upload time.
//   - RetryMaxAttempts / RetryBaseBackoff / RetryMaxBackoff: storage retry
//     policy for rate-limited and transient errors.
//   - CallTimeout: per storage call deadline.
//   - KeystoreSecret: passphrase the key-encryption key is derived from.
//     Do not use the development default for real data.
type Config struct {
	DatabaseDriver   string
	DatabaseDSN      string
	DefaultProvider  string
	DefaultChunkSize int64
	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	RetryMaxBackoff  time.Duration
	CallTimeout      time.Duration
	KeystoreSecret   string
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: The keystore secret must be overridden for any real use.
func (c *Config) LoadDefaults() {
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "chunkvault.db"
	c.DefaultProvider = ""
	c.DefaultChunkSize = 8 * 1024 * 1024
	c.RetryMaxAttempts = 4
	c.RetryBaseBackoff = 500 * time.Millisecond
	c.RetryMaxBackoff = 8 * time.Second
	c.CallTimeout = 2 * time.Minute
	c.KeystoreSecret = "devsecret"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, environment variables and finally
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
