package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/flagx"
	"github.com/dmitrijs2005/chunkvault/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. It uses timex.Duration for interval fields, which allows parsing
// both string values such as "1s" and integer nanoseconds. After
// unmarshalling, set fields are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDriver   string         `json:"database_driver"`
	DatabaseDSN      string         `json:"database_dsn"`
	DefaultProvider  string         `json:"default_provider"`
	DefaultChunkSize int64          `json:"default_chunk_size"`
	RetryMaxAttempts int            `json:"retry_max_attempts"`
	RetryBaseBackoff timex.Duration `json:"retry_base_backoff"`
	RetryMaxBackoff  timex.Duration `json:"retry_max_backoff"`
	CallTimeout      timex.Duration `json:"call_timeout"`
	KeystoreSecret   string         `json:"keystore_secret"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path is taken from the -c or -config
// command-line flags; when neither is set, no file is loaded. Fields absent
// from the file keep their current values. The function panics when the file
// cannot be read or contains invalid JSON.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
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
	if c.RetryBaseBackoff.Duration > 0 {
		config.RetryBaseBackoff = time.Duration(c.RetryBaseBackoff.Duration)
	}
	if c.RetryMaxBackoff.Duration > 0 {
		config.RetryMaxBackoff = time.Duration(c.RetryMaxBackoff.Duration)
	}
	if c.CallTimeout.Duration > 0 {
		config.CallTimeout = time.Duration(c.CallTimeout.Duration)
	}
	if c.KeystoreSecret != "" {
		config.KeystoreSecret = c.KeystoreSecret
	}
}
