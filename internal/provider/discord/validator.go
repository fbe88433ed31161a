package discord

import (
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
)

var (
	// bot token: three base64url-ish segments joined by dots
	botTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{6,}\.[A-Za-z0-9_-]{27,}$`)

	// Discord snowflake ids are 17-19 digits
	snowflakePattern = regexp.MustCompile(`^\d{17,19}$`)
)

// Validator performs the static (offline) layers of config validation:
// schema, field formats and chunk-size business rules. The live API check
// lives in Provider.ValidateConfig.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns ErrInvalidConfig describing the first violation found.
func (v *Validator) Validate() error {
	if v.cfg.BotToken == "" {
		return fmt.Errorf("%w: bot_token is required", provider.ErrInvalidConfig)
	}
	if v.cfg.ServerID == "" {
		return fmt.Errorf("%w: server_id is required", provider.ErrInvalidConfig)
	}
	if v.cfg.ChannelID == "" {
		return fmt.Errorf("%w: channel_id is required", provider.ErrInvalidConfig)
	}

	if !botTokenPattern.MatchString(v.cfg.BotToken) {
		return fmt.Errorf("%w: bot_token format is invalid", provider.ErrInvalidConfig)
	}
	if !snowflakePattern.MatchString(v.cfg.ServerID) {
		return fmt.Errorf("%w: server_id is not a valid snowflake", provider.ErrInvalidConfig)
	}
	if !snowflakePattern.MatchString(v.cfg.ChannelID) {
		return fmt.Errorf("%w: channel_id is not a valid snowflake", provider.ErrInvalidConfig)
	}

	if v.cfg.MaxChunkSize < minChunkSize {
		return fmt.Errorf("%w: max_chunk_size %d below minimum %d",
			provider.ErrInvalidConfig, v.cfg.MaxChunkSize, minChunkSize)
	}
	if v.cfg.MaxChunkSize+cryptox.Overhead > hardMaxChunkSize {
		return fmt.Errorf("%w: max_chunk_size %d leaves no headroom under the %d platform limit",
			provider.ErrInvalidConfig, v.cfg.MaxChunkSize, hardMaxChunkSize)
	}

	return nil
}
