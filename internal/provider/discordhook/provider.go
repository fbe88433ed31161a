// Package discordhook implements the storage provider contract over a Discord
// webhook: no bot token required, chunks are posted as attachments by the
// webhook itself. Files share the webhook's channel instead of getting a
// dedicated thread; a bookmark message marks where an upload began.
package discordhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/netx"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
)

const (
	Platform = "discord-webhook"

	hardMaxChunkSize    = 10 * 1024 * 1024
	defaultMaxChunkSize = 8 * 1024 * 1024
	minChunkSize        = 1024

	transferTimeout   = 60 * time.Second
	rateLimitAttempts = 5
	defaultCooldown   = time.Second

	attachmentFieldName = "files[0]"
	attachmentFilename  = "chunk.enc"
)

func init() {
	provider.Register(Platform, func(config json.RawMessage, skipValidation bool) (provider.Provider, error) {
		return New(config, skipValidation)
	})
}

// Config is the platform-specific configuration payload.
type Config struct {
	WebhookURL   string `json:"webhook_url"`
	MaxChunkSize int    `json:"max_chunk_size,omitempty"`
}

type Provider struct {
	cfg    Config
	client *http.Client
}

// New parses and statically validates the config, then (unless
// skipValidation) verifies the webhook is reachable.
func New(config json.RawMessage, skipValidation bool) (*Provider, error) {
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidConfig, err)
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = defaultMaxChunkSize
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: transferTimeout},
	}

	if !skipValidation {
		ctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
		defer cancel()
		if err := p.ValidateConfig(ctx); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func validate(cfg Config) error {
	if cfg.WebhookURL == "" {
		return fmt.Errorf("%w: webhook_url is required", provider.ErrInvalidConfig)
	}
	u, err := url.Parse(cfg.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !strings.Contains(u.Path, "/webhooks/") {
		return fmt.Errorf("%w: webhook_url is not a webhook endpoint", provider.ErrInvalidConfig)
	}
	if cfg.MaxChunkSize < minChunkSize {
		return fmt.Errorf("%w: max_chunk_size %d below minimum %d",
			provider.ErrInvalidConfig, cfg.MaxChunkSize, minChunkSize)
	}
	if cfg.MaxChunkSize+cryptox.Overhead > hardMaxChunkSize {
		return fmt.Errorf("%w: max_chunk_size %d leaves no headroom under the %d platform limit",
			provider.ErrInvalidConfig, cfg.MaxChunkSize, hardMaxChunkSize)
	}
	return nil
}

func (p *Provider) doWithCooldown(ctx context.Context, newReq func(ctx context.Context) (*http.Response, error)) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		resp, err := newReq(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", provider.ErrTransient, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w: read body: %v", provider.ErrTransient, readErr)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return body, nil
			}
			return nil, classify(resp.StatusCode, body)
		}

		if attempt >= rateLimitAttempts {
			return nil, fmt.Errorf("%w: gave up after %d attempts", provider.ErrRateLimited, attempt)
		}

		cooldown := netx.RetryAfterHint(resp, body, defaultCooldown)
		if err := netx.SleepContext(ctx, cooldown); err != nil {
			return nil, err
		}
	}
}

func classify(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", provider.ErrUnauthorized, status)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", provider.ErrNotFound, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", provider.ErrTransient, status)
	default:
		return fmt.Errorf("discord webhook: status %d: %s", status, body)
	}
}

// PrepareStorage posts a bookmark message via the webhook and records the
// webhook identity in the routing context. Later chunk operations address
// messages through /webhooks/{id}/{token}/messages/{message_id}.
func (p *Provider) PrepareStorage(ctx context.Context, meta provider.FileInfo) (provider.Context, error) {
	content := "Preparing for the upload of " + meta.Filename + "..."
	if len(content) > 1950 {
		content = content[:1950] + "..."
	}

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, err
	}

	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.WebhookURL+"?wait=true", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return p.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("bookmark message: %w", err)
	}

	var msg struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		WebhookID string `json:"webhook_id"`
	}
	if err := json.Unmarshal(body, &msg); err != nil || msg.ID == "" {
		return nil, fmt.Errorf("%w: unexpected bookmark response", provider.ErrTransient)
	}

	return provider.Context{
		"message_id": msg.ID,
		"channel_id": msg.ChannelID,
		"webhook_id": msg.WebhookID,
	}, nil
}

// UploadChunk posts the encrypted payload as a webhook message attachment.
func (p *Provider) UploadChunk(ctx context.Context, payload []byte, sctx provider.Context) (provider.ChunkRef, error) {
	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		return netx.PostMultipart(ctx, p.client, p.cfg.WebhookURL+"?wait=true", nil,
			attachmentFieldName, attachmentFilename, payload,
			map[string]string{"payload_json": "{}"})
	})
	if err != nil {
		return nil, fmt.Errorf("upload chunk: %w", err)
	}

	var msg struct {
		ID          string `json:"id"`
		ChannelID   string `json:"channel_id"`
		Attachments []struct {
			URL string `json:"url"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal(body, &msg); err != nil || msg.ID == "" || len(msg.Attachments) == 0 {
		return nil, fmt.Errorf("%w: unexpected upload response", provider.ErrTransient)
	}

	return provider.ChunkRef{
		"message_id":     msg.ID,
		"channel_id":     msg.ChannelID,
		"attachment_url": msg.Attachments[0].URL,
	}, nil
}

// DownloadChunk re-fetches the webhook message and downloads its attachment.
func (p *Provider) DownloadChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) ([]byte, error) {
	messageID := ref["message_id"]
	if messageID == "" {
		return nil, fmt.Errorf("%w: chunk ref missing message_id", provider.ErrNotFound)
	}

	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.messageURL(messageID), nil)
		if err != nil {
			return nil, err
		}
		return p.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message: %w", err)
	}

	var msg struct {
		Attachments []struct {
			URL string `json:"url"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal(body, &msg); err != nil || len(msg.Attachments) == 0 {
		return nil, fmt.Errorf("%w: message has no attachments", provider.ErrNotFound)
	}

	data, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, msg.Attachments[0].URL, nil)
		if err != nil {
			return nil, err
		}
		return p.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	return data, nil
}

// DeleteChunk removes the webhook message; already-gone counts as success.
func (p *Provider) DeleteChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) error {
	messageID := ref["message_id"]
	if messageID == "" {
		return fmt.Errorf("%w: chunk ref missing message_id", provider.ErrNotFound)
	}

	_, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.messageURL(messageID), nil)
		if err != nil {
			return nil, err
		}
		return p.client.Do(req)
	})
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete chunk: %w", err)
	}
	return nil
}

// messageURL addresses a message owned by this webhook.
func (p *Provider) messageURL(messageID string) string {
	return strings.TrimRight(p.cfg.WebhookURL, "/") + "/messages/" + messageID
}

// MaxChunkSize returns the plaintext segment bound for this configuration.
func (p *Provider) MaxChunkSize() int {
	return p.cfg.MaxChunkSize
}

// ValidateConfig fetches the webhook's own metadata; Discord answers a GET on
// the webhook URL without authentication when the token embedded in the URL
// is valid.
func (p *Provider) ValidateConfig(ctx context.Context) error {
	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.WebhookURL, nil)
		if err != nil {
			return nil, err
		}
		return p.client.Do(req)
	})
	if err != nil {
		if errors.Is(err, provider.ErrUnauthorized) || errors.Is(err, provider.ErrNotFound) {
			return fmt.Errorf("%w: webhook rejected", provider.ErrInvalidConfig)
		}
		return fmt.Errorf("validate config: %w", err)
	}

	var info struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &info); err != nil || info.ID == "" {
		return fmt.Errorf("%w: unexpected webhook info response", provider.ErrInvalidConfig)
	}
	return nil
}
