// Package discord implements the storage provider contract on top of the
// Discord bot API: a file becomes a dedicated public thread in a configured
// channel, and every encrypted chunk becomes a message attachment inside it.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/netx"
	"github.com/dmitrijs2005/chunkvault/internal/provider"
)

const (
	Platform = "discord"

	apiBase = "https://discord.com/api/v10"

	// Discord free-tier attachment ceiling; the advertised chunk size must
	// leave room below it for encryption overhead.
	hardMaxChunkSize    = 10 * 1024 * 1024
	defaultMaxChunkSize = 8 * 1024 * 1024
	minChunkSize        = 1024

	prepareTimeout  = 30 * time.Second
	transferTimeout = 60 * time.Second

	// attempts spent inside a single call waiting out platform cooldowns
	rateLimitAttempts = 5
	defaultCooldown   = time.Second

	publicThread        = 11
	autoArchiveMinutes  = 10080 // 7 days
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
	BotToken  string `json:"bot_token"`
	ServerID  string `json:"server_id"`
	ChannelID string `json:"channel_id"`

	// MaxChunkSize bounds the plaintext segment size. Optional; defaults to
	// 8 MiB, configurable downward but never past the platform hard limit.
	MaxChunkSize int `json:"max_chunk_size,omitempty"`
}

// Provider talks to the Discord REST API.
type Provider struct {
	cfg    Config
	client *http.Client
	api    string
}

// New parses and statically validates the config, then (unless
// skipValidation) performs the live credential check.
func New(config json.RawMessage, skipValidation bool) (*Provider, error) {
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidConfig, err)
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = defaultMaxChunkSize
	}

	v := NewValidator(cfg)
	if err := v.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: transferTimeout},
		api:    apiBase,
	}

	if !skipValidation {
		ctx, cancel := context.WithTimeout(context.Background(), prepareTimeout)
		defer cancel()
		if err := p.ValidateConfig(ctx); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Provider) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bot "+p.cfg.BotToken)
	return h
}

// doWithCooldown runs newReq until it gets a non-429 response, sleeping the
// platform-specified cooldown between attempts, bounded by rateLimitAttempts.
// It returns the response body for 2xx statuses and a classified error
// otherwise. newReq must build a fresh request on every call.
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
		return fmt.Errorf("discord api: status %d: %s", status, body)
	}
}

// PrepareStorage creates a public thread named after the file and returns its
// id as the routing context for all chunk operations.
func (p *Provider) PrepareStorage(ctx context.Context, meta provider.FileInfo) (provider.Context, error) {
	payload, err := json.Marshal(map[string]any{
		"name":                  "[FILE] " + meta.Filename,
		"type":                  publicThread,
		"auto_archive_duration": autoArchiveMinutes,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/channels/%s/threads", p.api, p.cfg.ChannelID)

	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header = p.authHeader()
		req.Header.Set("Content-Type", "application/json")
		return p.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	var thread struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &thread); err != nil || thread.ID == "" {
		return nil, fmt.Errorf("%w: unexpected create-thread response", provider.ErrTransient)
	}

	return provider.Context{"thread_id": thread.ID}, nil
}

// UploadChunk posts the encrypted payload as a message attachment inside the
// file's thread and returns the message id and attachment URL as reference.
func (p *Provider) UploadChunk(ctx context.Context, payload []byte, sctx provider.Context) (provider.ChunkRef, error) {
	threadID := sctx["thread_id"]
	if threadID == "" {
		return nil, fmt.Errorf("%w: storage context missing thread_id", provider.ErrInvalidConfig)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", p.api, threadID)

	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		return netx.PostMultipart(ctx, p.client, url, p.authHeader(),
			attachmentFieldName, attachmentFilename, payload,
			map[string]string{"payload_json": "{}"})
	})
	if err != nil {
		return nil, fmt.Errorf("upload chunk: %w", err)
	}

	var msg struct {
		ID          string `json:"id"`
		Attachments []struct {
			URL string `json:"url"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal(body, &msg); err != nil || msg.ID == "" || len(msg.Attachments) == 0 {
		return nil, fmt.Errorf("%w: unexpected upload response", provider.ErrTransient)
	}

	return provider.ChunkRef{
		"message_id":     msg.ID,
		"attachment_url": msg.Attachments[0].URL,
		"thread_id":      threadID,
	}, nil
}

// DownloadChunk re-fetches the message by id (attachment CDN URLs expire) and
// downloads the attachment bytes.
func (p *Provider) DownloadChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) ([]byte, error) {
	threadID := ref["thread_id"]
	if threadID == "" {
		threadID = sctx["thread_id"]
	}
	messageID := ref["message_id"]
	if threadID == "" || messageID == "" {
		return nil, fmt.Errorf("%w: chunk ref missing thread_id/message_id", provider.ErrNotFound)
	}

	msgURL := fmt.Sprintf("%s/channels/%s/messages/%s", p.api, threadID, messageID)

	body, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, msgURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header = p.authHeader()
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

// DeleteChunk removes the message carrying the chunk. A message that is
// already gone counts as success.
func (p *Provider) DeleteChunk(ctx context.Context, ref provider.ChunkRef, sctx provider.Context) error {
	threadID := ref["thread_id"]
	if threadID == "" {
		threadID = sctx["thread_id"]
	}
	messageID := ref["message_id"]
	if threadID == "" || messageID == "" {
		return fmt.Errorf("%w: chunk ref missing thread_id/message_id", provider.ErrNotFound)
	}

	url := fmt.Sprintf("%s/channels/%s/messages/%s", p.api, threadID, messageID)

	_, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header = p.authHeader()
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

// MaxChunkSize returns the plaintext segment bound for this configuration.
func (p *Provider) MaxChunkSize() int {
	return p.cfg.MaxChunkSize
}

// ValidateConfig performs the live credential check against /users/@me.
// A 401 means the bot token is dead and the configuration is invalid.
func (p *Provider) ValidateConfig(ctx context.Context) error {
	url := p.api + "/users/@me"

	_, err := p.doWithCooldown(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header = p.authHeader()
		return p.client.Do(req)
	})
	if err != nil {
		if errors.Is(err, provider.ErrUnauthorized) {
			return fmt.Errorf("%w: bot token rejected", provider.ErrInvalidConfig)
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
