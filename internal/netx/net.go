// Package netx contains shared HTTP plumbing for remote storage platforms:
// multipart attachment uploads and rate-limit cooldown parsing.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// PostMultipart sends payload as a single multipart/form-data file part plus
// optional extra form fields, and returns the raw response. The caller owns
// the response body.
func PostMultipart(ctx context.Context, client *http.Client, url string, header http.Header,
	field, filename string, payload []byte, extra map[string]string) (*http.Response, error) {

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("multipart: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return client.Do(req)
}

// RetryAfterHint extracts the platform-requested cooldown from a rate-limit
// response: the JSON retry_after field (seconds, possibly fractional) when
// present in the body, otherwise the Retry-After header. Returns fallback
// when neither is usable.
func RetryAfterHint(resp *http.Response, body []byte, fallback time.Duration) time.Duration {
	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}

	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}

	return fallback
}

// SleepContext sleeps for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
