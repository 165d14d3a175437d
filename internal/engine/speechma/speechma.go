// Package speechma implements the send operation against a
// speechma-style HTTP text-to-speech endpoint. The service enforces a
// per-session request quota; when it does, responses carry a 429 (or a
// rate-limit marker in the body), which this client surfaces as
// engine.ErrHardLimit so the worker can route it to a verification
// checkpoint.
package speechma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvox/internal/engine"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.6778.140 Safari/537.36"

// Config holds client settings for one session.
type Config struct {
	BaseURL   string        // service root, e.g. https://speechma.com
	Timeout   time.Duration // per-request timeout
	UserAgent string        // overrides the default browser UA when set
}

// Client is an engine.Sender backed by one HTTP session. Each worker
// must construct its own Client: the cookie jar is the session
// identity, and sharing it would collapse the per-session quotas the
// whole coordination layer is built around.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// New creates a Client with a fresh cookie jar.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("speechma: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("speechma: unable to create cookie jar: %w", err)
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
	}, nil
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Send implements engine.Sender.
func (c *Client) Send(ctx context.Context, text, voiceID string) ([]byte, error) {
	if text == "" {
		return nil, engine.ErrEmptyText
	}

	body, err := json.Marshal(ttsRequest{Text: text, Voice: voiceID})
	if err != nil {
		return nil, fmt.Errorf("speechma: unable to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("speechma: unable to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, engine.Transient("send", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Debug("service reported rate limit", "status", resp.StatusCode)
		return nil, engine.ErrHardLimit
	case resp.StatusCode >= 500:
		return nil, engine.Transient("send", fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("speechma: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.Transient("send", err)
	}

	// Some deployments answer 200 with an error document instead of a
	// proper status code.
	if isRateLimitBody(resp.Header.Get("Content-Type"), data) {
		return nil, engine.ErrHardLimit
	}

	if len(data) == 0 {
		return nil, engine.ErrEmptyAudio
	}

	return data, nil
}

// isRateLimitBody detects a rate-limit message hidden in a textual 200
// response.
func isRateLimitBody(contentType string, data []byte) bool {
	if strings.HasPrefix(contentType, "audio/") {
		return false
	}
	if len(data) > 2048 {
		return false
	}
	body := strings.ToLower(string(data))
	return strings.Contains(body, "rate limit") || strings.Contains(body, "too many requests")
}
