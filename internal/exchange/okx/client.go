// Package okx handles interactions with the OKX v5 REST and WebSocket APIs.
package okx

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://www.okx.com"

// Config configures a Client.
type Config struct {
	BaseURL     string
	Credentials Credentials
	// Simulated routes private calls to the demo trading environment.
	Simulated  bool
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	Retry      RetryPolicy
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client is a signed OKX REST client. Transport failures are retried with the
// configured RetryPolicy until the request context ends.
type Client struct {
	baseURL    string
	signer     *Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	simulated  bool
	logger     *zap.Logger
}

// NewClient creates a new OKX API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	retry := cfg.Retry
	if retry.Backoff <= 0 {
		retry.Backoff = DefaultRetryPolicy().Backoff
	}
	return &Client{
		baseURL:    baseURL,
		signer:     NewSigner(cfg.Credentials, cfg.Now),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		retry:      retry,
		simulated:  cfg.Simulated,
		logger:     logger.Named("okx"),
	}
}

// BaseURL returns the REST endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) get(ctx context.Context, path string, query url.Values, private bool) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, private)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, path, nil, payload, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload interface{}, private bool) (*Envelope, error) {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var body []byte
	if method != http.MethodGet {
		if payload == nil {
			payload = struct{}{}
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body for %s: %w", path, err)
		}
		body = b
	}

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ErrStopped
			}
			return nil, fmt.Errorf("rate limiter for %s: %w", path, err)
		}

		env, err := c.send(ctx, method, requestPath, body, private)
		if err == nil {
			return c.check(path, env)
		}
		if errors.Is(err, ErrMalformedResponse) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ErrStopped
		}

		c.logger.Warn("Transient request failure, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", c.retry.Delay(attempt)),
			zap.Error(err))

		if c.retry.Exhausted(attempt) {
			return nil, fmt.Errorf("failed to execute %s %s after %d attempts: %w", method, path, attempt, err)
		}
		if err := c.retry.Wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

// send performs a single HTTP round trip. A returned error is transient
// unless it wraps ErrMalformedResponse: the request reached the server, so it
// is not blindly resent.
func (c *Client) send(ctx context.Context, method, requestPath string, body []byte, private bool) (*Envelope, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}
	if private {
		c.signer.Apply(req, requestPath, string(body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body (status: %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Error("HTTP error status", zap.Int("status", resp.StatusCode), zap.String("path", requestPath), zap.ByteString("body", raw))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("Non-JSON response",
			zap.Int("status", resp.StatusCode),
			zap.String("path", requestPath),
			zap.ByteString("body", raw),
			zap.Error(err))
		return nil, fmt.Errorf("%w: status %d from %s", ErrMalformedResponse, resp.StatusCode, requestPath)
	}
	return &env, nil
}

func (c *Client) check(path string, env *Envelope) (*Envelope, error) {
	if env.Code != "" && env.Code != "0" {
		c.logger.Debug("OKX returned error code", zap.String("path", path), zap.String("code", env.Code), zap.String("msg", env.Msg))
		return env, &APIError{Code: env.Code, Msg: env.Msg, Path: path, Data: env.Data}
	}
	return env, nil
}
