// Package transport opens AG-UI event streams over HTTP.
//
// Two endpoints are used: the run endpoint, which starts an agent turn, and
// the deferred-results endpoint, which answers tool calls the agent
// suspended on. Both answer with a chunked body of frames that the caller
// reads with the frame package. A non-2xx answer is returned as a
// *threadline.HTTPStatusError and its body is never treated as a stream.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spetersoncode/threadline"
	"github.com/spetersoncode/threadline/auth"
	"github.com/spetersoncode/threadline/internal/retry"
)

// Default endpoint paths, relative to the base URL.
const (
	DefaultRunPath      = "/api/v1/agui/agent"
	DefaultDeferredPath = "/api/v1/agui/deferred_results"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Client posts run and deferred-results requests.
type Client struct {
	baseURL      string
	runPath      string
	deferredPath string
	httpClient   *http.Client
	tokens       auth.TokenSource
	retry        retry.Config
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunPath overrides DefaultRunPath.
func WithRunPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.runPath = p
		}
	}
}

// WithDeferredPath overrides DefaultDeferredPath.
func WithDeferredPath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.deferredPath = p
		}
	}
}

// WithHTTPClient sets the HTTP client. It must not impose a total request
// timeout shorter than the longest expected stream.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokens sets the bearer token source.
func WithTokens(ts auth.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithRetry sets the retry policy for opening a stream.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		runPath:      DefaultRunPath,
		deferredPath: DefaultDeferredPath,
		httpClient:   http.DefaultClient,
		retry:        retry.Disabled(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run opens the event stream of a new agent turn.
// The caller must close the returned body.
func (c *Client) Run(ctx context.Context, in RunInput) (io.ReadCloser, error) {
	return c.Open(ctx, c.runPath, in)
}

// DeferredResults sends tool-call decisions and opens the continuation
// stream. The caller must close the returned body.
func (c *Client) DeferredResults(ctx context.Context, in DeferredInput) (io.ReadCloser, error) {
	return c.Open(ctx, c.deferredPath, in)
}

// Open posts body as JSON to path and returns the response body once the
// backend has answered 2xx. Establishing the connection is retried
// according to the client's retry policy.
func (c *Client) Open(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cfg := c.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("retrying request",
			"path", path,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
	}

	return retry.Do(ctx, cfg, func() (io.ReadCloser, error) {
		resp, err := c.post(ctx, path, payload)
		if threadline.IsUnauthorized(err) && c.reauthenticate(ctx) {
			resp, err = c.post(ctx, path, payload)
		}
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &threadline.TransportError{Op: "request", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &threadline.HTTPStatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// reauthenticate runs the token source's re-authentication hook. It
// reports whether the request should be sent again.
func (c *Client) reauthenticate(ctx context.Context) bool {
	ra, ok := c.tokens.(auth.Reauthenticator)
	if !ok {
		return false
	}
	if err := ra.Reauthenticate(ctx); err != nil {
		if !errors.Is(err, auth.ErrNoRefresh) {
			c.logger.Warn("re-authentication failed", "error", err)
		}
		return false
	}
	c.logger.Info("re-authenticated after 401")
	return true
}
