// Package upstream implements the rate-limit-aware REST client used for one
// tenant's calls against the chat-platform API.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/relayhq/botgate/internal/domain"
)

// Options configures a Client. BaseURL is required; the rest have sane
// defaults.
type Options struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
	Transport  http.RoundTripper
	Logger     *slog.Logger
}

// Client performs authenticated calls against the upstream API for a single
// tenant, honoring the API's per-bucket and global rate limits.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	limits     *limiter
	maxRetries int
	logger     *slog.Logger
}

var _ domain.OutboundClient = (*Client)(nil)

// New constructs a client bound to the given bot token.
func New(token string, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	base := strings.TrimSuffix(opts.BaseURL, "/")
	if opts.APIVersion != "" {
		base += "/" + opts.APIVersion
	}

	return &Client{
		baseURL:    base,
		authHeader: "Bot " + token,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   opts.Timeout,
		},
		limits:     newLimiter(),
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}, nil
}

// Do implements domain.OutboundClient. Rate-limited responses (429) are
// retried up to the configured limit after the upstream's Retry-After delay;
// all other failures are final and returned as *domain.UpstreamError.
func (c *Client) Do(ctx context.Context, method, route string, body []byte) (*domain.Result, error) {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}

	for attempt := 0; ; attempt++ {
		if err := c.limits.wait(ctx, method, route); err != nil {
			return nil, domain.NewUpstreamError(0, "Timeout", c.limits.bucketFor(method, route))
		}

		result, retryAfter, err := c.do(ctx, method, route, body)
		if err == nil {
			return result, nil
		}

		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) && upErr.Status == http.StatusTooManyRequests && attempt < c.maxRetries {
			c.logger.Warn("rate limited, retrying",
				slog.String("method", method),
				slog.String("route", route),
				slog.Duration("retry_after", retryAfter),
				slog.Int("attempt", attempt+1),
			)
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return nil, domain.NewUpstreamError(0, "Timeout", upErr.Bucket)
			}
			continue
		}
		return nil, err
	}
}

func (c *Client) do(ctx context.Context, method, route string, body []byte) (*domain.Result, time.Duration, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return nil, 0, domain.NewUpstreamError(0, "", c.limits.bucketFor(method, route))
	}
	req.Header.Set("Authorization", c.authHeader)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		statusText := ""
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			statusText = "Timeout"
		}
		return nil, 0, domain.NewUpstreamError(0, statusText, c.limits.bucketFor(method, route))
	}
	defer resp.Body.Close()

	bucket := c.limits.update(method, route, resp.Header)
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, domain.NewUpstreamError(0, "", bucket)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		retryAfter := retryAfterDelay(resp.Header)
		return nil, retryAfter, domain.NewUpstreamError(
			resp.StatusCode,
			statusTextFor(resp.StatusCode, respBody),
			bucket,
		).WithBody(respBody)
	}

	if resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return &domain.Result{Status: resp.StatusCode, Bucket: bucket}, 0, nil
	}
	return &domain.Result{Status: resp.StatusCode, Bucket: bucket, Body: respBody}, 0, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// statusTextFor prefers the upstream's own error message over the generic
// HTTP status text.
func statusTextFor(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return http.StatusText(status)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
