// Package client provides the HTTP transport to the time-series backend:
// one POST per page, with error classification and retries.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/timeseries-pager/pkg/logging"
	"github.com/Sternrassler/timeseries-pager/pkg/query"
	"github.com/Sternrassler/timeseries-pager/pkg/ratelimit"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of an error response is kept as message.
const maxErrorBody = 4 << 10

// Client fetches query pages from the backend.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the backend; pages are posted to BaseURL + "/query"
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Retry policy for server, rate limit and network errors
	Retry RetryConfig

	// Limiter gates requests while the backend asks to back off; nil disables
	Limiter *ratelimit.Tracker
}

// DefaultConfig returns a default configuration for the given backend.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "timeseries-pager/1.0",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		cfg.Retry.BackoffMultiplier = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig(cfg.BaseURL).Timeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/query",
		config:   cfg,
		logger:   logging.NewLogger("client"),
	}, nil
}

// Fetch posts req to the backend and decodes the page it answers with.
// It has the signature of pagination.FetchFunc.
//
// Server errors, 429 responses and network failures are retried; 4xx
// responses fail immediately with a *BackendError.
func (c *Client) Fetch(ctx context.Context, req query.Request) (*query.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	logger := logging.WithRequest(c.logger, req.RequestID)
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	var page *query.Response
	err = retryWithBackoff(ctx, c.config.Retry, logger, func() error {
		var attemptErr error
		page, attemptErr = c.do(ctx, body, logger)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Int("frames", len(page.Data)).
		Str("state", string(page.State)).
		Msg("Backend page received")

	return page, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, body []byte, logger zerolog.Logger) (*query.Response, error) {
	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn().Err(err).Msg("Backend request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &BackendError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.trackRateLimit(ctx, resp, logger)

	if errClass := classifyStatus(resp.StatusCode); errClass != "" {
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Backend request error")

		return nil, &BackendError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp.Status, msg),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var page query.Response
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &page, nil
}

// trackRateLimit feeds the limiter with the budget headers and Retry-After of
// a 429 response.
func (c *Client) trackRateLimit(ctx context.Context, resp *http.Response, logger zerolog.Logger) {
	limiter := c.config.Limiter
	if limiter == nil {
		return
	}
	if err := limiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
		logger.Debug().Err(err).Msg("Ignoring malformed rate limit headers")
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return
	}
	if err := limiter.Block(ctx, retryAfter(resp.Header.Get("Retry-After"))); err != nil {
		logger.Warn().Err(err).Msg("Failed to record rate limit block")
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func errorMessage(status string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return status
	}
	return status + ": " + text
}

// retryAfter parses a Retry-After header given in seconds or as HTTP date.
func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
