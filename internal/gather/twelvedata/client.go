// Package twelvedata is a client for the Twelve Data time_series and quote
// endpoints. Every call goes through one throttled, retrying request
// primitive that classifies failures as retryable or fatal.
package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketpanel/internal/util"
)

const (
	// DefaultBaseURL is the base URL for the Twelve Data API.
	DefaultBaseURL = "https://api.twelvedata.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the free-tier allowance in requests per minute.
	DefaultRateLimit = 8
)

// Client is a Twelve Data API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *util.RateLimiter
	policy     util.RetryPolicy
	log        *slog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = logger
	}
}

// WithRateLimit sets the proactive request allowance per minute; zero
// disables throttling.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		c.limiter = util.NewRateLimiter(perMinute)
	}
}

// WithRetryPolicy replaces the attempt bound and delay schedule. The
// client always supplies its own classification.
func WithRetryPolicy(p util.RetryPolicy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient creates a new Twelve Data API client.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: util.NewRateLimiter(DefaultRateLimit),
		policy:  util.DefaultRetryPolicy(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "twelvedata")

	c.policy.Classify = classify
	c.policy.Notify = func(err error, wait time.Duration) {
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrHTTPStatus) {
			c.log.Warn("rate limit hit, waiting", "wait", wait, "err", err)
			return
		}
		c.log.Warn("request failed, retrying", "wait", wait, "err", err)
	}
	return c, nil
}

// FetchSeries retrieves up to outputSize rows of OHLCV data.
func (c *Client) FetchSeries(ctx context.Context, symbol, interval string, outputSize int) (*SeriesResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("outputsize", strconv.Itoa(outputSize))

	var out SeriesResponse
	if err := c.get(ctx, "/time_series", symbol, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchQuote retrieves the latest quote snapshot.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*QuoteResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var out QuoteResponse
	if err := c.get(ctx, "/quote", symbol, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a throttled GET with the client's retry policy and decodes
// the body into result.
func (c *Client) get(ctx context.Context, path, symbol string, params url.Values, result any) error {
	return util.Retry(ctx, c.policy, func() error {
		return c.do(ctx, path, symbol, params, result)
	})
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, path, symbol string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.log.Debug("twelvedata request", "endpoint", path, "symbol", symbol)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", path, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s body: %w", path, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{Kind: KindRateLimited, StatusCode: resp.StatusCode,
			Message: snippet(body), Endpoint: path, Symbol: symbol}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Kind: KindHTTP, StatusCode: resp.StatusCode,
			Message: snippet(body), Endpoint: path, Symbol: symbol}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if env.Status == "error" {
		return &APIError{Kind: classifyMessage(env.Message), StatusCode: resp.StatusCode,
			Code: env.Code, Message: env.Message, Endpoint: path, Symbol: symbol}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// classifyMessage maps an error envelope message onto an ErrorKind.
func classifyMessage(msg string) ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "not found"), strings.Contains(m, "invalid"):
		return KindNotFound
	case strings.Contains(m, "run out of api credits"), strings.Contains(m, "rate limit"):
		return KindRateLimited
	}
	return KindFatal
}

// classify is the client's retry predicate.
func classify(err error) util.RetryClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return util.RetryNever
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case KindRateLimited, KindHTTP:
			return util.RetryScheduled
		}
		return util.RetryNever
	}
	return util.RetryTransport
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
