package pixelapi

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
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/core/engine"
	"github.com/pixelctl/pixelctl/internal/metrics"
)

// DefaultBaseURL is the public canvas API.
const DefaultBaseURL = "https://pixels.pythondiscord.com/"

// DefaultUserAgent identifies the client when no user agent is configured.
const DefaultUserAgent = "pixelctl"

// Request describes one call to the canvas API.
type Request struct {
	Method string
	// URL is the resolved endpoint; the limiter is keyed by it verbatim.
	URL    string
	Data   any
	Params url.Values
	// RatelimitAfter moves the limiter wait from before the request to after
	// it, so the caller gets the freshest possible response.
	RatelimitAfter bool
	ShowProgress   bool
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is delivered by ExecuteAsync.
type Result struct {
	Response *Response
	Err      error
}

// Options configures New.
type Options struct {
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
	// DefaultDelay paces endpoints that advertise no limit.
	DefaultDelay time.Duration
	// EndpointDelays overrides DefaultDelay per endpoint, keyed by path
	// ("set_pixel") or absolute URL.
	EndpointDelays map[string]time.Duration
	// MaxRetries caps 429 retries per request; zero retries forever.
	MaxRetries int
	// Anonymous allows an empty token; requests then carry no credentials.
	Anonymous bool

	HTTPClient *http.Client
	Logger     *logging.Logger
	Sleep      engine.SleepFunc
	Progress   io.Writer
	Recoverer  *Recoverer
}

// Client talks to the canvas API and keeps the rate limits it advertises.
type Client struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTP       *http.Client
	Limiter    *engine.RateLimiter
	MaxRetries int
	Logger     *logging.Logger
	// Recoverer claims 429 responses that are protocol failures rather than
	// limiter races, so they surface instead of being retried.
	Recoverer *Recoverer

	sizeMu sync.Mutex
	size   *core.Dimensions
}

// New builds a client with its own rate limiter.
func New(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" && !opts.Anonymous {
		return nil, errors.New("api token is required")
	}

	base, err := normalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", opts.MaxRetries)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := &Client{
		BaseURL:    base,
		Token:      token,
		UserAgent:  userAgent,
		HTTP:       httpClient,
		MaxRetries: opts.MaxRetries,
		Logger:     opts.Logger,
		Recoverer:  opts.Recoverer,
	}

	delays := make(map[string]time.Duration, len(opts.EndpointDelays))
	for endpoint, delay := range opts.EndpointDelays {
		resolved, err := client.ResolveEndpoint(endpoint)
		if err != nil {
			return nil, fmt.Errorf("endpoint delay %q: %w", endpoint, err)
		}
		delays[resolved] = delay
	}

	client.Limiter = &engine.RateLimiter{
		DefaultDelay:   opts.DefaultDelay,
		EndpointDelays: delays,
		Sleep:          opts.Sleep,
		Progress:       opts.Progress,
		Logger:         opts.Logger,
	}

	return client, nil
}

// ResolveEndpoint turns an endpoint path into an absolute URL under BaseURL.
// Absolute URLs are accepted only when they already live under BaseURL.
func (c *Client) ResolveEndpoint(endpoint string) (string, error) {
	value := strings.TrimSpace(endpoint)
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if !strings.HasPrefix(value, c.BaseURL) {
			return "", fmt.Errorf("endpoint %q is not under base url %q", value, c.BaseURL)
		}
		return value, nil
	}
	return c.BaseURL + strings.TrimLeft(value, "/"), nil
}

// Execute sends req, honouring the endpoint's rate limit, and retries
// responses rejected with 429 until one is accepted.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	limiter := c.limiter()
	retries := 0
	for {
		if !req.RatelimitAfter {
			if err := limiter.Wait(ctx, req.URL, req.ShowProgress); err != nil {
				return nil, err
			}
		}

		resp, err := c.send(ctx, limiter, req)
		if err != nil {
			return nil, err
		}

		err = checkResponse(req.Method, req.URL, resp)
		if err == nil {
			if req.RatelimitAfter {
				if err := limiter.Wait(ctx, req.URL, req.ShowProgress); err != nil {
					return nil, err
				}
			}
			return resp, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Kind != KindRateLimited || c.Recoverer.claimsRateLimit(apiErr) {
			return nil, err
		}

		retries++
		metrics.RecordRateLimitRetry(req.URL)
		if c.MaxRetries > 0 && retries > c.MaxRetries {
			c.warn("Rate limit retries exhausted", zap.String("endpoint", req.URL), zap.Int("retries", c.MaxRetries))
			return nil, apiErr
		}
		c.warn("Hit rate limit, repeating request", zap.String("endpoint", req.URL), zap.Int("attempt", retries))

		if req.RatelimitAfter {
			if err := limiter.Wait(ctx, req.URL, req.ShowProgress); err != nil {
				return nil, err
			}
		}
	}
}

// ExecuteAsync runs Execute in a goroutine. The channel receives exactly one
// Result and is then closed.
func (c *Client) ExecuteAsync(ctx context.Context, req Request) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		resp, err := c.Execute(ctx, req)
		out <- Result{Response: resp, Err: err}
	}()
	return out
}

// ExecuteJSON executes req and decodes the JSON body into out.
func (c *Client) ExecuteJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL, err)
	}
	return nil
}

// ExecuteRaw executes req and returns the body bytes.
func (c *Client) ExecuteRaw(ctx context.Context, req Request) ([]byte, error) {
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) send(ctx context.Context, limiter *engine.RateLimiter, req Request) (*Response, error) {
	target, err := requestURL(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Data != nil {
		payload, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}
	httpReq.Header.Set("User-Agent", c.userAgent())
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		metrics.RecordAPIRequest(req.URL, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL, err)
	}

	limiter.UpdateFromHeaders(req.URL, resp.Header)
	state := limiter.Endpoint(req.URL).State()
	metrics.RecordAPIRequest(req.URL, resp.StatusCode, time.Since(start))
	metrics.SetRemainingRequests(req.URL, state.RemainingRequests)

	c.debug("Request complete",
		zap.String("method", req.Method),
		zap.String("endpoint", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("remaining", state.RemainingRequests),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) limiter() *engine.RateLimiter {
	if c.Limiter == nil {
		c.Limiter = &engine.RateLimiter{Logger: c.Logger}
	}
	return c.Limiter
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return DefaultUserAgent
}

func (c *Client) debug(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Debug(msg, fields...)
	}
}

func (c *Client) info(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Info(msg, fields...)
	}
}

func (c *Client) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

func requestURL(req Request) (string, error) {
	if len(req.Params) == 0 {
		return req.URL, nil
	}
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	query := parsed.Query()
	for key, values := range req.Params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func normalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = DefaultBaseURL
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("base url %q must use http or https", value)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("base url %q has no host", value)
	}
	if !strings.HasSuffix(value, "/") {
		value += "/"
	}
	return value, nil
}
