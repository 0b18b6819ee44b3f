package cvat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/metrics"
)

const componentName = "cvat"

// maxErrorBody caps how much of an error response ends up in messages
const maxErrorBody = 500

// Config holds configuration for the CVAT client
type Config struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	Org            string        `json:"org"`
	Timeout        time.Duration `json:"timeout"`
	MaxRetries     int           `json:"max_retries"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	RateLimit      time.Duration `json:"rate_limit"` // minimum spacing between requests, 0 disables
	CacheTTL       time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns the client defaults
func DefaultConfig() Config {
	return Config{
		Timeout:        60 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: 500 * time.Millisecond,
		CacheTTL:       10 * time.Minute,
	}
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMetrics records request metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger replaces the module logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client provides methods for interacting with the CVAT API
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	cache      *cache.Cache
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	log        logger.Logger
	firstCall  sync.Once
}

// NewClient creates a new CVAT API client
func NewClient(config Config, opts ...Option) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("CVAT API key is required").
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Build()
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid CVAT URL %q", config.BaseURL).
			Category(errors.CategoryConfiguration).
			Component(componentName).
			Build()
	}

	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	c := &Client{
		config:     config,
		baseURL:    base,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Every(config.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = GetLogger()
	}

	c.log.Debug("CVAT client initialized",
		logger.String("base_url", base.String()),
		logger.String("org", config.Org),
		logger.Int("max_retries", config.MaxRetries),
		logger.Duration("rate_limit", config.RateLimit))

	return c, nil
}

// BaseURL returns the server URL without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Org returns the organization slug used for scoped requests
func (c *Client) Org() string {
	return c.config.Org
}

// TaskURL returns the web UI link of a task
func (c *Client) TaskURL(taskID int) string {
	return fmt.Sprintf("%s/tasks/%d", c.BaseURL(), taskID)
}

// ClearCache drops cached memberships and labels
func (c *Client) ClearCache() {
	c.cache.Flush()
}

// orgQuery returns a query carrying the organization slug when configured
func (c *Client) orgQuery() url.Values {
	q := url.Values{}
	if c.config.Org != "" {
		q.Set("org", c.config.Org)
	}
	return q
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// request describes one API call. The body is kept as bytes so that it can
// be replayed on retries.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, query url.Values, payload any) (*request, error) {
	r := &request{method: method, path: path, query: query}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Newf("failed to encode request body: %w", err).
				Category(errors.CategoryValidation).
				Component(componentName).
				Context("path", path).
				Build()
		}
		r.body = data
		r.contentType = "application/json"
	}
	return r, nil
}

// do performs a request with retries and decodes a JSON response into result
func (c *Client) do(ctx context.Context, r *request, result any) error {
	var lastErr error
	attempts := c.config.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		status, err := c.doOnce(ctx, r, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(status, err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := time.Duration(attempt+1) * c.config.RetryBaseDelay
		c.log.Warn("CVAT API request failed, retrying",
			logger.Int("attempt", attempt+1),
			logger.Int("max_retries", c.config.MaxRetries),
			logger.Int("status_code", status),
			logger.Int64("delay_ms", delay.Milliseconds()),
			logger.String("path", r.path),
			logger.Error(err))
		c.metrics.RecordRetry(r.path)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return errors.Newf("CVAT request cancelled: %w", ctx.Err()).
				Category(errors.CategoryCancellation).
				Component(componentName).
				Context("path", r.path).
				Build()
		}
	}

	return lastErr
}

// isRetryable reports whether a failed call may succeed when repeated.
// status is 0 when no response was received.
func isRetryable(status int, err error) bool {
	switch status {
	case 0:
		return errors.IsCategory(err, errors.CategoryNetwork)
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// doOnce performs a single HTTP exchange and returns the status code
func (c *Client) doOnce(ctx context.Context, r *request, result any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, errors.Newf("rate limiter wait failed: %w", err).
				Category(errors.CategoryCancellation).
				Component(componentName).
				Build()
		}
	}

	endpoint := c.buildURL(r.path, r.query)
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return 0, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryValidation).
			Component(componentName).
			Context("method", r.method).
			Context("path", r.path).
			Build()
	}
	req.Header.Set("Authorization", "Token "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(r.method, r.path, 0, time.Since(start))
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryCancellation
		}
		return 0, errors.Newf("CVAT request %s %s failed: %w", r.method, r.path, err).
			Category(category).
			Component(componentName).
			Context("method", r.method).
			Context("path", r.path).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	c.metrics.ObserveRequest(r.method, r.path, resp.StatusCode, elapsed)
	if err != nil {
		return resp.StatusCode, errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Component(componentName).
			Context("path", r.path).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if resp.StatusCode >= 400 {
		detail := errorDetail(resp.Header.Get("Content-Type"), respBody)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.log.Error("CVAT API authentication failed",
				logger.Int("status_code", resp.StatusCode),
				logger.String("path", r.path),
				logger.String("detail", detail),
				logger.String("hint", "check cvat.api_key and cvat.org in the configuration"))
		} else {
			c.log.Debug("CVAT API error response",
				logger.Int("status_code", resp.StatusCode),
				logger.String("method", r.method),
				logger.String("path", r.path),
				logger.String("detail", detail))
		}
		return resp.StatusCode, errors.Newf("CVAT API error %d on %s %s: %s", resp.StatusCode, r.method, r.path, detail).
			Category(getErrorCategory(resp.StatusCode)).
			Component(componentName).
			Context("status_code", resp.StatusCode).
			Context("method", r.method).
			Context("path", r.path).
			Build()
	}

	c.firstCall.Do(func() {
		c.log.Debug("CVAT API authentication successful", logger.String("path", r.path))
	})
	c.log.Trace("CVAT API response",
		logger.String("method", r.method),
		logger.String("path", r.path),
		logger.Int("status_code", resp.StatusCode),
		logger.Duration("elapsed", elapsed),
		logger.Int("response_size", len(respBody)))

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return resp.StatusCode, errors.Newf("failed to parse CVAT response: %w", err).
			Category(errors.CategoryFileParsing).
			Component(componentName).
			Context("path", r.path).
			Context("response_size", len(respBody)).
			Context("response_preview", preview(string(respBody))).
			Build()
	}
	return resp.StatusCode, nil
}

// errorDetail extracts readable text from an error body. Django debug and
// proxy error pages are HTML, the API itself answers with JSON.
func errorDetail(contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.Contains(strings.ToLower(contentType), "text/html") || strings.HasPrefix(text, "<") {
		text = strings.Join(strings.Fields(html2text.HTML2Text(text)), " ")
	}
	return preview(text)
}

func preview(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// getErrorCategory determines the error category from an HTTP status code
func getErrorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case http.StatusBadRequest:
		return errors.CategoryValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.CategoryConfiguration
	case http.StatusNotFound:
		return errors.CategoryNotFound
	case http.StatusConflict:
		return errors.CategoryConflict
	case http.StatusTooManyRequests:
		return errors.CategoryLimit
	default:
		return errors.CategoryHTTP
	}
}

// StatusCode returns the HTTP status recorded on a CVAT API error, or 0
func StatusCode(err error) int {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return 0
	}
	if code, ok := ee.GetContext()["status_code"].(int); ok {
		return code
	}
	return 0
}

// listAll follows pagination until the server reports no next page
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	var all []T
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		var p Page[T]
		r := &request{method: http.MethodGet, path: path, query: query}
		if err := c.do(ctx, r, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		if p.Next == "" || len(p.Results) == 0 {
			return all, nil
		}
	}
}
