// Package transport is the HTTP client used to talk to the analysis service.
// It applies per-request cancellation, an adaptive timeout derived from
// observed latency, bounded retries with exponential backoff and typed
// errors that the error classifier understands.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the logical request id, shared by all retries.
const RequestIDHeader = "X-Request-ID"

// Request describes one logical call. Retries reuse the same Request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Timeout overrides the effective per-attempt timeout when positive
	Timeout time.Duration

	// NoRetry disables retries for this request
	NoRetry bool

	// Retryable overrides the client's retry predicate
	Retryable func(error) bool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// Client is safe for concurrent use.
type Client struct {
	config  *Config
	http    *http.Client
	limiter *rate.Limiter
	window  *latencyWindow
	logger  *logrus.Logger
	metrics *Metrics
}

// NewClient validates config and creates a transport client.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("transport: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		config:  config,
		http:    httpClient,
		window:  newLatencyWindow(config.SampleWindow),
		logger:  config.Logger,
		metrics: config.Metrics,
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}

	c.logger.WithFields(logrus.Fields{
		"base_url":      config.BaseURL,
		"smart_timeout": config.SmartTimeout,
		"max_retries":   config.MaxRetries,
		"rate_limit":    config.RateLimit,
	}).Debug("Transport client initialized")

	return c, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Stats returns the request counters and the rolling mean latency.
func (c *Client) Stats() Stats {
	return c.window.snapshot()
}

// TimeoutFor returns the effective per-attempt timeout for path.
func (c *Client) TimeoutFor(path string) time.Duration {
	timeout := c.config.Timeout
	if c.config.SmartTimeout {
		if mean, n := c.window.mean(); n >= c.config.MinSamples {
			timeout = time.Duration(float64(mean) * c.config.TimeoutMultiplier)
			timeout = max(timeout, c.config.MinTimeout)
			timeout = min(timeout, c.config.MaxTimeout)
		}
	}
	if c.isLongRunning(path) && timeout < c.config.LongRunningFloor {
		timeout = c.config.LongRunningFloor
	}
	return timeout
}

func (c *Client) isLongRunning(path string) bool {
	return slices.ContainsFunc(c.config.LongRunningPaths, func(p string) bool {
		return path == p || strings.HasPrefix(path, p+"?")
	})
}

// Retryable reports whether err would be retried by this client's default predicate.
func (c *Client) Retryable(err error) bool {
	if DefaultRetryable(err) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return slices.Contains(c.config.RetryableStatus, httpErr.StatusCode)
	}
	return false
}

// Get issues a GET and decodes a JSON body into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	return decodeInto(resp, path, out)
}

// Post issues a POST with a JSON body and decodes the response into out when out is non-nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return err
	}
	return decodeInto(resp, path, out)
}

// Do executes req, retrying failed attempts the retry predicate approves.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	retryable := req.Retryable
	if retryable == nil {
		retryable = c.Retryable
	}

	requestID := uuid.New().String()
	log := c.logger.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.Path,
		"request_id": requestID,
	})

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.contextError(ctx, req, err)
			}
		}

		resp, err := c.attempt(ctx, req, payload, requestID)
		if err == nil {
			resp.Attempts = attempt + 1
			log.WithFields(logrus.Fields{
				"status":   resp.StatusCode,
				"duration": resp.Duration.String(),
				"attempts": resp.Attempts,
			}).Debug("Request completed")
			return resp, nil
		}

		if req.NoRetry || attempt >= c.config.MaxRetries || ctx.Err() != nil || !retryable(err) {
			log.WithError(err).WithField("attempts", attempt+1).Debug("Request failed")
			return nil, err
		}

		delay := c.backoff(attempt)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > delay {
			delay = min(httpErr.RetryAfter, c.config.RetryMaxDelay)
		}

		log.WithError(err).WithFields(logrus.Fields{
			"retry":   attempt + 1,
			"backoff": delay.String(),
		}).Warn("Retrying request")
		c.metrics.incRetry(req.Method)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, c.contextError(ctx, req, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) attempt(ctx context.Context, req Request, payload []byte, requestID string) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.TimeoutFor(req.Path)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullURL := c.url(req.Path, req.Query)

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		typed := classifyAttemptError(ctx.Err(), attemptCtx.Err(), req.Method, fullURL, timeout, err)
		c.recordFailure(req.Method, typed, time.Since(start), false)
		return nil, typed
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		typed := classifyAttemptError(ctx.Err(), attemptCtx.Err(), req.Method, fullURL, timeout, err)
		c.recordFailure(req.Method, typed, duration, false)
		return nil, typed
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Method:     req.Method,
			URL:        fullURL,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		c.recordFailure(req.Method, httpErr, duration, true)
		return nil, httpErr
	}

	c.window.record(true, duration, true)
	c.metrics.observe(req.Method, "success", duration.Seconds())

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

func (c *Client) recordFailure(method string, err error, d time.Duration, answered bool) {
	c.window.record(false, d, answered)
	c.metrics.observe(method, outcomeLabel(err), d.Seconds())
}

func (c *Client) contextError(ctx context.Context, req Request, err error) error {
	fullURL := c.url(req.Path, req.Query)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Method: req.Method, URL: fullURL, Err: err}
	}
	return &CancelledError{Method: req.Method, URL: fullURL, Err: err}
}

func (c *Client) url(path string, query url.Values) string {
	u := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// backoff returns base * 2^attempt capped at the max delay, plus jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.config.RetryBaseDelay) * math.Pow(2, float64(attempt)))
	if delay > c.config.RetryMaxDelay || delay <= 0 {
		delay = c.config.RetryMaxDelay
	}
	if c.config.Jitter > 0 {
		delay += time.Duration(rand.Float64() * c.config.Jitter * float64(delay))
	}
	return delay
}

func outcomeLabel(err error) string {
	var (
		httpErr    *HTTPError
		timeoutErr *TimeoutError
		cancelErr  *CancelledError
	)
	switch {
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &cancelErr):
		return "cancelled"
	default:
		return "network"
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func decodeInto(resp *Response, path string, out any) error {
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// detailFromBody extracts a message from common JSON error bodies
// ({"detail": ...}, {"error": ...}, {"message": ...}).
func detailFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var errResp struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	if len(errResp.Detail) > 0 {
		var s string
		if err := json.Unmarshal(errResp.Detail, &s); err == nil {
			return s
		}
		return string(errResp.Detail)
	}
	if errResp.Error != "" {
		return errResp.Error
	}
	return errResp.Message
}
