package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPError is returned when the server answered with a non-2xx status.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       []byte
	// RetryAfter is parsed from the Retry-After header when present
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	msg := detailFromBody(e.Body)
	if msg == "" {
		return fmt.Sprintf("%s %s: http %d %s", e.Method, e.URL, e.StatusCode, e.Status)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// Detail returns the server supplied error message, if the body carried one.
func (e *HTTPError) Detail() string {
	return detailFromBody(e.Body)
}

// RateLimited reports whether the server rejected the call with 429.
func (e *HTTPError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// NetworkError means the request was sent but no response came back.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError means an attempt exceeded its effective timeout.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out after %s", e.Method, e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// CancelledError means the caller's context was cancelled.
type CancelledError struct {
	Method string
	URL    string
	Err    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s %s: request cancelled", e.Method, e.URL)
}

func (e *CancelledError) Unwrap() error {
	if e.Err == nil {
		return context.Canceled
	}
	return e.Err
}

// DefaultRetryable approves network errors, timeouts and 5xx responses.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return false
}

// classifyAttemptError turns a raw http.Client error into one of the typed errors.
func classifyAttemptError(parent, attempt error, method, url string, timeout time.Duration, err error) error {
	if parent != nil {
		if errors.Is(parent, context.DeadlineExceeded) {
			return &TimeoutError{Method: method, URL: url, Timeout: timeout, Err: err}
		}
		return &CancelledError{Method: method, URL: url, Err: err}
	}
	if errors.Is(attempt, context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Method: method, URL: url, Timeout: timeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Method: method, URL: url, Timeout: timeout, Err: err}
	}
	return &NetworkError{Method: method, URL: url, Err: err}
}
