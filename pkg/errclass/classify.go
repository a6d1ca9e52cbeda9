package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
)

// Classify maps err onto a Classification. It is pure and total: every
// input, nil included, yields a classification.
func Classify(err error) Classification {
	if err == nil {
		return Classification{
			Type:        TypeUnknown,
			Severity:    SeverityMedium,
			UserMessage: msgUnknown,
		}
	}

	detail := err.Error()

	var cancelled *transport.CancelledError
	if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return Classification{
			Type:        TypeCancelled,
			Severity:    SeverityLow,
			Recoverable: true,
			Retryable:   true,
			UserMessage: msgCancelled,
			Detail:      detail,
		}
	}

	var netErr *transport.NetworkError
	if errors.As(err, &netErr) {
		return network(detail)
	}

	if isTimeout(err) {
		return Classification{
			Type:        TypeTimeout,
			Severity:    SeverityMedium,
			Recoverable: true,
			Retryable:   true,
			UserMessage: msgTimeout,
			RetryDelay:  TimeoutRetryDelay,
			Detail:      detail,
		}
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		c := ClassifyStatus(httpErr.StatusCode)
		if httpErr.RateLimited() && httpErr.RetryAfter > c.RetryDelay {
			c.RetryDelay = httpErr.RetryAfter
		}
		c.Detail = detail
		return c
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return network(detail)
	}

	return classifyText(detail)
}

// ClassifyStatus classifies an HTTP status code on its own.
func ClassifyStatus(status int) Classification {
	c := Classification{StatusCode: status}
	switch {
	case status == http.StatusUnauthorized:
		c.Type, c.Severity = TypeClient, SeverityHigh
		c.Recoverable = true
		c.UserMessage = msgUnauthorized
	case status == http.StatusForbidden:
		c.Type, c.Severity = TypeClient, SeverityHigh
		c.UserMessage = msgForbidden
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		c.Type, c.Severity = TypeClient, SeverityMedium
		c.Recoverable = true
		c.UserMessage = msgBadRequest
	case status == http.StatusNotFound:
		c.Type, c.Severity = TypeClient, SeverityMedium
		c.UserMessage = msgNotFound
	case status == http.StatusConflict:
		c.Type, c.Severity = TypeClient, SeverityMedium
		c.UserMessage = msgConflict
	case status == http.StatusTooManyRequests:
		c.Type, c.Severity = TypeClient, SeverityMedium
		c.Recoverable, c.Retryable, c.RateLimited = true, true, true
		c.UserMessage = msgRateLimited
		c.RetryDelay = RateLimitRetryDelay
	case status >= 500:
		c.Type, c.Severity = TypeServer, SeverityHigh
		c.Recoverable, c.Retryable = true, true
		c.UserMessage = msgServer
		c.RetryDelay = ServerRetryDelay
	case status >= 400:
		c.Type, c.Severity = TypeClient, SeverityMedium
		c.UserMessage = msgClient
	default:
		c.Type, c.Severity = TypeUnknown, SeverityMedium
		c.UserMessage = msgUnknown
	}
	return c
}

// ClassifyValue classifies recovered panic values, strings and errors alike.
func ClassifyValue(v any) Classification {
	switch v := v.(type) {
	case nil:
		return Classify(nil)
	case error:
		return Classify(v)
	case string:
		return classifyText(v)
	case fmt.Stringer:
		return classifyText(v.String())
	default:
		return classifyText(fmt.Sprint(v))
	}
}

// ClassifyJobFailure classifies a failure reported by the server for a
// running job, either through the realtime channel or a polled status.
func ClassifyJobFailure(message string) Classification {
	msg := strings.TrimSpace(message)
	user := msg
	if user == "" {
		user = msgJobFailed
	}
	return Classification{
		Type:        TypeServer,
		Severity:    SeverityHigh,
		Recoverable: true,
		Retryable:   true,
		UserMessage: user,
		RetryDelay:  ServerRetryDelay,
		Detail:      msg,
	}
}

func network(detail string) Classification {
	return Classification{
		Type:        TypeNetwork,
		Severity:    SeverityHigh,
		Recoverable: true,
		Retryable:   true,
		UserMessage: msgNetwork,
		RetryDelay:  NetworkRetryDelay,
		Detail:      detail,
	}
}

func isTimeout(err error) bool {
	var timeoutErr *transport.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classifyText handles untyped errors by looking at their message.
func classifyText(text string) Classification {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded"):
		return Classification{
			Type:        TypeTimeout,
			Severity:    SeverityMedium,
			Recoverable: true,
			Retryable:   true,
			UserMessage: msgTimeout,
			RetryDelay:  TimeoutRetryDelay,
			Detail:      text,
		}
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "network"):
		return network(text)
	}
	return Classification{
		Type:        TypeUnknown,
		Severity:    SeverityMedium,
		UserMessage: msgUnknown,
		Detail:      text,
	}
}
