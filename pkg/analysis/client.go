// Package analysis holds the wire types of the keyword analysis service and
// a typed client for its job endpoints.
package analysis

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Service endpoints
const (
	CreateJobPath = "/api/analysis/async"
	HealthPath    = "/api/health"
)

// Client issues the analysis service calls through a transport client.
type Client struct {
	transport *transport.Client
	logger    *logrus.Logger
}

// NewClient creates an API client on top of t.
func NewClient(t *transport.Client, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		transport: t,
		logger:    logger,
	}
}

// Transport returns the underlying transport client.
func (c *Client) Transport() *transport.Client {
	return c.transport
}

func jobPath(jobID, action string) string {
	return fmt.Sprintf("/api/analysis/%s/%s", url.PathEscape(jobID), action)
}

// createRetryable only retries failures where the job certainly was not
// created: connection failures and gateway errors.
func createRetryable(err error) bool {
	var netErr *transport.NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
