package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
)

// Health checks the service once, without retries.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.transport.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		Path:    HealthPath,
		NoRetry: true,
	})
	if err != nil {
		return nil, err
	}

	var health Health
	if err := json.Unmarshal(resp.Body, &health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}
