package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// CreateJob validates req and submits it as a new asynchronous analysis job.
func (c *Client) CreateJob(ctx context.Context, req Request) (*JobCreated, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalize()

	log := c.logger.WithFields(logrus.Fields{
		"method":  "CreateJob",
		"keyword": req.Keyword,
	})
	log.Debug("Submitting analysis job")

	resp, err := c.transport.Do(ctx, transport.Request{
		Method:    http.MethodPost,
		Path:      CreateJobPath,
		Body:      req,
		Retryable: createRetryable,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create analysis job")
		return nil, err
	}

	var created JobCreated
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode job creation response: %w", err)
	}
	if created.JobID == "" {
		return nil, fmt.Errorf("job creation response has no job_id")
	}

	log.WithFields(logrus.Fields{
		"job_id":   created.JobID,
		"status":   created.Status,
		"attempts": resp.Attempts,
	}).Info("Analysis job created")

	return &created, nil
}
