package analysis

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// GetStatus fetches the current status of a job.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	var status StatusResponse
	if err := c.transport.Get(ctx, jobPath(jobID, "status"), nil, &status); err != nil {
		return nil, err
	}
	if status.JobID == "" {
		status.JobID = jobID
	}

	c.logger.WithFields(logrus.Fields{
		"method": "GetStatus",
		"job_id": jobID,
		"status": status.Status,
	}).Debug("Fetched job status")

	return &status, nil
}
