package analysis

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Control actions accepted by the job control endpoints.
const (
	ActionCancel = "cancel"
	ActionPause  = "pause"
	ActionResume = "resume"
)

// Cancel asks the server to cancel the job.
func (c *Client) Cancel(ctx context.Context, jobID string) (*ControlResponse, error) {
	return c.control(ctx, jobID, ActionCancel)
}

// Pause asks the server to pause the job.
func (c *Client) Pause(ctx context.Context, jobID string) (*ControlResponse, error) {
	return c.control(ctx, jobID, ActionPause)
}

// Resume asks the server to resume a paused job.
func (c *Client) Resume(ctx context.Context, jobID string) (*ControlResponse, error) {
	return c.control(ctx, jobID, ActionResume)
}

func (c *Client) control(ctx context.Context, jobID, action string) (*ControlResponse, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}

	log := c.logger.WithFields(logrus.Fields{
		"method": "control",
		"action": action,
		"job_id": jobID,
	})

	var resp ControlResponse
	if err := c.transport.Post(ctx, jobPath(jobID, action), nil, &resp); err != nil {
		log.WithError(err).Warn("Job control request failed")
		return nil, err
	}

	log.WithField("status", resp.Status).Info("Job control request accepted")
	return &resp, nil
}
