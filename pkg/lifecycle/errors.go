package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
)

var (
	// ErrAlreadyRunning is returned by Start while a job is starting, running or paused.
	ErrAlreadyRunning = errors.New("an analysis is already in progress")

	// ErrInvalidState is returned by Pause and Resume from a state that does not allow them.
	ErrInvalidState = errors.New("operation not allowed in the current state")

	// ErrNothingToRetry is returned by Retry when no request has been submitted.
	ErrNothingToRetry = errors.New("no analysis to retry")

	// ErrStartAborted is returned by Start when the machine was reset or
	// cancelled while the job was being created.
	ErrStartAborted = errors.New("start aborted")

	// ErrClosed is returned once the machine has been closed.
	ErrClosed = errors.New("machine closed")
)

// Operations recorded on a JobError.
const (
	OpStart  = "start"
	OpCancel = "cancel"
	OpPause  = "pause"
	OpResume = "resume"
	OpJob    = "job"
)

// JobError is a classified failure stored on the snapshot.
type JobError struct {
	Op             string
	Classification errclass.Classification
	Err            error
}

func newJobError(op string, err error) *JobError {
	return &JobError{Op: op, Classification: errclass.Classify(err), Err: err}
}

func jobFailure(message string) *JobError {
	c := errclass.ClassifyJobFailure(message)
	return &JobError{Op: OpJob, Classification: c, Err: errors.New(c.UserMessage)}
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Classification.UserMessage)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// MarshalJSON keeps the wrapped error readable in exports.
func (e *JobError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Op             string                  `json:"op"`
		Classification errclass.Classification `json:"classification"`
		Cause          string                  `json:"cause,omitempty"`
	}{e.Op, e.Classification, cause})
}
