package devserver

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
)

const subscriberBuffer = 32

var stageMessages = [realtime.StageCount]string{
	"Analyzing search results",
	"Crawling competitor pages",
	"Generating content",
}

// message is one websocket frame.
type message struct {
	Type  realtime.EventType `json:"type"`
	JobID string             `json:"job_id"`
	Data  any                `json:"data,omitempty"`
}

type textData struct {
	Message string `json:"message"`
}

// job is one simulated analysis. All fields after mu are guarded by it.
type job struct {
	id      string
	req     analysis.Request
	created time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	status        analysis.JobStatus
	stage         int
	stageProgress float64
	result        *analysis.Result
	errMsg        string
	subs          map[chan message]struct{}
}

func newJob(id string, req analysis.Request, now time.Time) *job {
	ctx, cancel := context.WithCancel(context.Background())
	return &job{
		id:      id,
		req:     req,
		created: now,
		ctx:     ctx,
		cancel:  cancel,
		status:  analysis.JobStatusProcessing,
		stage:   1,
		subs:    make(map[chan message]struct{}),
	}
}

func (j *job) overallLocked() float64 {
	return math.Min((float64(j.stage-1)*100+j.stageProgress)/realtime.StageCount, 100)
}

func (j *job) progressLocked(stageDuration time.Duration) message {
	left := (1-j.stageProgress/100)*stageDuration.Seconds() +
		float64(realtime.StageCount-j.stage)*stageDuration.Seconds()
	return message{
		Type:  realtime.EventProgress,
		JobID: j.id,
		Data: realtime.ProgressUpdate{
			CurrentStage:       j.stage,
			OverallProgress:    math.Round(j.overallLocked()*10) / 10,
			StageProgress:      math.Round(j.stageProgress*10) / 10,
			EstimatedRemaining: math.Round(math.Max(left, 0)*10) / 10,
			Message:            stageMessages[j.stage-1],
		},
	}
}

// terminalLocked returns the frame describing a finished job.
func (j *job) terminalLocked() message {
	switch j.status {
	case analysis.JobStatusCompleted:
		return message{Type: realtime.EventCompleted, JobID: j.id, Data: j.result}
	case analysis.JobStatusFailed:
		return message{Type: realtime.EventError, JobID: j.id, Data: textData{Message: j.errMsg}}
	default:
		return message{Type: realtime.EventCancelled, JobID: j.id, Data: textData{Message: "Analysis cancelled"}}
	}
}

// statusLocked renders the polling view of the job.
func (j *job) statusLocked() *analysis.StatusResponse {
	st := &analysis.StatusResponse{JobID: j.id, Status: j.status}
	switch j.status {
	case analysis.JobStatusProcessing, analysis.JobStatusPaused:
		st.Progress = &analysis.StepProgress{
			CurrentStep: j.stage,
			TotalSteps:  realtime.StageCount,
			Message:     stageMessages[j.stage-1],
			Percentage:  math.Round(j.overallLocked()*10) / 10,
		}
	case analysis.JobStatusCompleted:
		st.Result = j.result
	case analysis.JobStatusFailed:
		st.Error = j.errMsg
	}
	return st
}

// subscribe returns the frames describing the current state and a channel
// for later ones. The channel is closed once the job finishes.
func (j *job) subscribe(stageDuration time.Duration) ([]message, chan message, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ch := make(chan message, subscriberBuffer)
	if j.status.Terminal() {
		close(ch)
		return []message{j.terminalLocked()}, ch, func() {}
	}

	initial := []message{j.progressLocked(stageDuration)}
	if j.status == analysis.JobStatusPaused {
		initial = append(initial, message{Type: realtime.EventPaused, JobID: j.id, Data: textData{Message: "Analysis paused"}})
	}
	j.subs[ch] = struct{}{}

	return initial, ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
}

// broadcastLocked delivers msg to every subscriber, dropping the oldest
// buffered frame of a subscriber that fell behind.
func (j *job) broadcastLocked(msg message) {
	for ch := range j.subs {
		select {
		case ch <- msg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// finishLocked sends the terminal frame and closes every subscription.
func (j *job) finishLocked() {
	j.broadcastLocked(j.terminalLocked())
	for ch := range j.subs {
		delete(j.subs, ch)
		close(ch)
	}
	j.cancel()
}

func (j *job) serpSummary() analysis.SerpSummary {
	kw := strings.ToLower(j.req.Keyword)
	return analysis.SerpSummary{
		TotalResults: 10,
		AvgWordCount: float64(1200 + 40*len([]rune(kw))),
		CommonThemes: []string{
			fmt.Sprintf("what is %s", kw),
			fmt.Sprintf("%s best practices", kw),
			fmt.Sprintf("%s for %s", kw, strings.ToLower(j.req.Audience)),
		},
		TopCompetitor: "example.com",
	}
}
