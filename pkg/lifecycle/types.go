package lifecycle

import (
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
)

// Status is the client-side status of the analysis.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the job has ended.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Live reports whether a job is being started or tracked.
func (s Status) Live() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusPaused
}

// StageStatus is the state of one pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageError     StageStatus = "error"
)

// StageCount is the number of pipeline stages.
const StageCount = realtime.StageCount

// StageNames are the display names of the stages, in order.
var StageNames = [StageCount]string{
	"SERP Analysis",
	"Website Crawling",
	"AI Content Generation",
}

var stageSubtasks = [StageCount][]string{
	{"Fetching search results", "Extracting competitor URLs", "Analyzing ranking signals"},
	{"Crawling competitor pages", "Extracting content structure", "Measuring content depth"},
	{"Building content outline", "Generating draft", "Formatting report"},
}

// Stage is the projected state of one stage.
type Stage struct {
	Index    int         `json:"index"`
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Progress float64     `json:"progress"`
	Error    string      `json:"error,omitempty"`
}

// Subtask is a derived checklist item of a stage.
type Subtask struct {
	Name   string `json:"name"`
	Done   bool   `json:"done"`
	Active bool   `json:"active"`
}

// Subtasks derives the checklist from the stage status and progress.
func (s Stage) Subtasks() []Subtask {
	if s.Index < 1 || s.Index > StageCount {
		return nil
	}
	names := stageSubtasks[s.Index-1]
	out := make([]Subtask, len(names))
	activeSet := false
	for i, name := range names {
		threshold := float64(i+1) * 100 / float64(len(names))
		done := s.Status == StageCompleted || s.Progress >= threshold
		out[i] = Subtask{Name: name, Done: done}
		if !done && !activeSet && s.Status == StageRunning {
			out[i].Active = true
			activeSet = true
		}
	}
	return out
}

// Timing holds the time-related part of the projection.
type Timing struct {
	StartTime             time.Time     `json:"start_time"`
	CurrentStageStartTime time.Time     `json:"current_stage_start_time"`
	EstimatedTotal        time.Duration `json:"estimated_total"`
	EstimatedRemaining    time.Duration `json:"estimated_remaining"`
}

// Progress is the projected progress of the running job.
type Progress struct {
	CurrentStage    int               `json:"current_stage"`
	OverallProgress float64           `json:"overall_progress"`
	StageProgress   float64           `json:"stage_progress"`
	Stages          [StageCount]Stage `json:"stages"`
	Timing          Timing            `json:"timing"`
	Message         string            `json:"message,omitempty"`
	// Estimated is true while the values come from the local estimate
	Estimated bool `json:"estimated"`
}

// Statistics are counters about the current job.
type Statistics struct {
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	EventsApplied int       `json:"events_applied"`
	EventsIgnored int       `json:"events_ignored"`
	Retries       int       `json:"retries"`
}

// Duration returns the elapsed job time, up to now for jobs still running.
func (s Statistics) Duration(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if !s.EndTime.IsZero() {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// Snapshot is the full observable state of a Machine.
type Snapshot struct {
	Status     Status                 `json:"status"`
	Channel    realtime.ChannelStatus `json:"channel"`
	Progress   *Progress              `json:"progress,omitempty"`
	Result     *analysis.Result       `json:"result,omitempty"`
	Error      *JobError              `json:"error,omitempty"`
	JobID      string                 `json:"job_id,omitempty"`
	Request    *analysis.Request      `json:"request,omitempty"`
	CanCancel  bool                   `json:"can_cancel"`
	CanPause   bool                   `json:"can_pause"`
	CanResume  bool                   `json:"can_resume"`
	Statistics Statistics             `json:"statistics"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	if s.Request != nil {
		r := *s.Request
		s.Request = &r
	}
	return s
}

// IdleSnapshot is the initial state.
func IdleSnapshot() Snapshot {
	return Snapshot{
		Status:  StatusIdle,
		Channel: realtime.ChannelStatus{State: realtime.StateDisconnected, Mode: realtime.ModeNone},
	}
}
