package realtime

import (
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
)

// EventType identifies a normalized channel event.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCancelled EventType = "cancelled"

	// EventChannel reports a change of the channel itself, never of the job
	EventChannel EventType = "channel"
)

// Valid reports whether t is one of the job event types sent by the server.
func (t EventType) Valid() bool {
	switch t {
	case EventProgress, EventCompleted, EventError, EventPaused, EventResumed, EventCancelled:
		return true
	}
	return false
}

// ProgressUpdate is the progress payload pushed over the socket.
type ProgressUpdate struct {
	CurrentStage    int     `json:"current_stage"`
	OverallProgress float64 `json:"overall_progress"`
	StageProgress   float64 `json:"stage_progress"`
	// EstimatedRemaining is in seconds; zero means unknown
	EstimatedRemaining float64 `json:"estimated_remaining"`
	Message            string  `json:"message,omitempty"`
}

// Event is what the manager emits, whichever channel produced it.
type Event struct {
	Type       EventType
	JobID      string
	Progress   *ProgressUpdate
	Result     *analysis.Result
	Message    string
	Channel    *ChannelStatus
	Source     Mode
	ReceivedAt time.Time
}

// Terminal reports whether the event ends the job.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError || e.Type == EventCancelled
}
