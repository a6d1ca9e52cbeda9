package analysis

import (
	"encoding/json"
	"time"
)

// Options toggles optional parts of the generated report.
type Options struct {
	GenerateDraft bool `json:"generate_draft"`
	IncludeFAQ    bool `json:"include_faq"`
	IncludeTable  bool `json:"include_table"`
}

// DefaultOptions enables every optional section.
func DefaultOptions() Options {
	return Options{GenerateDraft: true, IncludeFAQ: true, IncludeTable: true}
}

// Request is the body of POST /api/analysis/async.
type Request struct {
	Keyword  string  `json:"keyword"`
	Audience string  `json:"audience"`
	Options  Options `json:"options"`
}

// JobStatus is the server-side job state reported by the status endpoint.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobCreated is returned by job creation.
type JobCreated struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message"`
	StatusURL string    `json:"status_url"`
}

// StepProgress is the coarse progress embedded in a polled status.
type StepProgress struct {
	CurrentStep int     `json:"current_step"`
	TotalSteps  int     `json:"total_steps"`
	Message     string  `json:"message"`
	Percentage  float64 `json:"percentage"`
}

// StatusResponse is returned by GET /api/analysis/{jobId}/status.
type StatusResponse struct {
	JobID    string        `json:"job_id"`
	Status   JobStatus     `json:"status"`
	Progress *StepProgress `json:"progress,omitempty"`
	Result   *Result       `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// SerpSummary is an optional digest of the SERP stage.
type SerpSummary struct {
	TotalResults  int      `json:"total_results"`
	AvgWordCount  float64  `json:"avg_word_count"`
	CommonThemes  []string `json:"common_themes"`
	TopCompetitor string   `json:"top_competitor,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	Keyword        string   `json:"keyword"`
	Audience       string   `json:"audience"`
	ProcessingTime float64  `json:"processing_time"`
	TokenUsage     int      `json:"token_usage"`
	Timestamp      string   `json:"timestamp"`
	Options        *Options `json:"options,omitempty"`
}

// Result is the final analysis (AnalyzeResponse on the wire).
type Result struct {
	Status         string       `json:"status"`
	AnalysisReport string       `json:"analysis_report"`
	Metadata       Metadata     `json:"metadata"`
	SerpSummary    *SerpSummary `json:"serp_summary,omitempty"`
}

// ProcessingDuration returns the server reported processing time.
func (r *Result) ProcessingDuration() time.Duration {
	return time.Duration(r.Metadata.ProcessingTime * float64(time.Second))
}

// ControlResponse is returned by cancel, pause and resume.
type ControlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health is returned by GET /api/health.
type Health struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Extra     json.RawMessage `json:"details,omitempty"`
}
