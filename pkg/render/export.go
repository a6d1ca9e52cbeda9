package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/lifecycle"
)

// ErrNoResult is returned when exporting a job that has not completed.
var ErrNoResult = errors.New("no analysis result to export")

// Export is the JSON export document.
type Export struct {
	JobID      string               `json:"job_id"`
	Status     lifecycle.Status     `json:"status"`
	Request    *analysis.Request    `json:"request,omitempty"`
	Result     *analysis.Result     `json:"result,omitempty"`
	Error      *lifecycle.JobError  `json:"error,omitempty"`
	Statistics lifecycle.Statistics `json:"statistics"`
	Stages     []lifecycle.Stage    `json:"stages,omitempty"`
	ExportedAt time.Time            `json:"exported_at"`
}

// NewExport builds the export document from a snapshot.
func NewExport(s lifecycle.Snapshot, now time.Time) Export {
	exp := Export{
		JobID:      s.JobID,
		Status:     s.Status,
		Request:    s.Request,
		Result:     s.Result,
		Error:      s.Error,
		Statistics: s.Statistics,
		ExportedAt: now,
	}
	if s.Progress != nil {
		exp.Stages = s.Progress.Stages[:]
	}
	return exp
}

// WriteJSON writes the indented JSON export of s.
func WriteJSON(w io.Writer, s lifecycle.Snapshot, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewExport(s, now)); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// WriteMarkdown writes the analysis report with a metadata header.
func WriteMarkdown(w io.Writer, s lifecycle.Snapshot) error {
	if s.Result == nil {
		return ErrNoResult
	}
	meta := s.Result.Metadata

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "job_id: %s\n", s.JobID)
	fmt.Fprintf(&b, "keyword: %q\n", meta.Keyword)
	fmt.Fprintf(&b, "audience: %q\n", meta.Audience)
	if meta.Timestamp != "" {
		fmt.Fprintf(&b, "generated_at: %s\n", meta.Timestamp)
	}
	fmt.Fprintf(&b, "processing_time: %s\n", s.Result.ProcessingDuration().Round(time.Millisecond))
	if meta.TokenUsage > 0 {
		fmt.Fprintf(&b, "token_usage: %d\n", meta.TokenUsage)
	}
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(s.Result.AnalysisReport))
	b.WriteString("\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	return nil
}
