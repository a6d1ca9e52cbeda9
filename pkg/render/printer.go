// Package render presents lifecycle snapshots on a terminal and exports
// finished jobs.
package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/lifecycle"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
)

// Printer writes one line per visible change of the snapshot.
type Printer struct {
	out     io.Writer
	noColor bool
	last    string
	now     func() time.Time
}

func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, noColor: noColor, now: time.Now}
}

func (p *Printer) paint(attr color.Attribute, s string) string {
	if p.noColor {
		return s
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}

func statusColor(s lifecycle.Status) color.Attribute {
	switch s {
	case lifecycle.StatusCompleted:
		return color.FgGreen
	case lifecycle.StatusError:
		return color.FgRed
	case lifecycle.StatusPaused, lifecycle.StatusCancelled:
		return color.FgYellow
	default:
		return color.FgCyan
	}
}

// Line renders the one line progress view of s.
func Line(s lifecycle.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", s.Status)

	if p := s.Progress; p != nil && s.Status != lifecycle.StatusIdle {
		idx := min(max(p.CurrentStage, 1), lifecycle.StageCount) - 1
		fmt.Fprintf(&b, " stage %d/%d %s %3.0f%% (stage %3.0f%%)",
			p.CurrentStage, lifecycle.StageCount, lifecycle.StageNames[idx],
			p.OverallProgress, p.StageProgress)
		if !s.Status.Terminal() && p.Timing.EstimatedRemaining > 0 {
			fmt.Fprintf(&b, " ~%s left", p.Timing.EstimatedRemaining.Round(time.Second))
		}
		if p.Estimated {
			b.WriteString(" (estimated)")
		}
		if p.Message != "" && !s.Status.Terminal() {
			fmt.Fprintf(&b, " %s", p.Message)
		}
	}

	if s.Channel.Mode != realtime.ModeNone {
		fmt.Fprintf(&b, " via %s", s.Channel.Mode)
		if s.Channel.State != realtime.StateConnected {
			fmt.Fprintf(&b, " (%s)", s.Channel.State)
		}
	}
	return b.String()
}

// Print writes s when its rendering differs from the previous call.
func (p *Printer) Print(s lifecycle.Snapshot) {
	line := Line(s)
	if line == p.last {
		return
	}
	p.last = line

	status := fmt.Sprintf("[%s]", s.Status)
	fmt.Fprintln(p.out, p.paint(statusColor(s.Status), status)+strings.TrimPrefix(line, status))
}

// Summary writes the final report of a finished job.
func (p *Printer) Summary(s lifecycle.Snapshot) {
	switch s.Status {
	case lifecycle.StatusCompleted:
		fmt.Fprintln(p.out, p.paint(color.FgGreen, "Analysis completed"))
		if s.Result != nil {
			meta := s.Result.Metadata
			fmt.Fprintf(p.out, "  keyword:         %s\n", meta.Keyword)
			fmt.Fprintf(p.out, "  audience:        %s\n", meta.Audience)
			fmt.Fprintf(p.out, "  processing time: %s\n", s.Result.ProcessingDuration().Round(time.Millisecond))
			if meta.TokenUsage > 0 {
				fmt.Fprintf(p.out, "  token usage:     %d\n", meta.TokenUsage)
			}
			if serp := s.Result.SerpSummary; serp != nil {
				fmt.Fprintf(p.out, "  SERP results:    %d (avg %.0f words)\n", serp.TotalResults, serp.AvgWordCount)
			}
		}
	case lifecycle.StatusError:
		fmt.Fprintln(p.out, p.paint(color.FgRed, "Analysis failed"))
		if s.Error != nil {
			c := s.Error.Classification
			fmt.Fprintf(p.out, "  %s\n", c.UserMessage)
			fmt.Fprintf(p.out, "  type: %s, severity: %s, retryable: %t\n", c.Type, c.Severity, c.Retryable)
		}
	case lifecycle.StatusCancelled:
		fmt.Fprintln(p.out, p.paint(color.FgYellow, "Analysis cancelled"))
	default:
		fmt.Fprintf(p.out, "Analysis %s\n", s.Status)
	}
	fmt.Fprintf(p.out, "  duration:        %s\n", s.Statistics.Duration(p.now()).Round(time.Millisecond))
	if s.Statistics.Retries > 0 {
		fmt.Fprintf(p.out, "  retries:         %d\n", s.Statistics.Retries)
	}
}

// Stages writes the per stage checklist.
func (p *Printer) Stages(s lifecycle.Snapshot) {
	if s.Progress == nil {
		return
	}
	for _, st := range s.Progress.Stages {
		mark := map[lifecycle.StageStatus]string{
			lifecycle.StagePending:   " ",
			lifecycle.StageRunning:   ">",
			lifecycle.StageCompleted: "x",
			lifecycle.StageError:     "!",
		}[st.Status]
		fmt.Fprintf(p.out, "  [%s] %d. %s %3.0f%%\n", mark, st.Index, st.Name, st.Progress)
		if st.Error != "" {
			fmt.Fprintf(p.out, "        %s\n", p.paint(color.FgRed, st.Error))
		}
		for _, sub := range st.Subtasks() {
			switch {
			case sub.Done:
				fmt.Fprintf(p.out, "        - %s (done)\n", sub.Name)
			case sub.Active:
				fmt.Fprintf(p.out, "        - %s ...\n", sub.Name)
			}
		}
	}
}

// ErrorStats writes the error tracker summary.
func (p *Printer) ErrorStats(sum errclass.Summary) {
	fmt.Fprintf(p.out, "Errors: %d tracked, %d unresolved\n", sum.Total, sum.Unresolved)
	if sum.Total == 0 {
		return
	}

	types := make([]string, 0, len(sum.ByType))
	for t, n := range sum.ByType {
		types = append(types, fmt.Sprintf("%s=%d", t, n))
	}
	sort.Strings(types)
	fmt.Fprintf(p.out, "  by type:        %s\n", strings.Join(types, " "))

	severities := make([]string, 0, len(sum.BySeverity))
	for sev, n := range sum.BySeverity {
		severities = append(severities, fmt.Sprintf("%s=%d", sev, n))
	}
	sort.Strings(severities)
	fmt.Fprintf(p.out, "  by severity:    %s\n", strings.Join(severities, " "))

	if sum.MostFrequent != "" {
		fmt.Fprintf(p.out, "  most frequent:  %s\n", sum.MostFrequent)
	}
	fmt.Fprintf(p.out, "  rate:           %.2f/min\n", sum.RatePerMinute)
	if sum.MeanResolution > 0 {
		fmt.Fprintf(p.out, "  mean resolution: %s\n", sum.MeanResolution.Round(time.Millisecond))
	}
}
