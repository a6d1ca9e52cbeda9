package lifecycle

import (
	"math"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
)

// Reduce applies one normalized channel event to state and returns the new
// state. It is pure: state is not modified.
//
// Job events are applied only while the job is running or paused; in every
// other status they are counted as ignored. Channel events only update the
// channel status and are always applied.
func Reduce(state Snapshot, ev realtime.Event, now time.Time) Snapshot {
	next := state.Clone()

	if ev.Type == realtime.EventChannel {
		if ev.Channel != nil {
			next.Channel = *ev.Channel
		}
		return next
	}

	if next.Status != StatusRunning && next.Status != StatusPaused {
		next.Statistics.EventsIgnored++
		return next
	}

	switch ev.Type {
	case realtime.EventProgress:
		if ev.Progress == nil {
			next.Statistics.EventsIgnored++
			return next
		}
		next.Progress = applyProgress(next.Progress, *ev.Progress, now)
		next.Status = StatusRunning
		next.CanCancel, next.CanPause, next.CanResume = true, true, false

	case realtime.EventCompleted:
		p := ensureProgress(next.Progress, now)
		p.CurrentStage = StageCount
		p.StageProgress = 100
		p.OverallProgress = 100
		p.Estimated = false
		setStages(p, StageCount+1, 0)
		p.Timing.EstimatedRemaining = 0
		p.Timing.EstimatedTotal = now.Sub(p.Timing.StartTime)
		next.Progress = p
		next.Result = ev.Result
		next.Status = StatusCompleted
		next.Error = nil
		finish(&next, now)

	case realtime.EventError:
		jobErr := jobFailure(ev.Message)
		if next.Progress != nil {
			idx := next.Progress.CurrentStage - 1
			if idx >= 0 && idx < StageCount {
				next.Progress.Stages[idx].Status = StageError
				next.Progress.Stages[idx].Error = jobErr.Classification.UserMessage
			}
		}
		next.Error = jobErr
		next.Status = StatusError
		finish(&next, now)

	case realtime.EventPaused:
		next.Status = StatusPaused
		next.CanCancel, next.CanPause, next.CanResume = true, false, true

	case realtime.EventResumed:
		next.Status = StatusRunning
		next.CanCancel, next.CanPause, next.CanResume = true, true, false

	case realtime.EventCancelled:
		next.Status = StatusCancelled
		finish(&next, now)

	default:
		next.Statistics.EventsIgnored++
		return next
	}

	next.Statistics.EventsApplied++
	return next
}

// finish clears the control flags and stamps the end time.
func finish(s *Snapshot, now time.Time) {
	s.CanCancel, s.CanPause, s.CanResume = false, false, false
	s.Statistics.EndTime = now
	if s.Progress != nil {
		s.Progress.Timing.EstimatedRemaining = 0
	}
}

func ensureProgress(p *Progress, now time.Time) *Progress {
	if p == nil {
		return newProgress(now)
	}
	return p
}

func applyProgress(prev *Progress, upd realtime.ProgressUpdate, now time.Time) *Progress {
	p := ensureProgress(prev, now)

	stage := min(max(upd.CurrentStage, 1), StageCount)
	stageProgress := clampPercent(upd.StageProgress)

	switch {
	case stage < p.CurrentStage:
		// A late update for an earlier stage: keep the stage we are in.
		stage = p.CurrentStage
		stageProgress = p.StageProgress
	case stage > p.CurrentStage:
		p.Timing.CurrentStageStartTime = now
	}

	p.CurrentStage = stage
	p.StageProgress = stageProgress
	p.OverallProgress = clampPercent(upd.OverallProgress)
	setStages(p, stage, stageProgress)

	remaining := time.Duration(upd.EstimatedRemaining * float64(time.Second))
	if remaining <= 0 {
		remaining = baselineRemaining(stage, stageProgress)
	}
	p.Timing.EstimatedRemaining = remaining
	p.Timing.EstimatedTotal = now.Sub(p.Timing.StartTime) + remaining

	if upd.Message != "" {
		p.Message = upd.Message
	}
	p.Estimated = false
	return p
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 100)
}
