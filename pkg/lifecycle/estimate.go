package lifecycle

import (
	"math"
	"time"
)

// StageBaselines are the typical durations of each stage, used until the
// server reports real progress.
var StageBaselines = [StageCount]time.Duration{
	18 * time.Second,
	22 * time.Second,
	17 * time.Second,
}

// MaxEstimatedProgress caps the local estimate so it never claims completion.
const MaxEstimatedProgress = 95.0

func baselineTotal() time.Duration {
	var total time.Duration
	for _, b := range StageBaselines {
		total += b
	}
	return total
}

// newProgress returns the projection at job start: stage 1 running.
func newProgress(now time.Time) *Progress {
	p := &Progress{
		CurrentStage: 1,
		Timing: Timing{
			StartTime:             now,
			CurrentStageStartTime: now,
			EstimatedTotal:        baselineTotal(),
			EstimatedRemaining:    baselineTotal(),
		},
		Estimated: true,
	}
	setStages(p, 1, 0)
	return p
}

// setStages forces every stage before current to completed, current to
// running and every later stage to pending.
func setStages(p *Progress, current int, stageProgress float64) {
	for i := range p.Stages {
		idx := i + 1
		st := Stage{Index: idx, Name: StageNames[i]}
		switch {
		case idx < current:
			st.Status, st.Progress = StageCompleted, 100
		case idx == current:
			st.Status, st.Progress = StageRunning, stageProgress
		default:
			st.Status, st.Progress = StagePending, 0
		}
		p.Stages[i] = st
	}
}

// baselineRemaining estimates the remaining time from the baselines of the
// current and later stages.
func baselineRemaining(stage int, stageProgress float64) time.Duration {
	if stage < 1 || stage > StageCount {
		return 0
	}
	left := float64(StageBaselines[stage-1]) * (1 - stageProgress/100)
	for i := stage; i < StageCount; i++ {
		left += float64(StageBaselines[i])
	}
	return time.Duration(math.Max(left, 0))
}

// Estimate advances a locally estimated projection to now. Projections that
// already carry server values are returned unchanged.
func Estimate(p Progress, now time.Time) Progress {
	if !p.Estimated {
		return p
	}

	total := baselineTotal()
	elapsed := now.Sub(p.Timing.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}

	stage, stageProgress := StageCount, MaxEstimatedProgress
	var acc time.Duration
	for i, b := range StageBaselines {
		if elapsed < acc+b {
			stage = i + 1
			stageProgress = float64(elapsed-acc) / float64(b) * 100
			break
		}
		acc += b
	}
	stageProgress = math.Min(stageProgress, MaxEstimatedProgress)

	// Stages only move forward, even when the clock jumps.
	if stage < p.CurrentStage {
		stage, stageProgress = p.CurrentStage, p.StageProgress
	}
	if stage > p.CurrentStage {
		p.Timing.CurrentStageStartTime = now
	}

	p.CurrentStage = stage
	p.StageProgress = stageProgress
	p.OverallProgress = math.Min(float64(elapsed)/float64(total)*100, MaxEstimatedProgress)
	setStages(&p, stage, stageProgress)

	p.Timing.EstimatedTotal = total
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}
	p.Timing.EstimatedRemaining = remaining
	return p
}
