package realtime

import (
	"math"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
)

// StageCount is the number of pipeline stages the client displays.
const StageCount = 3

// TranslateStatus turns a polled status into the events the websocket would
// have pushed. prev is the status seen on the previous poll ("" for none);
// it is used to emit paused and resumed only on transitions.
func TranslateStatus(st *analysis.StatusResponse, prev analysis.JobStatus) []Event {
	if st == nil {
		return nil
	}

	var events []Event
	switch st.Status {
	case analysis.JobStatusProcessing:
		if prev == analysis.JobStatusPaused {
			events = append(events, Event{Type: EventResumed, JobID: st.JobID})
		}
		if st.Progress != nil {
			p := StepToProgress(*st.Progress)
			events = append(events, Event{
				Type:     EventProgress,
				JobID:    st.JobID,
				Progress: &p,
				Message:  p.Message,
			})
		}

	case analysis.JobStatusPaused:
		if prev != analysis.JobStatusPaused {
			ev := Event{Type: EventPaused, JobID: st.JobID}
			if st.Progress != nil {
				ev.Message = st.Progress.Message
			}
			events = append(events, ev)
		}

	case analysis.JobStatusCompleted:
		events = append(events, Event{Type: EventCompleted, JobID: st.JobID, Result: st.Result})

	case analysis.JobStatusFailed:
		events = append(events, Event{Type: EventError, JobID: st.JobID, Message: st.Error})

	case analysis.JobStatusCancelled:
		events = append(events, Event{Type: EventCancelled, JobID: st.JobID, Message: st.Error})
	}
	return events
}

// StepToProgress maps the coarse step progress of the status endpoint onto
// the three displayed stages. The stage progress is the position of the
// overall percentage within the stage's band.
func StepToProgress(sp analysis.StepProgress) ProgressUpdate {
	overall := clampPercent(sp.Percentage)

	var stage int
	if sp.TotalSteps > 0 && sp.CurrentStep > 0 {
		stage = int(math.Ceil(float64(sp.CurrentStep) * StageCount / float64(sp.TotalSteps)))
	} else {
		stage = int(overall/(100.0/StageCount)) + 1
	}
	stage = min(max(stage, 1), StageCount)

	// scaled by StageCount first so integer percentages stay exact
	stageProgress := clampPercent(overall*StageCount - float64(stage-1)*100)

	return ProgressUpdate{
		CurrentStage:    stage,
		OverallProgress: overall,
		StageProgress:   stageProgress,
		Message:         sp.Message,
	}
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 100)
}
