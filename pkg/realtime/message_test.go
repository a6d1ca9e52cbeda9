package realtime_test

import (
	"errors"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseMessage", func() {
	It("should decode progress updates", func() {
		ev, err := realtime.ParseMessage([]byte(`{"type":"progress","job_id":"j1","data":{"current_stage":2,"overall_progress":45.5,"stage_progress":30,"estimated_remaining":20,"message":"Crawling"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Type).To(Equal(realtime.EventProgress))
		Expect(ev.JobID).To(Equal("j1"))
		Expect(ev.Progress.CurrentStage).To(Equal(2))
		Expect(ev.Progress.OverallProgress).To(BeNumerically("==", 45.5))
		Expect(ev.Progress.EstimatedRemaining).To(BeNumerically("==", 20))
		Expect(ev.Message).To(Equal("Crawling"))
	})

	It("should decode completed results, bare or wrapped", func() {
		ev, err := realtime.ParseMessage([]byte(`{"type":"completed","job_id":"j1","data":{"status":"success","analysis_report":"# R","metadata":{"keyword":"seo"}}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Result.AnalysisReport).To(Equal("# R"))

		ev, err = realtime.ParseMessage([]byte(`{"type":"completed","job_id":"j1","data":{"result":{"analysis_report":"# W"}}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Result.AnalysisReport).To(Equal("# W"))

		ev, err = realtime.ParseMessage([]byte(`{"type":"completed","job_id":"j1"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Result).To(BeNil())
		Expect(ev.Terminal()).To(BeTrue())
	})

	It("should extract error messages from strings and objects", func() {
		ev, err := realtime.ParseMessage([]byte(`{"type":"error","job_id":"j1","data":{"message":"SERP failed"}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Message).To(Equal("SERP failed"))

		ev, err = realtime.ParseMessage([]byte(`{"type":"error","job_id":"j1","data":"boom"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Message).To(Equal("boom"))
	})

	It("should accept control events without data", func() {
		for _, t := range []string{"paused", "resumed", "cancelled"} {
			ev, err := realtime.ParseMessage([]byte(`{"type":"` + t + `","job_id":"j1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(ev.Type)).To(Equal(t))
		}
	})

	DescribeTable("rejects malformed frames",
		func(raw string) {
			_, err := realtime.ParseMessage([]byte(raw))
			Expect(errors.Is(err, realtime.ErrMalformedMessage)).To(BeTrue())
		},
		Entry("not json", `hello`),
		Entry("unknown type", `{"type":"bogus","job_id":"j1"}`),
		Entry("channel type is internal", `{"type":"channel","job_id":"j1"}`),
		Entry("progress without data", `{"type":"progress","job_id":"j1"}`),
		Entry("progress with wrong data", `{"type":"progress","job_id":"j1","data":"x"}`),
	)
})

var _ = Describe("TranslateStatus", func() {
	It("should map processing steps onto stages", func() {
		events := realtime.TranslateStatus(&analysis.StatusResponse{
			JobID:    "j1",
			Status:   analysis.JobStatusProcessing,
			Progress: &analysis.StepProgress{CurrentStep: 2, TotalSteps: 5, Percentage: 50, Message: "working"},
		}, "")
		Expect(types(events)).To(Equal([]realtime.EventType{realtime.EventProgress}))
		p := events[0].Progress
		Expect(p.CurrentStage).To(Equal(2))
		Expect(p.OverallProgress).To(BeNumerically("==", 50))
		Expect(p.StageProgress).To(BeNumerically("~", 50, 0.01))
		Expect(p.EstimatedRemaining).To(BeZero())
	})

	It("should derive the stage from the percentage when steps are missing", func() {
		p := realtime.StepToProgress(analysis.StepProgress{Percentage: 80})
		Expect(p.CurrentStage).To(Equal(3))
		p = realtime.StepToProgress(analysis.StepProgress{Percentage: 100})
		Expect(p.CurrentStage).To(Equal(3))
		Expect(p.StageProgress).To(BeNumerically("==", 100))
		p = realtime.StepToProgress(analysis.StepProgress{Percentage: -5})
		Expect(p.CurrentStage).To(Equal(1))
		Expect(p.OverallProgress).To(BeZero())
	})

	DescribeTable("should place the overall percentage exactly within the stage band",
		func(step, total int, percentage float64, stage int, stageProgress float64) {
			p := realtime.StepToProgress(analysis.StepProgress{CurrentStep: step, TotalSteps: total, Percentage: percentage})
			Expect(p.CurrentStage).To(Equal(stage))
			Expect(p.StageProgress).To(Equal(stageProgress))
		},
		Entry("start of stage one", 1, 3, 0.0, 1, 0.0),
		Entry("middle of stage one", 1, 3, 20.0, 1, 60.0),
		Entry("middle of stage two", 2, 3, 50.0, 2, 50.0),
		Entry("late in stage three", 3, 3, 90.0, 3, 70.0),
		Entry("finished", 3, 3, 100.0, 3, 100.0),
		Entry("finished without steps", 0, 0, 100.0, 3, 100.0),
	)

	It("should emit paused and resumed only on transitions", func() {
		paused := &analysis.StatusResponse{JobID: "j1", Status: analysis.JobStatusPaused}
		Expect(types(realtime.TranslateStatus(paused, analysis.JobStatusProcessing))).To(Equal([]realtime.EventType{realtime.EventPaused}))
		Expect(realtime.TranslateStatus(paused, analysis.JobStatusPaused)).To(BeEmpty())

		resumed := &analysis.StatusResponse{JobID: "j1", Status: analysis.JobStatusProcessing,
			Progress: &analysis.StepProgress{CurrentStep: 1, TotalSteps: 3, Percentage: 10}}
		Expect(types(realtime.TranslateStatus(resumed, analysis.JobStatusPaused))).To(Equal(
			[]realtime.EventType{realtime.EventResumed, realtime.EventProgress}))
	})

	It("should map terminal statuses", func() {
		Expect(types(realtime.TranslateStatus(&analysis.StatusResponse{Status: analysis.JobStatusCompleted, Result: &analysis.Result{}}, ""))).
			To(Equal([]realtime.EventType{realtime.EventCompleted}))
		failed := realtime.TranslateStatus(&analysis.StatusResponse{Status: analysis.JobStatusFailed, Error: "quota"}, "")
		Expect(types(failed)).To(Equal([]realtime.EventType{realtime.EventError}))
		Expect(failed[0].Message).To(Equal("quota"))
		Expect(types(realtime.TranslateStatus(&analysis.StatusResponse{Status: analysis.JobStatusCancelled}, ""))).
			To(Equal([]realtime.EventType{realtime.EventCancelled}))
		Expect(realtime.TranslateStatus(&analysis.StatusResponse{Status: analysis.JobStatusPending}, "")).To(BeEmpty())
		Expect(realtime.TranslateStatus(nil, "")).To(BeNil())
	})
})

var _ = Describe("Config", func() {
	It("should derive websocket URLs from the API base", func() {
		cfg := realtime.DefaultConfig("http://localhost:8000")
		u, err := cfg.ProgressURL("job 1")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(Equal("ws://localhost:8000/ws/progress/job%201"))

		cfg = realtime.DefaultConfig("https://api.example.com/")
		u, err = cfg.ProgressURL("j")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(Equal("wss://api.example.com/ws/progress/j"))

		cfg.WSBaseURL = "ws://push.example.com"
		u, err = cfg.ProgressURL("j")
		Expect(err).NotTo(HaveOccurred())
		Expect(u).To(Equal("ws://push.example.com/ws/progress/j"))
	})

	It("should refuse to disable both channels", func() {
		cfg := realtime.DefaultConfig("http://x")
		cfg.WebSocketEnabled = false
		cfg.PollingEnabled = false
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})
