package realtime_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	progressFrame  = `{"type":"progress","job_id":"job-1","data":{"current_stage":1,"overall_progress":10,"stage_progress":30,"estimated_remaining":40}}`
	completedFrame = `{"type":"completed","job_id":"job-1","data":{"status":"success","analysis_report":"# Report"}}`
)

var abnormalClose = &websocket.CloseError{Code: websocket.CloseAbnormalClosure}

var _ = Describe("Manager", func() {
	var (
		cfg     *realtime.Config
		dialer  *fakeDialer
		fetcher *fakeFetcher
	)

	BeforeEach(func() {
		cfg = fastConfig()
		dialer = &fakeDialer{}
		fetcher = &fakeFetcher{}
	})

	newManager := func() *realtime.Manager {
		m, err := realtime.NewManager(cfg, dialer, fetcher)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(m.Close)
		return m
	}

	Context("over the websocket", func() {
		It("should forward job events and drop stale or malformed frames", func() {
			conn := newFakeConn(nil,
				progressFrame,
				`{"type":"progress","job_id":"other-job","data":{"current_stage":3,"overall_progress":90}}`,
				`not json`,
				completedFrame,
			)
			dialer.script = append(dialer.script, connStep(conn))
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, channelEvents := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventProgress, realtime.EventCompleted}))
			Expect(jobEvents[0].Source).To(Equal(realtime.ModeWebSocket))
			Expect(jobEvents[0].Progress.OverallProgress).To(BeNumerically("==", 10))
			Expect(jobEvents[1].Result.AnalysisReport).To(Equal("# Report"))
			Expect(dialer.urls).To(Equal([]string{"ws://localhost:8000/ws/progress/job-1"}))

			states := []realtime.ChannelState{}
			for _, ev := range channelEvents {
				states = append(states, ev.Channel.State)
			}
			Expect(states).To(ContainElements(realtime.StateConnecting, realtime.StateConnected))
			Expect(conn.IsClosed()).To(BeTrue())
			Expect(fetcher.calls.Load()).To(BeZero())
		})

		It("should poll for the outcome instead of reconnecting after a normal close", func() {
			conn := newFakeConn(&websocket.CloseError{Code: websocket.CloseNormalClosure}, progressFrame)
			dialer.script = append(dialer.script, connStep(conn))
			fetcher.script = []fetchResult{
				{status: &analysis.StatusResponse{JobID: "job-1", Status: analysis.JobStatusCompleted,
					Result: &analysis.Result{AnalysisReport: "# After close"}}},
			}
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventProgress, realtime.EventCompleted}))
			Expect(jobEvents[0].Source).To(Equal(realtime.ModeWebSocket))
			Expect(jobEvents[1].Source).To(Equal(realtime.ModePolling))
			Expect(jobEvents[1].Result.AnalysisReport).To(Equal("# After close"))
			Expect(dialer.dials.Load()).To(BeEquivalentTo(1))
			Expect(fetcher.calls.Load()).To(BeEquivalentTo(1))
		})

		It("should end the session on a normal close when polling is disabled", func() {
			cfg.PollingEnabled = false
			conn := newFakeConn(&websocket.CloseError{Code: websocket.CloseNormalClosure}, progressFrame)
			dialer.script = append(dialer.script, connStep(conn))
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventProgress}))
			Expect(dialer.dials.Load()).To(BeEquivalentTo(1))
			Expect(fetcher.calls.Load()).To(BeZero())
			Expect(m.Status().State).To(Equal(realtime.StateDisconnected))
		})

		It("should space redials by the exponential backoff", func() {
			cfg.InitialDelay = 40 * time.Millisecond
			cfg.Multiplier = 2
			cfg.MaxDelay = time.Second
			cfg.MaxRetries = 3
			cfg.PollingEnabled = false
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventError}))

			stamps := dialer.timestamps()
			Expect(stamps).To(HaveLen(4))
			want := []time.Duration{40 * time.Millisecond, 80 * time.Millisecond, 160 * time.Millisecond}
			for i, w := range want {
				gap := stamps[i+1].Sub(stamps[i])
				Expect(gap).To(BeNumerically(">=", w), "gap %d", i)
				Expect(gap).To(BeNumerically("<", w+50*time.Millisecond), "gap %d", i)
			}
		})

		It("should reconnect after an abnormal close and reset the attempt counter on open", func() {
			dialer.script = append(dialer.script,
				connStep(newFakeConn(abnormalClose, progressFrame)),
				func() (realtime.Conn, error) { return nil, errors.New("refused") },
				connStep(newFakeConn(abnormalClose)),
				connStep(newFakeConn(nil, completedFrame)),
			)
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, channelEvents := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventProgress, realtime.EventCompleted}))
			Expect(dialer.dials.Load()).To(BeEquivalentTo(4))

			maxAttempts := 0
			for _, ev := range channelEvents {
				maxAttempts = max(maxAttempts, ev.Channel.ReconnectAttempts)
			}
			Expect(maxAttempts).To(Equal(2))
			Expect(fetcher.calls.Load()).To(BeZero())
		})
	})

	Context("when the websocket is unavailable", func() {
		It("should spend exactly the reconnect budget and then poll", func() {
			fetcher.script = []fetchResult{
				{status: &analysis.StatusResponse{JobID: "job-1", Status: analysis.JobStatusProcessing,
					Progress: &analysis.StepProgress{CurrentStep: 2, TotalSteps: 3, Percentage: 60}}},
				{status: &analysis.StatusResponse{JobID: "job-1", Status: analysis.JobStatusCompleted,
					Result: &analysis.Result{AnalysisReport: "# Polled"}}},
			}
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, channelEvents := drain(events)
			Expect(dialer.dials.Load()).To(BeEquivalentTo(realtime.DefaultMaxRetries + 1))
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventProgress, realtime.EventCompleted}))
			Expect(jobEvents[0].Source).To(Equal(realtime.ModePolling))
			Expect(jobEvents[0].Progress.CurrentStage).To(Equal(2))
			Expect(jobEvents[1].Result.AnalysisReport).To(Equal("# Polled"))

			last := channelEvents[len(channelEvents)-1].Channel
			Expect(last.Mode).To(Equal(realtime.ModePolling))
			Expect(last.PollCount).To(Equal(2))
			Expect(last.ReconnectAttempts).To(Equal(realtime.DefaultMaxRetries))
		})

		It("should emit an error when polling is disabled", func() {
			cfg.PollingEnabled = false
			m, err := realtime.NewManager(cfg, dialer, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(m.Close)

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventError}))
			Expect(jobEvents[0].Message).NotTo(BeEmpty())
			Expect(m.Status().State).To(Equal(realtime.StateError))
		})
	})

	Context("polling only", func() {
		BeforeEach(func() {
			cfg.WebSocketEnabled = false
		})

		It("should keep polling through retryable errors", func() {
			fetcher.script = []fetchResult{
				{err: &transport.NetworkError{Method: "GET", URL: "u", Err: errors.New("reset")}},
				{status: &analysis.StatusResponse{Status: analysis.JobStatusFailed, Error: "crawler crashed"}},
			}
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventError}))
			Expect(jobEvents[0].Message).To(Equal("crawler crashed"))
			Expect(jobEvents[0].JobID).To(Equal("job-1"))
			Expect(fetcher.calls.Load()).To(BeEquivalentTo(2))
			Expect(dialer.dials.Load()).To(BeZero())
		})

		It("should stop on a non-retryable error", func() {
			fetcher.script = []fetchResult{{err: &transport.HTTPError{StatusCode: http.StatusNotFound}}}
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventError}))
			Expect(fetcher.calls.Load()).To(BeEquivalentTo(1))
		})

		It("should give up after the polling budget", func() {
			cfg.MaxPolls = 3
			fetcher.script = []fetchResult{{status: &analysis.StatusResponse{Status: analysis.JobStatusPending}}}
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			jobEvents, _ := drain(events)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventError}))
			Expect(fetcher.calls.Load()).To(BeEquivalentTo(3))
		})
	})

	Context("teardown", func() {
		It("should be idempotent and close the socket", func() {
			conn := newFakeConn(nil, progressFrame)
			dialer.script = append(dialer.script, connStep(conn))
			m := newManager()

			events, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() realtime.ChannelState { return m.Status().State }).Should(Equal(realtime.StateConnected))

			m.Close()
			m.Close()

			Eventually(events).Should(BeClosed())
			Expect(conn.IsClosed()).To(BeTrue())
			Expect(m.Status()).To(Equal(realtime.ChannelStatus{State: realtime.StateDisconnected, Mode: realtime.ModeNone}))
		})

		It("should tear down the previous session on a new Connect", func() {
			first := newFakeConn(nil)
			second := newFakeConn(nil, completedFrame)
			dialer.script = append(dialer.script, connStep(first), connStep(second))
			m := newManager()

			events1, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() realtime.ChannelState { return m.Status().State }).Should(Equal(realtime.StateConnected))

			events2, err := m.Connect(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())

			Eventually(events1).Should(BeClosed())
			Expect(first.IsClosed()).To(BeTrue())

			jobEvents, _ := drain(events2)
			Expect(types(jobEvents)).To(Equal([]realtime.EventType{realtime.EventCompleted}))
		})

		It("should end the session when the caller's context is cancelled", func() {
			dialer.script = append(dialer.script, connStep(newFakeConn(nil)))
			m := newManager()

			ctx, cancel := context.WithCancel(context.Background())
			events, err := m.Connect(ctx, "job-1")
			Expect(err).NotTo(HaveOccurred())
			cancel()

			jobEvents, _ := drain(events)
			Expect(jobEvents).To(BeEmpty())
		})

		It("should require a job id", func() {
			m := newManager()
			_, err := m.Connect(context.Background(), "")
			Expect(err).To(HaveOccurred())
		})
	})
})
