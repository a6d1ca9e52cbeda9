package seoconfig_test

import (
	"context"
	"io"
	"net/http/httptest"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/internal/devserver"
	"github.com/lisanmuaddib/seo-analyzer-go/internal/seoconfig"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/config"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/lifecycle"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var request = analysis.Request{
	Keyword:  "sourdough starter",
	Audience: "home bakers",
	Options:  analysis.Options{GenerateDraft: true, IncludeTable: true},
}

var _ = Describe("Components against the development backend", func() {
	var (
		ts       *httptest.Server
		settings config.Settings
		ctx      context.Context
	)

	BeforeEach(func() {
		srv, err := devserver.New(&devserver.Config{
			StageDuration: 150 * time.Millisecond,
			TickInterval:  10 * time.Millisecond,
			Logger:        quietLogger(),
		})
		Expect(err).NotTo(HaveOccurred())
		ts = httptest.NewServer(srv.Router())
		DeferCleanup(func() {
			srv.Close()
			ts.Close()
		})

		settings = config.Default()
		settings.APIBaseURL = ts.URL
		settings.WSInitialDelay = 10 * time.Millisecond
		settings.PollInterval = 20 * time.Millisecond
		ctx = context.Background()
	})

	build := func(s config.Settings, reg prometheus.Registerer) *seoconfig.Components {
		c, err := seoconfig.Build(s, seoconfig.Options{Logger: quietLogger(), Metrics: reg})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(c.Close)
		return c
	}

	status := func(c *seoconfig.Components) func() lifecycle.Status {
		return func() lifecycle.Status { return c.Machine.Snapshot().Status }
	}

	It("completes a job over the websocket", func() {
		reg := prometheus.NewRegistry()
		c := build(settings, reg)

		Expect(c.Machine.Start(ctx, request)).To(Succeed())
		Eventually(func() realtime.Mode { return c.Machine.Snapshot().Channel.Mode }, 2*time.Second).
			Should(Equal(realtime.ModeWebSocket))
		Eventually(status(c), 5*time.Second, 20*time.Millisecond).Should(Equal(lifecycle.StatusCompleted))

		snap := c.Machine.Snapshot()
		Expect(snap.Result).NotTo(BeNil())
		Expect(snap.Result.AnalysisReport).To(ContainSubstring("# SEO Analysis: sourdough starter"))
		Expect(snap.Result.AnalysisReport).To(ContainSubstring("## Theme Coverage"))
		Expect(snap.Progress.OverallProgress).To(Equal(100.0))
		Expect(snap.Progress.Estimated).To(BeFalse())
		Expect(snap.Error).To(BeNil())
		Expect(snap.Statistics.EventsApplied).To(BeNumerically(">", 1))

		n, err := testutil.GatherAndCount(reg, "seo_client_requests_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 1))
	})

	It("completes a job by polling alone", func() {
		settings.WSEnabled = false
		c := build(settings, nil)

		Expect(c.Machine.Start(ctx, request)).To(Succeed())
		Eventually(status(c), 5*time.Second, 20*time.Millisecond).Should(Equal(lifecycle.StatusCompleted))

		snap := c.Machine.Snapshot()
		Expect(snap.Result).NotTo(BeNil())
		Eventually(func() realtime.Mode { return c.Channel.Status().Mode }).Should(Equal(realtime.ModeNone))
	})

	It("pauses, resumes and cancels a live job", func() {
		c := build(settings, nil)
		Expect(c.Machine.Start(ctx, request)).To(Succeed())

		Expect(c.Machine.Pause(ctx)).To(Succeed())
		Expect(c.Machine.Snapshot().Status).To(Equal(lifecycle.StatusPaused))

		stage := c.Machine.Snapshot().Progress.CurrentStage
		Consistently(func() int { return c.Machine.Snapshot().Progress.CurrentStage }, 150*time.Millisecond).
			Should(Equal(stage))

		Expect(c.Machine.Resume(ctx)).To(Succeed())
		Expect(c.Machine.Snapshot().Status).To(Equal(lifecycle.StatusRunning))

		Expect(c.Machine.Cancel(ctx)).To(Succeed())
		Expect(c.Machine.Snapshot().Status).To(Equal(lifecycle.StatusCancelled))

		st, err := c.API.GetStatus(ctx, c.Machine.Snapshot().JobID)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Status).To(Equal(analysis.JobStatusCancelled))
	})

	It("fails to start against an unreachable service and recovers on retry", func() {
		dead := httptest.NewServer(nil)
		deadURL := dead.URL
		dead.Close()

		settings.APIBaseURL = deadURL
		settings.MaxRetries = 0
		c := build(settings, nil)

		err := c.Machine.Start(ctx, request)
		Expect(err).To(HaveOccurred())
		snap := c.Machine.Snapshot()
		Expect(snap.Status).To(Equal(lifecycle.StatusError))
		Expect(snap.Error.Classification.Retryable).To(BeTrue())
		Expect(c.Tracker.Len()).To(Equal(1))
	})
})

var _ = Describe("ReportGenerator", func() {
	It("works without an OpenAI key", func() {
		g, err := seoconfig.ReportGenerator(config.Default(), quietLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(g).NotTo(BeNil())
	})

	It("builds an OpenAI backed generator when a key is set", func() {
		s := config.Default()
		s.OpenAIAPIKey = "sk-test"
		g, err := seoconfig.ReportGenerator(s, quietLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(g).NotTo(BeNil())
	})
})
