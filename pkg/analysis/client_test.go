package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Request validation", func() {
	DescribeTable("keywords and audiences",
		func(keyword, audience string, valid bool) {
			err := analysis.Request{Keyword: keyword, Audience: audience}.Validate()
			if valid {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, analysis.ErrInvalidRequest)).To(BeTrue())
		},
		Entry("simple keyword", "seo tools", "marketers", true),
		Entry("CJK keyword", "東京 ラーメン", "旅行者", true),
		Entry("hangul and digits", "서울 2024", "students", true),
		Entry("surrounding whitespace", "  seo  ", " marketers ", true),
		Entry("empty keyword", "   ", "marketers", false),
		Entry("punctuation", "seo-tools!", "marketers", false),
		Entry("cyrillic keyword", "привет мир", "marketers", false),
		Entry("greek keyword", "αβγ", "marketers", false),
		Entry("arabic keyword", "مرحبا", "marketers", false),
		Entry("accented latin", "café", "marketers", false),
		Entry("fullwidth digits", "ｓｅｏ １２３", "marketers", false),
		Entry("hiragana keyword", "すし", "marketers", true),
		Entry("too long keyword", strings.Repeat("a", 51), "marketers", false),
		Entry("exactly 50 runes", strings.Repeat("語", 50), "marketers", true),
		Entry("empty audience", "seo", "", false),
		Entry("too long audience", "seo", strings.Repeat("x", 201), false),
	)

	It("should name the offending field", func() {
		err := analysis.Request{Keyword: "seo", Audience: ""}.Validate()
		var vErr *analysis.ValidationError
		Expect(errors.As(err, &vErr)).To(BeTrue())
		Expect(vErr.Field).To(Equal("audience"))
	})

	It("should collapse inner whitespace when normalizing", func() {
		n := analysis.Request{Keyword: " seo \t tools ", Audience: " a "}.Normalize()
		Expect(n.Keyword).To(Equal("seo tools"))
		Expect(n.Audience).To(Equal("a"))
	})
})

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		client   *analysis.Client
		mu       sync.Mutex
		requests []string
		handler  http.HandlerFunc
	)

	BeforeEach(func() {
		requests = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			requests = append(requests, r.Method+" "+r.URL.Path)
			mu.Unlock()
			handler(w, r)
		}))

		logger := logrus.New()
		logger.SetOutput(io.Discard)
		cfg := transport.DefaultConfig(server.URL)
		cfg.RetryBaseDelay = time.Millisecond
		cfg.RetryMaxDelay = time.Millisecond
		cfg.Logger = logger
		t, err := transport.NewClient(cfg)
		Expect(err).NotTo(HaveOccurred())
		client = analysis.NewClient(t, logger)
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("CreateJob", func() {
		It("should post the normalized request and return the job handle", func() {
			var got analysis.Request
			handler = func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte(`{"job_id":"job-1","status":"pending","message":"queued","status_url":"/api/analysis/job-1/status"}`))
			}

			created, err := client.CreateJob(context.Background(), analysis.Request{
				Keyword:  " seo  tools ",
				Audience: "marketers",
				Options:  analysis.DefaultOptions(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.JobID).To(Equal("job-1"))
			Expect(created.Status).To(Equal(analysis.JobStatusPending))
			Expect(got.Keyword).To(Equal("seo tools"))
			Expect(got.Options.IncludeFAQ).To(BeTrue())
			Expect(requests).To(Equal([]string{"POST /api/analysis/async"}))
		})

		It("should reject invalid requests without calling the server", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {}
			_, err := client.CreateJob(context.Background(), analysis.Request{Keyword: "", Audience: "x"})
			Expect(errors.Is(err, analysis.ErrInvalidRequest)).To(BeTrue())
			Expect(requests).To(BeEmpty())
		})

		It("should not retry a 500 because the job may exist", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}
			_, err := client.CreateJob(context.Background(), analysis.Request{Keyword: "seo", Audience: "x"})
			Expect(err).To(HaveOccurred())
			Expect(requests).To(HaveLen(1))
		})

		It("should retry a 503", func() {
			calls := 0
			handler = func(w http.ResponseWriter, r *http.Request) {
				calls++
				if calls == 1 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = w.Write([]byte(`{"job_id":"job-2","status":"pending"}`))
			}
			created, err := client.CreateJob(context.Background(), analysis.Request{Keyword: "seo", Audience: "x"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.JobID).To(Equal("job-2"))
			Expect(requests).To(HaveLen(2))
		})

		It("should fail when the response has no job id", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"pending"}`))
			}
			_, err := client.CreateJob(context.Background(), analysis.Request{Keyword: "seo", Audience: "x"})
			Expect(err).To(MatchError(ContainSubstring("job_id")))
		})
	})

	Describe("GetStatus", func() {
		It("should decode progress and results", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{
					"job_id":"job-1","status":"completed",
					"progress":{"current_step":3,"total_steps":3,"message":"done","percentage":100},
					"result":{"status":"success","analysis_report":"# Report","metadata":{"keyword":"seo","audience":"x","processing_time":12.5,"token_usage":900,"timestamp":"2026-01-01T00:00:00Z"}}
				}`))
			}
			status, err := client.GetStatus(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status.Terminal()).To(BeTrue())
			Expect(status.Progress.Percentage).To(BeNumerically("==", 100))
			Expect(status.Result.AnalysisReport).To(Equal("# Report"))
			Expect(status.Result.ProcessingDuration()).To(Equal(12500 * time.Millisecond))
			Expect(requests).To(Equal([]string{"GET /api/analysis/job-1/status"}))
		})

		It("should surface 404 as an HTTP error", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}
			_, err := client.GetStatus(context.Background(), "missing")
			var httpErr *transport.HTTPError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("job control", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			}
		})

		It("should call the cancel, pause and resume endpoints", func() {
			_, err := client.Pause(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Resume(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())
			resp, err := client.Cancel(context.Background(), "job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("ok"))
			Expect(requests).To(Equal([]string{
				"POST /api/analysis/job-1/pause",
				"POST /api/analysis/job-1/resume",
				"POST /api/analysis/job-1/cancel",
			}))
		})

		It("should require a job id", func() {
			_, err := client.Cancel(context.Background(), "")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Health", func() {
		It("should decode the health payload", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"healthy","timestamp":"2026-01-01T00:00:00Z"}`))
			}
			health, err := client.Health(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(health.Status).To(Equal("healthy"))
		})
	})
})
