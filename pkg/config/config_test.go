package config_test

import (
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

var _ = Describe("FromEnv", func() {
	It("uses defaults for an empty environment", func() {
		s, err := config.FromEnv(env(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(config.Default()))
	})

	It("reads every variable", func() {
		s, err := config.FromEnv(env(map[string]string{
			"SEO_API_BASE_URL":          "https://seo.example.com/",
			"SEO_WS_BASE_URL":           "wss://push.example.com",
			"SEO_REQUEST_TIMEOUT":       "45",
			"SEO_SMART_TIMEOUT":         "false",
			"SEO_MAX_RETRIES":           "1",
			"SEO_RETRY_BASE_DELAY_MS":   "250",
			"SEO_RATE_LIMIT_RPS":        "2.5",
			"SEO_WS_ENABLED":            "true",
			"SEO_WS_MAX_RETRIES":        "5",
			"SEO_WS_INITIAL_DELAY_MS":   "100",
			"SEO_WS_BACKOFF_MULTIPLIER": "1.5",
			"SEO_POLL_ENABLED":          "true",
			"SEO_POLL_INTERVAL_MS":      "500",
			"SEO_POLL_MAX":              "20",
			"SEO_AUTO_RETRY":            "1",
			"LOG_LEVEL":                 "debug",
			"LOG_FORMAT":                "JSON",
			"OPENAI_API_KEY":            "sk-test",
			"OPENAI_MODEL":              "gpt-4o",
		}))
		Expect(err).NotTo(HaveOccurred())

		Expect(s.APIBaseURL).To(Equal("https://seo.example.com"))
		Expect(s.WSBaseURL).To(Equal("wss://push.example.com"))
		Expect(s.RequestTimeout).To(Equal(45 * time.Second))
		Expect(s.SmartTimeout).To(BeFalse())
		Expect(s.MaxRetries).To(Equal(1))
		Expect(s.RetryBaseDelay).To(Equal(250 * time.Millisecond))
		Expect(s.RateLimitRPS).To(Equal(2.5))
		Expect(s.WSMaxRetries).To(Equal(5))
		Expect(s.WSInitialDelay).To(Equal(100 * time.Millisecond))
		Expect(s.WSBackoffMultiplier).To(Equal(1.5))
		Expect(s.PollInterval).To(Equal(500 * time.Millisecond))
		Expect(s.PollMax).To(Equal(20))
		Expect(s.AutoRetry).To(BeTrue())
		Expect(s.LogLevel).To(Equal(logrus.DebugLevel))
		Expect(s.LogFormat).To(Equal("json"))
		Expect(s.OpenAIAPIKey).To(Equal("sk-test"))
		Expect(s.OpenAIModel).To(Equal("gpt-4o"))
	})

	It("accepts a duration for the request timeout", func() {
		s, err := config.FromEnv(env(map[string]string{"SEO_REQUEST_TIMEOUT": "1m30s"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.RequestTimeout).To(Equal(90 * time.Second))
	})

	It("reports every malformed variable", func() {
		_, err := config.FromEnv(env(map[string]string{
			"SEO_MAX_RETRIES": "three",
			"SEO_WS_ENABLED":  "maybe",
			"LOG_LEVEL":       "chatty",
		}))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("SEO_MAX_RETRIES"))
		Expect(err.Error()).To(ContainSubstring("SEO_WS_ENABLED"))
		Expect(err.Error()).To(ContainSubstring("LOG_LEVEL"))
	})

	DescribeTable("rejects invalid values",
		func(vars map[string]string, want string) {
			_, err := config.FromEnv(env(vars))
			Expect(err).To(MatchError(ContainSubstring(want)))
		},
		Entry("non http base URL", map[string]string{"SEO_API_BASE_URL": "ftp://x"}, "SEO_API_BASE_URL"),
		Entry("http websocket URL", map[string]string{"SEO_WS_BASE_URL": "http://x"}, "SEO_WS_BASE_URL"),
		Entry("both channels off", map[string]string{"SEO_WS_ENABLED": "false", "SEO_POLL_ENABLED": "false"}, "at least one"),
		Entry("shrinking backoff", map[string]string{"SEO_WS_BACKOFF_MULTIPLIER": "0.5"}, "multiplier"),
		Entry("negative retries", map[string]string{"SEO_MAX_RETRIES": "-1"}, "negative"),
		Entry("unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"),
	)
})

var _ = Describe("Settings", func() {
	It("builds the transport and realtime configs", func() {
		s := config.Default()
		s.MaxRetries = 1
		s.PollMax = 7
		s.WSEnabled = false
		logger := logrus.New()

		tc := s.Transport(logger)
		Expect(tc.BaseURL).To(Equal(config.DefaultAPIBaseURL))
		Expect(tc.MaxRetries).To(Equal(1))
		Expect(tc.Logger).To(BeIdenticalTo(logger))
		Expect(tc.Validate()).To(Succeed())

		rc := s.Realtime(logger)
		Expect(rc.WebSocketEnabled).To(BeFalse())
		Expect(rc.MaxPolls).To(Equal(7))
		Expect(rc.Validate()).To(Succeed())
	})
})
