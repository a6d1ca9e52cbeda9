package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/llm"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/llm/openai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Config", func() {
	It("requires an API key", func() {
		config := &openai.Config{Logger: logrus.New()}
		Expect(config.Validate()).To(MatchError(ContainSubstring("API key")))
	})

	It("rejects an out of range temperature", func() {
		config := &openai.Config{APIKey: "sk-test", Temperature: 3}
		Expect(config.Validate()).To(MatchError(ContainSubstring("temperature")))
	})

	It("fills in defaults", func() {
		config := &openai.Config{APIKey: "sk-test", Logger: logrus.New()}
		Expect(config.Validate()).To(Succeed())
		Expect(config.Model).To(Equal(openai.DefaultModel))
		Expect(config.MaxTokens).To(Equal(openai.DefaultMaxTokens))
		Expect(config.Temperature).To(Equal(openai.DefaultTemperature))
	})

	It("reads the environment", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "sk-env")
		GinkgoT().Setenv("OPENAI_MODEL", "gpt-4o")

		config, err := openai.NewConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(config.APIKey).To(Equal("sk-env"))
		Expect(config.Model).To(Equal("gpt-4o"))
	})
})

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		mu     sync.Mutex
		body   map[string]any
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			mu.Lock()
			_ = json.Unmarshal(raw, &body)
			mu.Unlock()

			if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1700000000,
				"model": "gpt-4o-mini",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "## Draft"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
			}`)
		}))
		DeferCleanup(server.Close)
	})

	It("generates a completion with the requested options", func() {
		client, err := openai.NewClient(&openai.Config{
			APIKey:  "sk-test",
			Logger:  logrus.New(),
			BaseURL: server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		out, err := client.Generate(context.Background(), "write a draft",
			llm.WithMaxTokens(64), llm.WithTemperature(0.2), llm.WithSystem("You write SEO articles."))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Text).To(Equal("## Draft"))
		Expect(out.PromptTokens).To(Equal(10))
		Expect(out.CompletionTokens).To(Equal(3))

		mu.Lock()
		defer mu.Unlock()
		Expect(body["temperature"]).To(BeNumerically("==", 0.2))
		Expect(body).To(HaveKeyWithValue("messages", HaveLen(2)))
		first := body["messages"].([]any)[0].(map[string]any)
		Expect(first).To(HaveKeyWithValue("role", "system"))
	})

	It("rejects a missing config", func() {
		_, err := openai.NewClient(nil)
		Expect(err).To(HaveOccurred())
	})
})
