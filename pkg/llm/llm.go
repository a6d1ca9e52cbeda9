// Package llm is the text generation seam used for report drafts.
package llm

import "context"

// LLM turns a prompt into a completion.
type LLM interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (*Completion, error)
}

// Completion is the generated text with the usage reported by the provider.
// Token counts are zero when the provider does not report them.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens is the sum of prompt and completion tokens.
func (c *Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

type Option func(*Options)

// Options are the per call generation settings. Zero values keep the
// client defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
	// System is sent as a system message ahead of the prompt
	System string
}

// Apply returns base with opts applied.
func Apply(base Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

func WithTemperature(temp float64) Option {
	return func(o *Options) { o.Temperature = temp }
}

func WithMaxTokens(tokens int) Option {
	return func(o *Options) { o.MaxTokens = tokens }
}

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithSystem sets the system message.
func WithSystem(system string) Option {
	return func(o *Options) { o.System = system }
}
