// Package openai implements llm.LLM with the langchaingo OpenAI model.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/llm"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Client is safe for concurrent use.
type Client struct {
	model  llms.Model
	config *Config
	logger *logrus.Logger
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("openai: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI: %w", err)
	}

	return &Client{model: model, config: config, logger: config.Logger}, nil
}

// Generate sends the optional system message and the prompt as one chat
// exchange and returns the first choice.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.Option) (*llm.Completion, error) {
	options := llm.Apply(llm.Options{
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Model:       c.config.Model,
	}, opts...)

	messages := make([]llms.MessageContent, 0, 2)
	if options.System != "" {
		messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, options.System))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	log := c.logger.WithFields(logrus.Fields{
		"model":       options.Model,
		"temperature": options.Temperature,
		"max_tokens":  options.MaxTokens,
	})
	log.Debug("Requesting completion")

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(options.Temperature),
		llms.WithMaxTokens(options.MaxTokens),
		llms.WithModel(options.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}

	choice := resp.Choices[0]
	completion := &llm.Completion{
		Text:             choice.Content,
		PromptTokens:     usage(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: usage(choice.GenerationInfo, "CompletionTokens"),
	}
	log.WithFields(logrus.Fields{
		"prompt_tokens":     completion.PromptTokens,
		"completion_tokens": completion.CompletionTokens,
		"stop_reason":       choice.StopReason,
	}).Debug("Completion received")

	return completion, nil
}

func usage(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
