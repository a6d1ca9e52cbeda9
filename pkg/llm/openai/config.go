package openai

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1500
)

// Config configures the OpenAI draft writer.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for proxies and tests
	BaseURL string

	Temperature float64
	MaxTokens   int

	Logger *logrus.Logger
}

// NewConfig reads OPENAI_API_KEY, OPENAI_MODEL and OPENAI_BASE_URL. The
// caller loads .env beforehand.
func NewConfig() (*Config, error) {
	config := &Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("OPENAI_MODEL"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate fills in defaults and checks ranges.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("openai: API key is required")
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("openai: temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("openai: max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}
