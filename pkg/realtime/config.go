package realtime

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultMaxRetries is the number of reconnect attempts before falling back
	DefaultMaxRetries = 3

	// DefaultInitialDelay is the wait before the first reconnect
	DefaultInitialDelay = time.Second

	// DefaultMultiplier grows the reconnect delay per attempt
	DefaultMultiplier = 2.0

	// DefaultMaxDelay caps the reconnect delay
	DefaultMaxDelay = 30 * time.Second

	// DefaultHandshakeTimeout bounds one websocket dial
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultPollInterval is the wait between status polls
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxPolls is the polling budget, about five minutes at the default interval
	DefaultMaxPolls = 150

	// DefaultEventBuffer is the capacity of the events channel
	DefaultEventBuffer = 64

	// ProgressPathPrefix is the websocket endpoint; the job id is appended
	ProgressPathPrefix = "/ws/progress/"
)

// Config controls the realtime channel.
type Config struct {
	// BaseURL is the HTTP API root the websocket URL is derived from
	BaseURL string
	// WSBaseURL overrides the derived ws:// or wss:// root
	WSBaseURL string

	WebSocketEnabled bool
	MaxRetries       int
	InitialDelay     time.Duration
	Multiplier       float64
	MaxDelay         time.Duration
	HandshakeTimeout time.Duration

	PollingEnabled bool
	PollInterval   time.Duration
	MaxPolls       int

	EventBuffer int
	Logger      *logrus.Logger
}

// DefaultConfig enables the websocket with polling fallback.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:          baseURL,
		WebSocketEnabled: true,
		MaxRetries:       DefaultMaxRetries,
		InitialDelay:     DefaultInitialDelay,
		Multiplier:       DefaultMultiplier,
		MaxDelay:         DefaultMaxDelay,
		HandshakeTimeout: DefaultHandshakeTimeout,
		PollingEnabled:   true,
		PollInterval:     DefaultPollInterval,
		MaxPolls:         DefaultMaxPolls,
		EventBuffer:      DefaultEventBuffer,
		Logger:           logrus.New(),
	}
}

// Validate checks the configuration and fills in defaults for unset fields.
func (c *Config) Validate() error {
	if !c.WebSocketEnabled && !c.PollingEnabled {
		return fmt.Errorf("realtime: websocket and polling cannot both be disabled")
	}
	if c.WebSocketEnabled && c.BaseURL == "" && c.WSBaseURL == "" {
		return fmt.Errorf("realtime: base URL is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("realtime: max retries cannot be negative")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("realtime: backoff multiplier must be at least 1")
	}
	if c.MaxPolls < 0 {
		return fmt.Errorf("realtime: max polls cannot be negative")
	}

	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxPolls == 0 {
		c.MaxPolls = DefaultMaxPolls
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return nil
}

// ProgressURL returns the websocket URL for jobID.
func (c *Config) ProgressURL(jobID string) (string, error) {
	base := c.WSBaseURL
	if base == "" {
		base = c.BaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("realtime: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("realtime: unsupported URL scheme %q", u.Scheme)
	}
	escaped := strings.TrimRight(u.EscapedPath(), "/") + ProgressPathPrefix + url.PathEscape(jobID)
	u.Path = strings.TrimRight(u.Path, "/") + ProgressPathPrefix + jobID
	u.RawPath = escaped
	u.RawQuery = ""
	return u.String(), nil
}
