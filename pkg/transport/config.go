package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultTimeout is used when smart timeout has too few samples
	DefaultTimeout = 30 * time.Second

	// DefaultTimeoutMultiplier scales the mean observed latency
	DefaultTimeoutMultiplier = 3.0

	// DefaultMinTimeout and DefaultMaxTimeout clamp the smart timeout
	DefaultMinTimeout = 5 * time.Second
	DefaultMaxTimeout = 120 * time.Second

	// DefaultSampleWindow is the number of latency samples kept
	DefaultSampleWindow = 50

	// DefaultMinSamples is the number of samples needed before smart timeout kicks in
	DefaultMinSamples = 5

	// DefaultLongRunningFloor is the minimum timeout for long-running endpoints
	DefaultLongRunningFloor = 60 * time.Second

	// DefaultMaxRetries is the number of additional attempts after the first one
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the backoff for the first retry
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultRetryMaxDelay caps the exponential backoff
	DefaultRetryMaxDelay = 10 * time.Second

	// DefaultJitter is the maximum fraction of random delay added to each backoff
	DefaultJitter = 0.2

	// DefaultUserAgent identifies the client to the analysis service
	DefaultUserAgent = "seo-analyzer-go/1.0"
)

// DefaultLongRunningPaths lists request paths that receive DefaultLongRunningFloor.
var DefaultLongRunningPaths = []string{"/api/analysis/async"}

// Config holds everything the transport client needs. Zero values are
// replaced with defaults by Validate.
type Config struct {
	// BaseURL is the analysis service root, e.g. http://localhost:8000
	BaseURL string

	// Timeout is the per-attempt timeout used without smart timeout data
	Timeout time.Duration

	// SmartTimeout derives the timeout from observed latency
	SmartTimeout      bool
	TimeoutMultiplier float64
	MinTimeout        time.Duration
	MaxTimeout        time.Duration
	SampleWindow      int
	MinSamples        int

	// LongRunningPaths get at least LongRunningFloor as their timeout
	LongRunningPaths []string
	LongRunningFloor time.Duration

	// Retry behaviour
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	Jitter          float64
	RetryableStatus []int

	// RateLimit is the number of requests per second allowed (0 disables)
	RateLimit float64
	RateBurst int

	UserAgent  string
	HTTPClient *http.Client
	Metrics    *Metrics
	Logger     *logrus.Logger
}

// DefaultConfig returns a Config with every default applied for baseURL.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:           baseURL,
		Timeout:           DefaultTimeout,
		SmartTimeout:      true,
		TimeoutMultiplier: DefaultTimeoutMultiplier,
		MinTimeout:        DefaultMinTimeout,
		MaxTimeout:        DefaultMaxTimeout,
		SampleWindow:      DefaultSampleWindow,
		MinSamples:        DefaultMinSamples,
		LongRunningPaths:  append([]string(nil), DefaultLongRunningPaths...),
		LongRunningFloor:  DefaultLongRunningFloor,
		MaxRetries:        DefaultMaxRetries,
		RetryBaseDelay:    DefaultRetryBaseDelay,
		RetryMaxDelay:     DefaultRetryMaxDelay,
		Jitter:            DefaultJitter,
		UserAgent:         DefaultUserAgent,
		Logger:            logrus.New(),
	}
}

// Validate checks the configuration and fills in defaults for unset fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("transport: base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("transport: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("transport: base URL must be http or https, got %q", u.Scheme)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("transport: max retries cannot be negative")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("transport: jitter must be between 0 and 1")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("transport: rate limit cannot be negative")
	}
	if c.MinTimeout > 0 && c.MaxTimeout > 0 && c.MinTimeout > c.MaxTimeout {
		return fmt.Errorf("transport: min timeout %s exceeds max timeout %s", c.MinTimeout, c.MaxTimeout)
	}

	// Set default values if not provided
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TimeoutMultiplier <= 0 {
		c.TimeoutMultiplier = DefaultTimeoutMultiplier
	}
	if c.MinTimeout <= 0 {
		c.MinTimeout = DefaultMinTimeout
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = DefaultMaxTimeout
	}
	if c.SampleWindow <= 0 {
		c.SampleWindow = DefaultSampleWindow
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.LongRunningFloor <= 0 {
		c.LongRunningFloor = DefaultLongRunningFloor
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return nil
}
