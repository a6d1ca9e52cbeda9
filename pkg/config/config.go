// Package config loads the client settings once from the environment and
// an optional .env file. Settings are validated on load and passed by value.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/logging"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Default values not owned by the transport or realtime packages.
const (
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultLogFormat  = "color"
)

// Settings is the complete client configuration.
type Settings struct {
	APIBaseURL string
	// WSBaseURL overrides the websocket origin; empty derives it from APIBaseURL
	WSBaseURL string

	RequestTimeout time.Duration
	SmartTimeout   bool
	MaxRetries     int
	RetryBaseDelay time.Duration
	// RateLimitRPS of zero disables client side rate limiting
	RateLimitRPS float64

	WSEnabled           bool
	WSMaxRetries        int
	WSInitialDelay      time.Duration
	WSBackoffMultiplier float64

	PollEnabled  bool
	PollInterval time.Duration
	PollMax      int

	AutoRetry bool

	LogLevel  logrus.Level
	LogFormat string

	OpenAIAPIKey string
	OpenAIModel  string
}

// Default returns the settings used when no variable is set.
func Default() Settings {
	return Settings{
		APIBaseURL:          DefaultAPIBaseURL,
		RequestTimeout:      transport.DefaultTimeout,
		SmartTimeout:        true,
		MaxRetries:          transport.DefaultMaxRetries,
		RetryBaseDelay:      transport.DefaultRetryBaseDelay,
		WSEnabled:           true,
		WSMaxRetries:        realtime.DefaultMaxRetries,
		WSInitialDelay:      realtime.DefaultInitialDelay,
		WSBackoffMultiplier: realtime.DefaultMultiplier,
		PollEnabled:         true,
		PollInterval:        realtime.DefaultPollInterval,
		PollMax:             realtime.DefaultMaxPolls,
		LogLevel:            logrus.InfoLevel,
		LogFormat:           DefaultLogFormat,
	}
}

// Load reads .env when present and then the process environment.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("error loading .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds settings from getenv. Unset or empty variables keep their
// default; malformed values are an error.
func FromEnv(getenv func(string) string) (Settings, error) {
	s := Default()
	p := parser{getenv: getenv}

	s.APIBaseURL = strings.TrimRight(p.str("SEO_API_BASE_URL", s.APIBaseURL), "/")
	s.WSBaseURL = strings.TrimRight(p.str("SEO_WS_BASE_URL", s.WSBaseURL), "/")
	s.RequestTimeout = p.seconds("SEO_REQUEST_TIMEOUT", s.RequestTimeout)
	s.SmartTimeout = p.boolean("SEO_SMART_TIMEOUT", s.SmartTimeout)
	s.MaxRetries = p.integer("SEO_MAX_RETRIES", s.MaxRetries)
	s.RetryBaseDelay = p.millis("SEO_RETRY_BASE_DELAY_MS", s.RetryBaseDelay)
	s.RateLimitRPS = p.float("SEO_RATE_LIMIT_RPS", s.RateLimitRPS)

	s.WSEnabled = p.boolean("SEO_WS_ENABLED", s.WSEnabled)
	s.WSMaxRetries = p.integer("SEO_WS_MAX_RETRIES", s.WSMaxRetries)
	s.WSInitialDelay = p.millis("SEO_WS_INITIAL_DELAY_MS", s.WSInitialDelay)
	s.WSBackoffMultiplier = p.float("SEO_WS_BACKOFF_MULTIPLIER", s.WSBackoffMultiplier)

	s.PollEnabled = p.boolean("SEO_POLL_ENABLED", s.PollEnabled)
	s.PollInterval = p.millis("SEO_POLL_INTERVAL_MS", s.PollInterval)
	s.PollMax = p.integer("SEO_POLL_MAX", s.PollMax)

	s.AutoRetry = p.boolean("SEO_AUTO_RETRY", s.AutoRetry)

	if name := getenv("LOG_LEVEL"); name != "" {
		level, ok := logging.ParseLevel(name)
		if !ok {
			p.fail("LOG_LEVEL", name, errors.New("unknown level"))
		}
		s.LogLevel = level
	}
	s.LogFormat = strings.ToLower(p.str("LOG_FORMAT", s.LogFormat))

	s.OpenAIAPIKey = getenv("OPENAI_API_KEY")
	s.OpenAIModel = getenv("OPENAI_MODEL")

	if len(p.errs) > 0 {
		return Settings{}, fmt.Errorf("invalid environment: %w", errors.Join(p.errs...))
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the value ranges.
func (s Settings) Validate() error {
	u, err := url.Parse(s.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: SEO_API_BASE_URL must be an http(s) URL, got %q", s.APIBaseURL)
	}
	if s.WSBaseURL != "" {
		u, err := url.Parse(s.WSBaseURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("config: SEO_WS_BASE_URL must be a ws(s) URL, got %q", s.WSBaseURL)
		}
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive")
	}
	if s.MaxRetries < 0 || s.WSMaxRetries < 0 {
		return fmt.Errorf("config: retry counts must not be negative")
	}
	if s.RateLimitRPS < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if s.WSBackoffMultiplier < 1 {
		return fmt.Errorf("config: websocket backoff multiplier must be at least 1, got %v", s.WSBackoffMultiplier)
	}
	if s.PollEnabled && (s.PollInterval <= 0 || s.PollMax <= 0) {
		return fmt.Errorf("config: poll interval and budget must be positive")
	}
	if !s.WSEnabled && !s.PollEnabled {
		return fmt.Errorf("config: at least one of the websocket and polling channels must be enabled")
	}
	switch s.LogFormat {
	case "color", "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be color, text or json, got %q", s.LogFormat)
	}
	return nil
}

// Transport returns the transport client config for these settings.
func (s Settings) Transport(logger *logrus.Logger) *transport.Config {
	c := transport.DefaultConfig(s.APIBaseURL)
	c.Timeout = s.RequestTimeout
	c.SmartTimeout = s.SmartTimeout
	c.MaxRetries = s.MaxRetries
	c.RetryBaseDelay = s.RetryBaseDelay
	c.RateLimit = s.RateLimitRPS
	c.Logger = logger
	return c
}

// Realtime returns the channel manager config for these settings.
func (s Settings) Realtime(logger *logrus.Logger) *realtime.Config {
	c := realtime.DefaultConfig(s.APIBaseURL)
	c.WSBaseURL = s.WSBaseURL
	c.WebSocketEnabled = s.WSEnabled
	c.MaxRetries = s.WSMaxRetries
	c.InitialDelay = s.WSInitialDelay
	c.Multiplier = s.WSBackoffMultiplier
	c.PollingEnabled = s.PollEnabled
	c.PollInterval = s.PollInterval
	c.MaxPolls = s.PollMax
	c.Logger = logger
	return c
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) millis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// seconds accepts either a Go duration ("45s") or a number of seconds.
func (p *parser) seconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return time.Duration(n * float64(time.Second))
}
