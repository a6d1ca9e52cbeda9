package seoconfig

import (
	"fmt"
	"io"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/config"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/lifecycle"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/llm/openai"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/logging"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/realtime"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/report"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Options are the dependencies not described by the settings.
type Options struct {
	Logger *logrus.Logger
	// Metrics receives the transport collectors; nil disables metrics
	Metrics prometheus.Registerer
	// Dialer overrides the websocket dialer
	Dialer realtime.Dialer
}

// Components is the wired client.
type Components struct {
	Settings  config.Settings
	Logger    *logrus.Logger
	Transport *transport.Client
	API       *analysis.Client
	Channel   *realtime.Manager
	Tracker   *errclass.Tracker
	Machine   *lifecycle.Machine
}

// NewLogger builds the logger described by the settings.
func NewLogger(s config.Settings, out io.Writer) *logrus.Logger {
	return logging.New(out, s.LogLevel, s.LogFormat)
}

// Build wires transport, API client, channel manager, tracker and machine.
func Build(s config.Settings, opts Options) (*Components, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(s, nil)
	}

	tc := s.Transport(logger)
	if opts.Metrics != nil {
		tc.Metrics = transport.NewMetrics(opts.Metrics)
	}
	tr, err := transport.NewClient(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	api := analysis.NewClient(tr, logger)

	channel, err := realtime.NewManager(s.Realtime(logger), opts.Dialer, api)
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime channel: %w", err)
	}

	tracker := errclass.NewTracker(errclass.DefaultTrackerCapacity, logger)

	machine := lifecycle.NewMachine(api, channel, lifecycle.Config{
		AutoRetry: s.AutoRetry,
		Tracker:   tracker,
		Logger:    logger,
	})

	logger.WithFields(logrus.Fields{
		"base_url":   s.APIBaseURL,
		"websocket":  s.WSEnabled,
		"polling":    s.PollEnabled,
		"auto_retry": s.AutoRetry,
	}).Debug("Client components ready")

	return &Components{
		Settings:  s,
		Logger:    logger,
		Transport: tr,
		API:       api,
		Channel:   channel,
		Tracker:   tracker,
		Machine:   machine,
	}, nil
}

// Close stops the machine and the realtime channel.
func (c *Components) Close() {
	c.Machine.Close()
	c.Channel.Close()
}

// ReportGenerator returns the report generator for the development backend,
// with an OpenAI draft writer when an API key is configured.
func ReportGenerator(s config.Settings, logger *logrus.Logger) (*report.Generator, error) {
	if s.OpenAIAPIKey == "" {
		logger.Info("OPENAI_API_KEY not set, reports will not include a generated draft")
		return report.NewGenerator(nil, logger), nil
	}

	client, err := openai.NewClient(&openai.Config{
		APIKey: s.OpenAIAPIKey,
		Model:  s.OpenAIModel,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return report.NewGenerator(client, logger), nil
}
