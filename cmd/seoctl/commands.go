package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/lisanmuaddib/seo-analyzer-go/internal/seoconfig"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/config"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/logging"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries what every command shares once the root pre-run has loaded
// the settings.
type app struct {
	out    io.Writer
	errOut io.Writer
	// getenv replaces the process environment and .env file when set
	getenv func(string) string

	apiURL    string
	logLevel  string
	logFormat string

	settings config.Settings
	logger   *logrus.Logger
}

func newRootCmd(out, errOut io.Writer, getenv func(string) string) *cobra.Command {
	a := &app{out: out, errOut: errOut, getenv: getenv}

	root := &cobra.Command{
		Use:           "seoctl",
		Short:         "Run and monitor SEO keyword analyses",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.apiURL, "api-url", "", "analysis service base URL (overrides SEO_API_BASE_URL)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: color, text or json (overrides LOG_FORMAT)")

	root.AddCommand(
		newAnalyzeCmd(a),
		newStatusCmd(a),
		newControlCmd(a, "cancel", "Cancel a running analysis", (*analysis.Client).Cancel),
		newControlCmd(a, "pause", "Pause a running analysis", (*analysis.Client).Pause),
		newControlCmd(a, "resume", "Resume a paused analysis", (*analysis.Client).Resume),
		newHealthCmd(a),
		newStubCmd(a),
	)

	return root
}

// load reads the settings, applies flag overrides and builds the logger.
func (a *app) load() error {
	var (
		s   config.Settings
		err error
	)
	if a.getenv != nil {
		s, err = config.FromEnv(a.getenv)
	} else {
		s, err = config.Load()
	}
	if err != nil {
		return err
	}

	if a.apiURL != "" {
		s.APIBaseURL = strings.TrimRight(a.apiURL, "/")
	}
	if a.logLevel != "" {
		level, ok := logging.ParseLevel(a.logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", a.logLevel)
		}
		s.LogLevel = level
	}
	if a.logFormat != "" {
		s.LogFormat = strings.ToLower(a.logFormat)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	a.settings = s
	a.logger = seoconfig.NewLogger(s, a.errOut)
	return nil
}

// client builds a bare API client for the one-shot commands.
func (a *app) client() (*analysis.Client, error) {
	t, err := transport.NewClient(a.settings.Transport(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return analysis.NewClient(t, a.logger), nil
}

// userError prefixes err with the classified message shown to users.
func userError(err error) error {
	c := errclass.Classify(err)
	return fmt.Errorf("%s: %w", c.UserMessage, err)
}
