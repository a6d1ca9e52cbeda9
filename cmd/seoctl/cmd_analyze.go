package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/internal/seoconfig"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/lifecycle"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/render"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	keyword  string
	audience string
	draft    bool
	faq      bool
	table    bool

	jsonPath     string
	markdownPath string

	noWebSocket bool
	autoRetry   bool
	noColor     bool
	stages      bool
	stats       bool
}

// errAnalysisFailed is returned when the job ends in any state but completed.
var errAnalysisFailed = errors.New("analysis did not complete")

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts analyzeOptions
	defaults := analysis.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Start an analysis and follow its progress until it ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("auto-retry") {
				a.settings.AutoRetry = opts.autoRetry
			}
			return a.runAnalyze(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.keyword, "keyword", "k", "", "keyword to analyze")
	f.StringVarP(&opts.audience, "audience", "a", "", "target audience")
	f.BoolVar(&opts.draft, "draft", defaults.GenerateDraft, "generate an article draft")
	f.BoolVar(&opts.faq, "faq", defaults.IncludeFAQ, "include a suggested FAQ")
	f.BoolVar(&opts.table, "table", defaults.IncludeTable, "include the theme coverage table")
	f.StringVar(&opts.jsonPath, "json", "", "write the final state as JSON to this file")
	f.StringVar(&opts.markdownPath, "markdown", "", "write the report as Markdown to this file")
	f.BoolVar(&opts.noWebSocket, "no-ws", false, "follow progress by polling only")
	f.BoolVar(&opts.autoRetry, "auto-retry", false, "retry once automatically after a retryable failure")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	f.BoolVar(&opts.stages, "stages", false, "print the stage checklist at the end")
	f.BoolVar(&opts.stats, "stats", false, "print request and error statistics at the end")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("audience")

	return cmd
}

func (a *app) runAnalyze(ctx context.Context, opts analyzeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := a.settings
	if opts.noWebSocket {
		s.WSEnabled = false
		s.PollEnabled = true
	}

	c, err := seoconfig.Build(s, seoconfig.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	defer c.Close()

	req := analysis.Request{
		Keyword:  opts.keyword,
		Audience: opts.audience,
		Options: analysis.Options{
			GenerateDraft: opts.draft,
			IncludeFAQ:    opts.faq,
			IncludeTable:  opts.table,
		},
	}

	updates, unsubscribe := c.Machine.Subscribe()
	defer unsubscribe()
	printer := render.NewPrinter(a.out, opts.noColor)

	if err := c.Machine.Start(ctx, req); err != nil {
		// invalid requests never leave idle
		if !c.Machine.Snapshot().Status.Terminal() {
			return err
		}
		a.logger.WithError(err).Warn("Failed to start analysis")
	}

	final := a.follow(ctx, c, updates, printer)

	printer.Summary(final)
	if opts.stages {
		printer.Stages(final)
	}
	if opts.stats {
		a.printStats(c, printer)
	}

	if err := a.export(final, opts); err != nil {
		return err
	}

	if final.Status != lifecycle.StatusCompleted {
		return errAnalysisFailed
	}
	return nil
}

// follow prints every update until the job is finished. An interrupt
// cancels the job on the server before returning.
func (a *app) follow(ctx context.Context, c *seoconfig.Components, updates <-chan lifecycle.Snapshot, printer *render.Printer) lifecycle.Snapshot {
	m := c.Machine
	for {
		if m.Finished() {
			snap := m.Snapshot()
			printer.Print(snap)
			return snap
		}

		select {
		case <-ctx.Done():
			snap := a.interrupt(c)
			printer.Print(snap)
			return snap
		case snap, ok := <-updates:
			if !ok {
				return m.Snapshot()
			}
			printer.Print(snap)
		}
	}
}

// interrupt cancels a live job, or drops a pending automatic retry, and
// returns the state to report.
func (a *app) interrupt(c *seoconfig.Components) lifecycle.Snapshot {
	m := c.Machine
	snap := m.Snapshot()
	if !snap.Status.Live() {
		m.Reset()
		return snap
	}

	a.logger.Info("Interrupted, cancelling analysis")
	ctx, cancel := context.WithTimeout(context.Background(), a.settings.RequestTimeout)
	defer cancel()
	if err := m.Cancel(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to cancel analysis on the server")
	}
	return m.Snapshot()
}

func (a *app) printStats(c *seoconfig.Components, printer *render.Printer) {
	st := c.Transport.Stats()
	fmt.Fprintf(a.out, "Requests: %d total, %d ok, %d failed, mean latency %s over %d samples\n",
		st.TotalRequests, st.SuccessRequests, st.FailedRequests,
		st.AverageLatency.Round(time.Millisecond), st.Samples)
	printer.ErrorStats(c.Tracker.Summary())
}

// export writes the requested files. Each write is guarded so a failing
// export is reported without hiding the analysis outcome.
func (a *app) export(snap lifecycle.Snapshot, opts analyzeOptions) error {
	var errs []error
	write := func(path string, fn func(*os.File) error) {
		if path == "" {
			return
		}
		out := render.Guard(func() error {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := fn(f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		})
		if out.OK {
			a.logger.WithField("path", path).Info("Export written")
			return
		}
		a.logger.WithFields(logrus.Fields{
			"path":  path,
			"error": out.Err,
			"type":  out.Classification.Type,
		}).Error("Export failed")
		errs = append(errs, fmt.Errorf("export %s: %w", path, out.Err))
	}

	write(opts.jsonPath, func(f *os.File) error {
		return render.WriteJSON(f, snap, time.Now())
	})
	write(opts.markdownPath, func(f *os.File) error {
		return render.WriteMarkdown(f, snap)
	})
	return errors.Join(errs...)
}
