package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisanmuaddib/seo-analyzer-go/internal/devserver"
	"github.com/lisanmuaddib/seo-analyzer-go/internal/seoconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newStubCmd(a *app) *cobra.Command {
	var (
		addr          string
		stageDuration time.Duration
		failStage     int
	)

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run a local development backend that simulates analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reports, err := seoconfig.ReportGenerator(a.settings, a.logger)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			srv, err := devserver.New(&devserver.Config{
				StageDuration: stageDuration,
				FailStage:     failStage,
				Reports:       reports,
				Registry:      registry,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}
			return srv.Serve(ctx, addr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":8000", "listen address")
	f.DurationVar(&stageDuration, "stage-duration", devserver.DefaultStageDuration, "simulated duration of each stage")
	f.IntVar(&failStage, "fail-stage", 0, "make every job fail in this stage (1-3, 0 disables)")
	return cmd
}
